// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/opentrusty/tenantguard/internal/authz"
)

// RoleRepository implements authz.RoleRepository
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// Upsert creates the role or replaces everything but its creation time
func (r *RoleRepository) Upsert(ctx context.Context, role *authz.Role) error {
	_, err := r.db.sql.ExecContext(ctx, `
		INSERT INTO roles (id, name, level, description, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			level = EXCLUDED.level,
			description = EXCLUDED.description,
			permissions = EXCLUDED.permissions,
			updated_at = NOW()
	`, role.ID, role.Name, role.Level, role.Description, pq.Array(role.Permissions))
	if err != nil {
		return fmt.Errorf("failed to upsert role: %w", unavailable(err))
	}
	return nil
}

// GetByID retrieves a role by ID
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*authz.Role, error) {
	row := r.db.sql.QueryRowContext(ctx, `
		SELECT id, name, level, description, permissions, created_at, updated_at
		FROM roles WHERE id = $1
	`, id)
	role, err := scanRole(row)
	if err != nil {
		if isNoRows(err) {
			return nil, authz.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", unavailable(err))
	}
	return role, nil
}

// List retrieves all roles, highest level first
func (r *RoleRepository) List(ctx context.Context) ([]*authz.Role, error) {
	rows, err := r.db.sql.QueryContext(ctx, `
		SELECT id, name, level, description, permissions, created_at, updated_at
		FROM roles ORDER BY level DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", unavailable(err))
	}
	defer rows.Close()

	roles := make([]*authz.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", unavailable(err))
		}
		roles = append(roles, role)
	}
	return roles, unavailable(rows.Err())
}

func scanRole(row scanner) (*authz.Role, error) {
	var role authz.Role
	var perms []string
	if err := row.Scan(
		&role.ID, &role.Name, &role.Level, &role.Description,
		pq.Array(&perms), &role.CreatedAt, &role.UpdatedAt,
	); err != nil {
		return nil, unavailable(err)
	}
	role.Permissions = perms
	return &role, nil
}
