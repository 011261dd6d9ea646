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
	"database/sql"
	"fmt"

	"github.com/opentrusty/tenantguard/internal/boundary"
)

// BoundaryRepository implements boundary.Repository
type BoundaryRepository struct {
	db *DB
}

// NewBoundaryRepository creates a new boundary repository
func NewBoundaryRepository(db *DB) *BoundaryRepository {
	return &BoundaryRepository{db: db}
}

// Upsert creates the boundary or updates its access level
func (r *BoundaryRepository) Upsert(ctx context.Context, b *boundary.DataBoundary) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return upsertBoundary(ctx, r.db.sql, b)
}

// Get retrieves the boundary of a triple
func (r *BoundaryRepository) Get(ctx context.Context, organizationID, resourceType, resourceID string) (*boundary.DataBoundary, error) {
	var b boundary.DataBoundary
	var level string
	err := r.db.sql.QueryRowContext(ctx, `
		SELECT organization_id, resource_type, resource_id, access_level, created_at
		FROM data_boundaries
		WHERE organization_id = $1 AND resource_type = $2 AND resource_id = $3
	`, organizationID, resourceType, resourceID).Scan(
		&b.OrganizationID, &b.ResourceType, &b.ResourceID, &level, &b.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, boundary.ErrBoundaryNotFound
		}
		return nil, fmt.Errorf("failed to get data boundary: %w", unavailable(err))
	}
	b.AccessLevel = boundary.AccessLevel(level)
	return &b, nil
}

// ListByOrganization retrieves the boundaries of an organization, optionally of one type
func (r *BoundaryRepository) ListByOrganization(ctx context.Context, organizationID, resourceType string) ([]*boundary.DataBoundary, error) {
	rows, err := r.db.sql.QueryContext(ctx, `
		SELECT organization_id, resource_type, resource_id, access_level, created_at
		FROM data_boundaries
		WHERE organization_id = $1 AND ($2 = '' OR resource_type = $2)
		ORDER BY resource_type, resource_id
	`, organizationID, resourceType)
	if err != nil {
		return nil, fmt.Errorf("failed to list data boundaries: %w", unavailable(err))
	}
	defer rows.Close()

	out := make([]*boundary.DataBoundary, 0)
	for rows.Next() {
		var b boundary.DataBoundary
		var level string
		if err := rows.Scan(&b.OrganizationID, &b.ResourceType, &b.ResourceID, &level, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan data boundary: %w", unavailable(err))
		}
		b.AccessLevel = boundary.AccessLevel(level)
		out = append(out, &b)
	}
	return out, unavailable(rows.Err())
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertBoundary(ctx context.Context, ex execer, b *boundary.DataBoundary) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO data_boundaries (organization_id, resource_type, resource_id, access_level, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (organization_id, resource_type, resource_id)
		DO UPDATE SET access_level = EXCLUDED.access_level
	`, b.OrganizationID, b.ResourceType, b.ResourceID, string(b.AccessLevel), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert data boundary: %w", unavailable(err))
	}
	return nil
}
