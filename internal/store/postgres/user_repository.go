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
	"time"

	"github.com/opentrusty/tenantguard/internal/boundary"
	"github.com/opentrusty/tenantguard/internal/identity"
	"github.com/opentrusty/tenantguard/internal/tenant"
)

const userColumns = `id, organization_id, email, password_hash, role_id, active, last_login_at, metadata, created_at, updated_at`

// UserRepository implements identity.UserRepository
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create locks the organization row, checks the email and the seat limit,
// then writes the user, its boundary and the refreshed user count.
func (r *UserRepository) Create(ctx context.Context, user *identity.User, b *boundary.DataBoundary, seatLimit int) error {
	metadata, err := marshalJSON(user.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", unavailable(err))
	}
	defer func() { _ = tx.Rollback() }()

	var orgID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM organizations WHERE id = $1 FOR UPDATE`, user.OrganizationID,
	).Scan(&orgID)
	if err != nil {
		if isNoRows(err) {
			return tenant.ErrOrganizationNotFound
		}
		return fmt.Errorf("failed to lock organization: %w", unavailable(err))
	}

	var active, duplicates int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE LOWER(email) = LOWER($2))
		FROM users
		WHERE organization_id = $1 AND active
	`, user.OrganizationID, user.Email).Scan(&active, &duplicates)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", unavailable(err))
	}
	if duplicates > 0 {
		return identity.ErrDuplicateEmail
	}
	if seatLimit > 0 && active >= seatLimit {
		return identity.ErrSeatLimitExceeded
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (
			id, organization_id, email, password_hash, role_id, active, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		user.ID, user.OrganizationID, user.Email, user.PasswordHash, user.RoleID,
		user.Active, metadata, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "users_org_email_active_key") {
			return identity.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", unavailable(err))
	}

	if b != nil {
		if err := upsertBoundary(ctx, tx, b); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE organizations SET user_count = $2, updated_at = NOW() WHERE id = $1`,
		user.OrganizationID, active+1,
	); err != nil {
		return fmt.Errorf("failed to update user count: %w", unavailable(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user: %w", unavailable(err))
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	row := r.db.sql.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail retrieves the active user with the email inside one organization
func (r *UserRepository) GetByEmail(ctx context.Context, organizationID, email string) (*identity.User, error) {
	row := r.db.sql.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE organization_id = $1 AND LOWER(email) = LOWER($2) AND active
	`, organizationID, email)
	return scanUser(row)
}

// FindByEmail retrieves active users with the email across organizations
func (r *UserRepository) FindByEmail(ctx context.Context, email string) ([]*identity.User, error) {
	return r.query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(email) = LOWER($1) AND active
		ORDER BY created_at, id
	`, email)
}

// ListByOrganization retrieves all users of an organization
func (r *UserRepository) ListByOrganization(ctx context.Context, organizationID string) ([]*identity.User, error) {
	return r.query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE organization_id = $1
		ORDER BY created_at, id
	`, organizationID)
}

// CountActive returns the number of active users of an organization
func (r *UserRepository) CountActive(ctx context.Context, organizationID string) (int, error) {
	var n int
	err := r.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE organization_id = $1 AND active`, organizationID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", unavailable(err))
	}
	return n, nil
}

// UpdateLastLogin records a successful authentication
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.sql.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", unavailable(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// Deactivate marks the user inactive and refreshes the organization user count
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	tx, err := r.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", unavailable(err))
	}
	defer func() { _ = tx.Rollback() }()

	var orgID string
	err = tx.QueryRowContext(ctx,
		`UPDATE users SET active = FALSE, updated_at = NOW() WHERE id = $1 RETURNING organization_id`, id,
	).Scan(&orgID)
	if err != nil {
		if isNoRows(err) {
			return identity.ErrUserNotFound
		}
		return fmt.Errorf("failed to deactivate user: %w", unavailable(err))
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE organizations
		SET user_count = (SELECT COUNT(*) FROM users WHERE organization_id = $1 AND active), updated_at = NOW()
		WHERE id = $1
	`, orgID); err != nil {
		return fmt.Errorf("failed to update user count: %w", unavailable(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deactivation: %w", unavailable(err))
	}
	return nil
}

func (r *UserRepository) query(ctx context.Context, query string, args ...any) ([]*identity.User, error) {
	rows, err := r.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", unavailable(err))
	}
	defer rows.Close()

	users := make([]*identity.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, unavailable(rows.Err())
}

func scanUser(row scanner) (*identity.User, error) {
	var (
		u         identity.User
		lastLogin sql.NullTime
		metadata  []byte
	)
	err := row.Scan(
		&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash, &u.RoleID,
		&u.Active, &lastLogin, &metadata, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", unavailable(err))
	}

	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	if err := unmarshalJSON(metadata, &u.Metadata); err != nil {
		return nil, err
	}
	return &u, nil
}
