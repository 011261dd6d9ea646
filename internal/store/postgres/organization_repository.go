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
	"encoding/json"
	"fmt"

	"github.com/opentrusty/tenantguard/internal/boundary"
	"github.com/opentrusty/tenantguard/internal/tenant"
)

const organizationColumns = `id, name, domain, plan, max_users, user_count, active, settings, created_at, updated_at`

// OrganizationRepository implements tenant.Repository
type OrganizationRepository struct {
	db *DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Create inserts the organization and its boundary in one transaction.
func (r *OrganizationRepository) Create(ctx context.Context, org *tenant.Organization, b *boundary.DataBoundary) error {
	settings, err := marshalJSON(org.Settings)
	if err != nil {
		return err
	}

	tx, err := r.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", unavailable(err))
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organizations (
			id, name, domain, plan, max_users, user_count, active, settings, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		org.ID, org.Name, org.Domain, string(org.Plan), org.MaxUsers, org.UserCount,
		org.Active, settings, org.CreatedAt, org.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "organizations_domain_key") {
			return tenant.ErrDomainTaken
		}
		return fmt.Errorf("failed to insert organization: %w", unavailable(err))
	}

	if b != nil {
		if err := upsertBoundary(ctx, tx, b); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit organization: %w", unavailable(err))
	}
	return nil
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*tenant.Organization, error) {
	row := r.db.sql.QueryRowContext(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id)
	return scanOrganization(row)
}

// GetByDomain retrieves an organization by domain
func (r *OrganizationRepository) GetByDomain(ctx context.Context, domain string) (*tenant.Organization, error) {
	row := r.db.sql.QueryRowContext(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE domain = $1`, domain)
	return scanOrganization(row)
}

// Update replaces the mutable fields of an organization
func (r *OrganizationRepository) Update(ctx context.Context, org *tenant.Organization) error {
	settings, err := marshalJSON(org.Settings)
	if err != nil {
		return err
	}

	res, err := r.db.sql.ExecContext(ctx, `
		UPDATE organizations
		SET name = $2, plan = $3, max_users = $4, active = $5, settings = $6, updated_at = NOW()
		WHERE id = $1
	`, org.ID, org.Name, string(org.Plan), org.MaxUsers, org.Active, settings)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", unavailable(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tenant.ErrOrganizationNotFound
	}
	return nil
}

// List retrieves organizations ordered by creation time
func (r *OrganizationRepository) List(ctx context.Context, limit, offset int) ([]*tenant.Organization, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.sql.QueryContext(ctx, `
		SELECT `+organizationColumns+`
		FROM organizations
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`, lim, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", unavailable(err))
	}
	defer rows.Close()

	orgs := make([]*tenant.Organization, 0)
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, unavailable(rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row scanner) (*tenant.Organization, error) {
	var (
		org      tenant.Organization
		domain   sql.NullString
		plan     string
		settings []byte
	)
	err := row.Scan(
		&org.ID, &org.Name, &domain, &plan, &org.MaxUsers, &org.UserCount,
		&org.Active, &settings, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, tenant.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", unavailable(err))
	}

	if domain.Valid {
		org.Domain = &domain.String
	}
	org.Plan = tenant.Plan(plan)
	if err := unmarshalJSON(settings, &org.Settings); err != nil {
		return nil, err
	}
	return &org, nil
}

func marshalJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json: %w", err)
	}
	return b, nil
}

func unmarshalJSON(b []byte, v *map[string]any) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to decode json: %w", err)
	}
	return nil
}
