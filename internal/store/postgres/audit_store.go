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

	"github.com/opentrusty/tenantguard/internal/audit"
)

// AuditStore implements audit.Store on the audit_logs table
type AuditStore struct {
	db   *DB
	keep int
}

// NewAuditStore creates an audit store. A positive keep trims each
// organization's trail in the same transaction as every append.
func NewAuditStore(db *DB, keep int) *AuditStore {
	return &AuditStore{db: db, keep: keep}
}

// Append inserts one entry
func (s *AuditStore) Append(ctx context.Context, e *audit.Entry) error {
	metadata, err := marshalJSON(e.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", unavailable(err))
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, organization_id, user_id, action, resource, resource_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.OrganizationID, e.UserID, e.Action, e.Resource, nullString(e.ResourceID), metadata, e.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", unavailable(err))
	}

	if s.keep > 0 {
		if _, err := trim(ctx, tx, e.OrganizationID, s.keep); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit entry: %w", unavailable(err))
	}
	return nil
}

// List returns entries of one organization, newest first
func (s *AuditStore) List(ctx context.Context, organizationID string, offset, limit int) ([]*audit.Entry, error) {
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT id, organization_id, user_id, action, resource, resource_id, metadata, created_at
		FROM audit_logs
		WHERE organization_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, organizationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", unavailable(err))
	}
	defer rows.Close()

	entries := make([]*audit.Entry, 0, limit)
	for rows.Next() {
		var (
			e          audit.Entry
			userID     sql.NullString
			resourceID sql.NullString
			metadata   []byte
		)
		if err := rows.Scan(
			&e.ID, &e.OrganizationID, &userID, &e.Action, &e.Resource,
			&resourceID, &metadata, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", unavailable(err))
		}
		if userID.Valid {
			e.UserID = &userID.String
		}
		e.ResourceID = resourceID.String
		if err := unmarshalJSON(metadata, &e.Metadata); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, &e)
	}
	return entries, unavailable(rows.Err())
}

// Count returns the number of entries of one organization
func (s *AuditStore) Count(ctx context.Context, organizationID string) (int, error) {
	var n int
	if err := s.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_logs WHERE organization_id = $1`, organizationID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", unavailable(err))
	}
	return n, nil
}

// Trim deletes all but the newest keep entries of one organization
func (s *AuditStore) Trim(ctx context.Context, organizationID string, keep int) (int64, error) {
	return trim(ctx, s.db.sql, organizationID, keep)
}

// Organizations lists organization IDs that have audit entries
func (s *AuditStore) Organizations(ctx context.Context) ([]string, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT DISTINCT organization_id FROM audit_logs ORDER BY organization_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit organizations: %w", unavailable(err))
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, id)
	}
	return out, unavailable(rows.Err())
}

func trim(ctx context.Context, ex execer, organizationID string, keep int) (int64, error) {
	res, err := ex.ExecContext(ctx, `
		DELETE FROM audit_logs
		WHERE organization_id = $1 AND id IN (
			SELECT id FROM audit_logs
			WHERE organization_id = $1
			ORDER BY created_at DESC, id DESC
			OFFSET $2
		)
	`, organizationID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim audit logs: %w", unavailable(err))
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
