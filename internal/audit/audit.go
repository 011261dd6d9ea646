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

// Package audit records an append-only, per-organization trail of actions.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Actions
const (
	ActionCreate       = "create"
	ActionUpdate       = "update"
	ActionDeactivate   = "deactivate"
	ActionLogin        = "login"
	ActionAccessDenied = "access_denied"
)

// Resources
const (
	ResourceOrganization = "organization"
	ResourceUser         = "user"
	ResourceBoundary     = "data_boundary"
	ResourceRole         = "role"
)

// Metadata keys
const (
	AttrEmail      = "email"
	AttrRoleID     = "role_id"
	AttrPlan       = "plan"
	AttrPermission = "permission"
	AttrReason     = "reason"
	AttrIPAddress  = "ip_address"
	AttrUserAgent  = "user_agent"
)

// DefaultRetentionCap is the number of entries kept per organization.
const DefaultRetentionCap = 1000

// ErrInvalidEntry is returned when a required entry field is missing.
var ErrInvalidEntry = errors.New("invalid audit entry")

// Entry is a single immutable audit record.
type Entry struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	UserID         *string        `json:"user_id"`
	Action         string         `json:"action"`
	Resource       string         `json:"resource"`
	ResourceID     string         `json:"resource_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

func (e *Entry) validate() error {
	switch {
	case e.OrganizationID == "":
		return fmt.Errorf("%w: organization id is required", ErrInvalidEntry)
	case e.Action == "":
		return fmt.Errorf("%w: action is required", ErrInvalidEntry)
	case e.Resource == "":
		return fmt.Errorf("%w: resource is required", ErrInvalidEntry)
	}
	return nil
}

// Page is one page of entries, newest first.
type Page struct {
	Entries []*Entry `json:"entries"`
	Page    int      `json:"page"`
	Limit   int      `json:"limit"`
	Total   int      `json:"total"`
}

// Store persists entries. Implementations must filter by organization in
// the query itself and order List results by Timestamp descending.
type Store interface {
	// Append writes one entry
	Append(ctx context.Context, entry *Entry) error

	// List returns entries of one organization, newest first
	List(ctx context.Context, organizationID string, offset, limit int) ([]*Entry, error)

	// Count returns the number of stored entries of one organization
	Count(ctx context.Context, organizationID string) (int, error)

	// Trim deletes all but the newest keep entries of one organization
	Trim(ctx context.Context, organizationID string, keep int) (int64, error)

	// Organizations lists organization IDs that have entries
	Organizations(ctx context.Context) ([]string, error)
}

// Recorder is the best-effort side of the logger used by services.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// NopRecorder discards entries.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, Entry) {}

// redact replaces values of secret-looking keys. The input map is not modified.
func redact(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if isSecret(k) {
			v = "[REDACTED]"
		}
		out[k] = v
	}
	return out
}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	k := strings.ToLower(key)
	for _, s := range []string{"password", "secret", "token", "key", "hash", "credential", "authorization"} {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
