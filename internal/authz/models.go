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

package authz

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/opentrusty/tenantguard/internal/identity"
)

// Domain errors
var (
	ErrRoleNotFound      = errors.New("role not found")
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidPermission = errors.New("invalid permission")
	ErrInvalidScope      = errors.New("invalid scope")
)

// Role is a named, leveled set of permission strings. Roles are shared by
// every tenant and are immutable once seeded.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Level       int       `json:"level"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasPermission reports whether permission is held verbatim by the role.
func (r *Role) HasPermission(permission string) bool {
	return slices.Contains(r.Permissions, permission)
}

// Clone returns a deep copy so callers cannot alter shared snapshots.
func (r *Role) Clone() *Role {
	c := *r
	c.Permissions = slices.Clone(r.Permissions)
	return &c
}

// Validate checks the role's identity and every permission string.
func (r *Role) Validate() error {
	if r.ID == "" || r.Name == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidRole)
	}
	if r.Level < 1 {
		return fmt.Errorf("%w: %s level must be positive", ErrInvalidRole, r.ID)
	}
	for _, p := range r.Permissions {
		if _, err := ParsePermission(p); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidRole, r.ID, err)
		}
	}
	return nil
}

// RoleRepository defines the interface for role persistence
type RoleRepository interface {
	// Upsert creates the role or replaces its level, description and permissions
	Upsert(ctx context.Context, role *Role) error

	// GetByID retrieves a role by ID
	GetByID(ctx context.Context, id string) (*Role, error)

	// List retrieves all roles
	List(ctx context.Context) ([]*Role, error)
}

// PrincipalStore is the read side of the principal store used by checks.
type PrincipalStore interface {
	// GetByID retrieves a user by ID, returning identity.ErrUserNotFound when absent
	GetByID(ctx context.Context, id string) (*identity.User, error)
}
