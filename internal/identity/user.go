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

package identity

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/opentrusty/tenantguard/internal/boundary"
)

// Domain errors
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrDuplicateEmail       = errors.New("email already in use in organization")
	ErrSeatLimitExceeded    = errors.New("organization seat limit exceeded")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidEmail         = errors.New("invalid email address")
	ErrWeakPassword         = errors.New("password does not meet security requirements")
	ErrInvalidRole          = errors.New("invalid role")
	ErrOrganizationRequired = errors.New("organization id is required")
)

// SeatLimitError reports a user creation rejected by the seat limit.
type SeatLimitError struct {
	OrganizationID string
	Limit          int
}

func (e *SeatLimitError) Error() string {
	return fmt.Sprintf("organization %s has reached its limit of %d users", e.OrganizationID, e.Limit)
}

// Is makes errors.Is(err, ErrSeatLimitExceeded) match.
func (e *SeatLimitError) Is(target error) bool {
	return target == ErrSeatLimitExceeded
}

// User is a principal. Its organization never changes; users are
// deactivated, never deleted.
type User struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Email          string         `json:"email"`
	PasswordHash   string         `json:"-"`
	RoleID         string         `json:"role_id"`
	Active         bool           `json:"active"`
	LastLoginAt    *time.Time     `json:"last_login_at,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	c := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	c.Metadata = maps.Clone(u.Metadata)
	return &c
}

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// Create stores the user and its boundary in one atomic write and
	// refreshes the organization's user count. It returns ErrDuplicateEmail
	// when an active user of the organization has the same email, and
	// ErrSeatLimitExceeded when seatLimit (if positive) active users exist.
	Create(ctx context.Context, user *User, b *boundary.DataBoundary, seatLimit int) error

	// GetByID retrieves a user by ID, active or not
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail retrieves the active user with email within an organization
	GetByEmail(ctx context.Context, organizationID, email string) (*User, error)

	// FindByEmail retrieves active users with email across organizations
	FindByEmail(ctx context.Context, email string) ([]*User, error)

	// ListByOrganization retrieves all users of an organization
	ListByOrganization(ctx context.Context, organizationID string) ([]*User, error)

	// CountActive returns the number of active users of an organization
	CountActive(ctx context.Context, organizationID string) (int, error)

	// UpdateLastLogin records a successful authentication
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// Deactivate marks the user inactive and refreshes the organization's user count
	Deactivate(ctx context.Context, id string) error
}
