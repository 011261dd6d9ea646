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

// Package memory is an in-process store. Every repository shares one lock so
// that writes spanning several collections are atomic.
package memory

import (
	"sync"

	"github.com/opentrusty/tenantguard/internal/audit"
	"github.com/opentrusty/tenantguard/internal/authz"
	"github.com/opentrusty/tenantguard/internal/boundary"
	"github.com/opentrusty/tenantguard/internal/identity"
	"github.com/opentrusty/tenantguard/internal/tenant"
)

// Store holds all collections. Values are deep-copied on the way in and out.
type Store struct {
	mu sync.RWMutex

	orgs       map[string]*tenant.Organization
	domains    map[string]string
	users      map[string]*identity.User
	roles      map[string]*authz.Role
	boundaries map[string]*boundary.DataBoundary
	audit      map[string][]*audit.Entry

	auditCap int
}

// Option configures a Store.
type Option func(*Store)

// WithAuditCap bounds the audit entries kept per organization.
func WithAuditCap(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.auditCap = n
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		orgs:       make(map[string]*tenant.Organization),
		domains:    make(map[string]string),
		users:      make(map[string]*identity.User),
		roles:      make(map[string]*authz.Role),
		boundaries: make(map[string]*boundary.DataBoundary),
		audit:      make(map[string][]*audit.Entry),
		auditCap:   audit.DefaultRetentionCap,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Organizations returns the organization repository.
func (s *Store) Organizations() *OrganizationRepository { return &OrganizationRepository{s: s} }

// Users returns the user repository.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Roles returns the role repository.
func (s *Store) Roles() *RoleRepository { return &RoleRepository{s: s} }

// Boundaries returns the boundary repository.
func (s *Store) Boundaries() *BoundaryRepository { return &BoundaryRepository{s: s} }

// Audit returns the audit store.
func (s *Store) Audit() *AuditStore { return &AuditStore{s: s} }

func copyBoundary(b *boundary.DataBoundary) *boundary.DataBoundary {
	c := *b
	return &c
}

// activeCount must be called with s.mu held.
func (s *Store) activeCount(orgID string) int {
	n := 0
	for _, u := range s.users {
		if u.OrganizationID == orgID && u.Active {
			n++
		}
	}
	return n
}
