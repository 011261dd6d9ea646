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

package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentrusty/tenantguard/internal/audit"
	"github.com/opentrusty/tenantguard/internal/authz"
	"github.com/opentrusty/tenantguard/internal/boundary"
	"github.com/opentrusty/tenantguard/internal/identity"
	"github.com/opentrusty/tenantguard/internal/rbac"
	"github.com/opentrusty/tenantguard/internal/tenant"
)

var (
	_ tenant.Repository       = (*OrganizationRepository)(nil)
	_ identity.UserRepository = (*UserRepository)(nil)
	_ authz.RoleRepository    = (*RoleRepository)(nil)
	_ authz.PrincipalStore    = (*UserRepository)(nil)
	_ boundary.Repository     = (*BoundaryRepository)(nil)
	_ audit.Store             = (*AuditStore)(nil)
)

func seedOrg(t *testing.T, s *Store, id string, seats int) {
	t.Helper()
	b, err := boundary.New(id, rbac.ResourceTypeOrganization, id, boundary.AccessPrivate)
	require.NoError(t, err)
	org := &tenant.Organization{ID: id, Name: id, Plan: tenant.PlanTrial, MaxUsers: seats, Active: true, CreatedAt: time.Now()}
	require.NoError(t, s.Organizations().Create(context.Background(), org, b))
}

func newUser(id, org, email string) (*identity.User, *boundary.DataBoundary) {
	b, _ := boundary.New(org, rbac.ResourceTypeUser, id, boundary.AccessPrivate)
	return &identity.User{ID: id, OrganizationID: org, Email: email, RoleID: rbac.RoleAgentEmployee, Active: true, CreatedAt: time.Now()}, b
}

func TestOrganizations_CreateWritesBoundary(t *testing.T) {
	s := New()
	ctx := context.Background()
	domain := "acme.example"

	b, _ := boundary.New("org-1", rbac.ResourceTypeOrganization, "org-1", boundary.AccessPrivate)
	require.NoError(t, s.Organizations().Create(ctx, &tenant.Organization{ID: "org-1", Name: "Acme", Domain: &domain, Active: true}, b))

	_, err := s.Boundaries().Get(ctx, "org-1", rbac.ResourceTypeOrganization, "org-1")
	require.NoError(t, err)

	got, err := s.Organizations().GetByDomain(ctx, domain)
	require.NoError(t, err)
	assert.Equal(t, "org-1", got.ID)

	b2, _ := boundary.New("org-2", rbac.ResourceTypeOrganization, "org-2", boundary.AccessPrivate)
	err = s.Organizations().Create(ctx, &tenant.Organization{ID: "org-2", Name: "Copycat", Domain: &domain}, b2)
	assert.ErrorIs(t, err, tenant.ErrDomainTaken)

	_, err = s.Organizations().GetByID(ctx, "org-2")
	assert.ErrorIs(t, err, tenant.ErrOrganizationNotFound)
	_, err = s.Boundaries().Get(ctx, "org-2", rbac.ResourceTypeOrganization, "org-2")
	assert.ErrorIs(t, err, boundary.ErrBoundaryNotFound)
}

func TestOrganizations_UpdateKeepsCounters(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedOrg(t, s, "org-1", 5)

	u, b := newUser("u-1", "org-1", "a@acme.example")
	require.NoError(t, s.Users().Create(ctx, u, b, 5))

	org, err := s.Organizations().GetByID(ctx, "org-1")
	require.NoError(t, err)
	org.Plan = tenant.PlanStarter
	org.MaxUsers = 25
	org.UserCount = 0
	require.NoError(t, s.Organizations().Update(ctx, org))

	org, err = s.Organizations().GetByID(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 25, org.MaxUsers)
	assert.Equal(t, 1, org.UserCount)
}

func TestOrganizations_List(t *testing.T) {
	s := New()
	for i := range 5 {
		seedOrg(t, s, fmt.Sprintf("org-%d", i), 0)
	}

	page, err := s.Organizations().List(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)

	all, err := s.Organizations().List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	empty, err := s.Organizations().List(context.Background(), 10, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// TestPurpose: Validates the seat limit under concurrent creation.
// Scope: Unit Test
// Security: A tenant cannot exceed its plan by racing requests
// Expected: Exactly the seat limit of users is created; the rest fail with ErrSeatLimitExceeded.
// Test Case ID: MEM-01
func TestUsers_SeatLimitIsAtomic(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedOrg(t, s, "org-1", 5)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
	)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, b := newUser(fmt.Sprintf("u-%d", i), "org-1", fmt.Sprintf("user%d@acme.example", i))
			err := s.Users().Create(ctx, u, b, 5)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, identity.ErrSeatLimitExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, created)
	assert.Equal(t, 15, rejected)

	n, err := s.Users().CountActive(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	boundaries, err := s.Boundaries().ListByOrganization(ctx, "org-1", rbac.ResourceTypeUser)
	require.NoError(t, err)
	assert.Len(t, boundaries, 5, "rejected users must not leave boundaries behind")

	org, err := s.Organizations().GetByID(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 5, org.UserCount)
}

func TestUsers_DuplicateEmailPerOrganization(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedOrg(t, s, "org-1", 0)
	seedOrg(t, s, "org-2", 0)

	u, b := newUser("u-1", "org-1", "same@example.com")
	require.NoError(t, s.Users().Create(ctx, u, b, 0))

	u, b = newUser("u-2", "org-1", "same@example.com")
	assert.ErrorIs(t, s.Users().Create(ctx, u, b, 0), identity.ErrDuplicateEmail)

	u, b = newUser("u-3", "org-2", "same@example.com")
	require.NoError(t, s.Users().Create(ctx, u, b, 0))

	found, err := s.Users().FindByEmail(ctx, "same@example.com")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	require.NoError(t, s.Users().Deactivate(ctx, "u-1"))
	u, b = newUser("u-4", "org-1", "same@example.com")
	require.NoError(t, s.Users().Create(ctx, u, b, 0), "email frees up after deactivation")
}

func TestUsers_DeactivateRefreshesCount(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedOrg(t, s, "org-1", 2)

	for i := range 2 {
		u, b := newUser(fmt.Sprintf("u-%d", i), "org-1", fmt.Sprintf("u%d@acme.example", i))
		require.NoError(t, s.Users().Create(ctx, u, b, 2))
	}
	u, b := newUser("u-x", "org-1", "x@acme.example")
	require.ErrorIs(t, s.Users().Create(ctx, u, b, 2), identity.ErrSeatLimitExceeded)

	require.NoError(t, s.Users().Deactivate(ctx, "u-0"))
	org, _ := s.Organizations().GetByID(ctx, "org-1")
	assert.Equal(t, 1, org.UserCount)

	require.NoError(t, s.Users().Create(ctx, u, b, 2))

	got, err := s.Users().GetByID(ctx, "u-0")
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = s.Users().GetByEmail(ctx, "org-1", "u0@acme.example")
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
	assert.ErrorIs(t, s.Users().Deactivate(ctx, "missing"), identity.ErrUserNotFound)
}

func TestUsers_UnknownOrganization(t *testing.T) {
	s := New()
	u, b := newUser("u-1", "org-404", "a@b.example")
	assert.ErrorIs(t, s.Users().Create(context.Background(), u, b, 0), tenant.ErrOrganizationNotFound)
}

func TestUsers_ReturnedValuesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedOrg(t, s, "org-1", 0)
	u, b := newUser("u-1", "org-1", "a@acme.example")
	require.NoError(t, s.Users().Create(ctx, u, b, 0))

	u.RoleID = rbac.RoleSystemSuperAdmin
	got, err := s.Users().GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAgentEmployee, got.RoleID)

	now := time.Now()
	require.NoError(t, s.Users().UpdateLastLogin(ctx, "u-1", now))
	got, _ = s.Users().GetByID(ctx, "u-1")
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, got.LastLoginAt.Equal(now))
}

func TestRoles_UpsertKeepsCreatedAt(t *testing.T) {
	s := New()
	ctx := context.Background()

	role := &authz.Role{ID: "r", Name: "r", Level: 1, Permissions: []string{"a:b:own"}}
	require.NoError(t, s.Roles().Upsert(ctx, role))
	first, err := s.Roles().GetByID(ctx, "r")
	require.NoError(t, err)

	role.Permissions = []string{"a:c:own"}
	require.NoError(t, s.Roles().Upsert(ctx, role))
	second, err := s.Roles().GetByID(ctx, "r")
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, []string{"a:c:own"}, second.Permissions)

	_, err = s.Roles().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, authz.ErrRoleNotFound)
}

func TestBoundaries_UpsertUpdatesAccessLevel(t *testing.T) {
	s := New()
	ctx := context.Background()

	b, _ := boundary.New("org-1", "ticket", "t-1", boundary.AccessPublic)
	require.NoError(t, s.Boundaries().Upsert(ctx, b))
	b2, _ := boundary.New("org-1", "ticket", "t-1", boundary.AccessRestricted)
	require.NoError(t, s.Boundaries().Upsert(ctx, b2))

	got, err := s.Boundaries().Get(ctx, "org-1", "ticket", "t-1")
	require.NoError(t, err)
	assert.Equal(t, boundary.AccessRestricted, got.AccessLevel)

	_, err = s.Boundaries().Get(ctx, "org-2", "ticket", "t-1")
	assert.ErrorIs(t, err, boundary.ErrBoundaryNotFound)

	assert.ErrorIs(t, s.Boundaries().Upsert(ctx, &boundary.DataBoundary{OrganizationID: "org-1"}), boundary.ErrInvalidBoundary)
}

func TestAudit_CapAndOrder(t *testing.T) {
	s := New(WithAuditCap(3))
	ctx := context.Background()
	base := time.Now().UTC()

	for i := range 5 {
		require.NoError(t, s.Audit().Append(ctx, &audit.Entry{
			ID:             fmt.Sprintf("e-%d", i),
			OrganizationID: "org-1",
			Action:         audit.ActionCreate,
			Resource:       audit.ResourceUser,
			Timestamp:      base.Add(time.Duration(i) * time.Microsecond),
		}))
	}

	n, err := s.Audit().Count(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries, err := s.Audit().List(ctx, "org-1", 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "e-4", entries[0].ID)
	assert.Equal(t, "e-2", entries[2].ID)

	removed, err := s.Audit().Trim(ctx, "org-1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	orgs, err := s.Audit().Organizations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"org-1"}, orgs)

	other, err := s.Audit().List(ctx, "org-2", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestAudit_LateAppendsKeepTimestampOrder(t *testing.T) {
	s := New(WithAuditCap(4))
	ctx := context.Background()
	base := time.Now().UTC()

	// Appended out of timestamp order, as the asynchronous logger does.
	for _, i := range []int{2, 0, 4, 1, 3, 5} {
		require.NoError(t, s.Audit().Append(ctx, &audit.Entry{
			ID:             fmt.Sprintf("e-%d", i),
			OrganizationID: "org-1",
			Action:         audit.ActionCreate,
			Resource:       audit.ResourceUser,
			Timestamp:      base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	entries, err := s.Audit().List(ctx, "org-1", 0, 10)
	require.NoError(t, err)
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"e-5", "e-4", "e-3", "e-2"}, ids, "the cap evicts the oldest by timestamp")

	require.NoError(t, s.Audit().Append(ctx, &audit.Entry{
		ID: "e-old", OrganizationID: "org-1", Action: audit.ActionCreate, Resource: audit.ResourceUser,
		Timestamp: base.Add(-time.Second),
	}))
	entries, err = s.Audit().List(ctx, "org-1", 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "e-2", entries[3].ID, "an entry older than the whole trail is evicted at once")

	removed, err := s.Audit().Trim(ctx, "org-1", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	entries, err = s.Audit().List(ctx, "org-1", 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e-5", entries[0].ID)
	assert.Equal(t, "e-4", entries[1].ID)
}
