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

package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/opentrusty/tenantguard/internal/audit"
	"github.com/opentrusty/tenantguard/internal/boundary"
	"github.com/opentrusty/tenantguard/internal/rbac"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Create(ctx context.Context, org *Organization, b *boundary.DataBoundary) error {
	args := m.Called(ctx, org, b)
	return args.Error(0)
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*Organization, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Organization), args.Error(1)
}

func (m *mockRepo) GetByDomain(ctx context.Context, domain string) (*Organization, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Organization), args.Error(1)
}

func (m *mockRepo) Update(ctx context.Context, org *Organization) error {
	args := m.Called(ctx, org)
	return args.Error(0)
}

func (m *mockRepo) List(ctx context.Context, limit, offset int) ([]*Organization, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]*Organization), args.Error(1)
}

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Record(ctx context.Context, entry audit.Entry) {
	m.Called(ctx, entry)
}

// TestPurpose: Validates that organization creation defaults to the trial plan, uses UUIDv7 ids and writes its own boundary.
// Scope: Unit Test
// Security: Every organization is registered in the data boundary index
// Expected: Organization is active on trial with 5 seats and a boundary (org, "organization", org.ID).
// Test Case ID: TEN-01
func TestTenant_Service_CreateOrganization_Defaults(t *testing.T) {
	repo := new(mockRepo)
	auditor := new(mockAudit)
	service := NewService(repo, auditor)
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*tenant.Organization"), mock.MatchedBy(func(b *boundary.DataBoundary) bool {
		return b.ResourceType == rbac.ResourceTypeOrganization && b.ResourceID == b.OrganizationID && b.AccessLevel == boundary.AccessPrivate
	})).Return(nil)
	auditor.On("Record", ctx, mock.MatchedBy(func(e audit.Entry) bool {
		return e.Action == audit.ActionCreate && e.Resource == audit.ResourceOrganization && e.UserID == nil
	})).Return()

	org, err := service.CreateOrganization(ctx, "  acme ", "", "")
	require.NoError(t, err)

	assert.Equal(t, "acme", org.Name)
	assert.Equal(t, PlanTrial, org.Plan)
	assert.Equal(t, 5, org.MaxUsers)
	assert.True(t, org.Active)
	assert.Nil(t, org.Domain)

	uid, err := uuid.Parse(org.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), uid.Version())

	b := repo.Calls[0].Arguments.Get(2).(*boundary.DataBoundary)
	assert.Equal(t, org.ID, b.OrganizationID)

	repo.AssertExpectations(t)
	auditor.AssertExpectations(t)
}

// TestPurpose: Validates input validation for organization creation.
// Scope: Unit Test
// Expected: Empty names, unknown plans and malformed domains are rejected without touching the store.
// Test Case ID: TEN-02
func TestTenant_Service_CreateOrganization_Validation(t *testing.T) {
	tests := []struct {
		name    string
		orgName string
		domain  string
		plan    Plan
		wantErr error
	}{
		{"empty name", "   ", "", PlanTrial, ErrInvalidOrganization},
		{"unknown plan", "acme", "", Plan("gold"), ErrInvalidPlan},
		{"bad domain", "acme", "not a domain", PlanTrial, ErrInvalidOrganization},
		{"dotless domain", "acme", "localhost", PlanTrial, ErrInvalidOrganization},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockRepo)
			service := NewService(repo, new(mockAudit))

			_, err := service.CreateOrganization(context.Background(), tt.orgName, tt.domain, tt.plan)
			assert.ErrorIs(t, err, tt.wantErr)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

// TestPurpose: Validates that a taken domain surfaces ErrDomainTaken and emits no audit entry.
// Scope: Unit Test
// Expected: Error wraps ErrDomainTaken; domain is lower-cased before storage.
// Test Case ID: TEN-03
func TestTenant_Service_CreateOrganization_DomainTaken(t *testing.T) {
	repo := new(mockRepo)
	auditor := new(mockAudit)
	service := NewService(repo, auditor)
	ctx := context.Background()

	repo.On("Create", ctx, mock.MatchedBy(func(o *Organization) bool {
		return o.Domain != nil && *o.Domain == "acme.test"
	}), mock.Anything).Return(ErrDomainTaken)

	_, err := service.CreateOrganization(ctx, "Acme", "ACME.test", PlanStarter)
	assert.ErrorIs(t, err, ErrDomainTaken)
	auditor.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

// TestPurpose: Validates plan changes apply the new seat limit and are audited.
// Scope: Unit Test
// Expected: Plan and MaxUsers updated; audit action "update" carries the actor.
// Test Case ID: TEN-04
func TestTenant_Service_ChangePlan(t *testing.T) {
	repo := new(mockRepo)
	auditor := new(mockAudit)
	service := NewService(repo, auditor)
	ctx := context.Background()

	org := &Organization{ID: "org-1", Name: "acme", Plan: PlanTrial, MaxUsers: 5, Active: true}
	repo.On("GetByID", ctx, "org-1").Return(org, nil)
	repo.On("Update", ctx, mock.MatchedBy(func(o *Organization) bool {
		return o.Plan == PlanProfessional && o.MaxUsers == 100
	})).Return(nil)
	auditor.On("Record", ctx, mock.MatchedBy(func(e audit.Entry) bool {
		return e.Action == audit.ActionUpdate && e.UserID != nil && *e.UserID == "admin-1"
	})).Return()

	updated, err := service.ChangePlan(ctx, "org-1", PlanProfessional, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 100, updated.MaxUsers)

	_, err = service.ChangePlan(ctx, "org-1", Plan("platinum"), "admin-1")
	assert.ErrorIs(t, err, ErrInvalidPlan)

	repo.AssertExpectations(t)
	auditor.AssertExpectations(t)
}

// TestPurpose: Validates that deactivation is a soft, idempotent update.
// Scope: Unit Test
// Security: Organizations are never hard-deleted
// Expected: First call updates Active=false; second call is a no-op.
// Test Case ID: TEN-05
func TestTenant_Service_Deactivate(t *testing.T) {
	repo := new(mockRepo)
	auditor := new(mockAudit)
	service := NewService(repo, auditor)
	ctx := context.Background()

	org := &Organization{ID: "org-1", Active: true}
	repo.On("GetByID", ctx, "org-1").Return(org, nil)
	repo.On("Update", ctx, mock.MatchedBy(func(o *Organization) bool { return !o.Active })).Return(nil).Once()
	auditor.On("Record", ctx, mock.Anything).Return().Once()

	require.NoError(t, service.Deactivate(ctx, "org-1", ""))
	require.NoError(t, service.Deactivate(ctx, "org-1", ""))

	repo.AssertNumberOfCalls(t, "Update", 1)
	auditor.AssertExpectations(t)
}

// TestPurpose: Validates that lookups with empty identifiers never reach the store.
// Scope: Unit Test
// Security: Empty tenant IDs must not resolve to any organization
// Expected: ErrOrganizationNotFound without a repository call.
// Test Case ID: TEN-06
func TestTenant_Service_EmptyIdentifiers(t *testing.T) {
	repo := new(mockRepo)
	service := NewService(repo, nil)
	ctx := context.Background()

	_, err := service.GetOrganization(ctx, "")
	assert.ErrorIs(t, err, ErrOrganizationNotFound)
	_, err = service.GetOrganizationByDomain(ctx, "  ")
	assert.ErrorIs(t, err, ErrOrganizationNotFound)

	repo.On("GetByID", ctx, "missing").Return(nil, ErrOrganizationNotFound)
	_, err = service.GetOrganization(ctx, "missing")
	assert.True(t, errors.Is(err, ErrOrganizationNotFound))
	repo.AssertNumberOfCalls(t, "GetByID", 1)
}

func TestPlan(t *testing.T) {
	tests := []struct {
		in      string
		want    Plan
		seats   int
		wantErr bool
	}{
		{"", PlanTrial, 5, false},
		{"trial", PlanTrial, 5, false},
		{"starter", PlanStarter, 25, false},
		{"professional", PlanProfessional, 100, false},
		{"enterprise", PlanEnterprise, 0, false},
		{"gold", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParsePlan(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPlan)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
			assert.Equal(t, tt.seats, p.MaxUsers())
		})
	}

	org := &Organization{MaxUsers: 2}
	assert.True(t, org.SeatsAvailable(1))
	assert.False(t, org.SeatsAvailable(2))
	assert.True(t, (&Organization{}).SeatsAvailable(10_000))
}
