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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opentrusty/tenantguard/internal/audit"
	"github.com/opentrusty/tenantguard/internal/boundary"
	"github.com/opentrusty/tenantguard/internal/id"
	"github.com/opentrusty/tenantguard/internal/rbac"
)

// Service provides organization management business logic
type Service struct {
	repo    Repository
	auditor audit.Recorder
}

// NewService creates a new organization service
func NewService(repo Repository, auditor audit.Recorder) *Service {
	if auditor == nil {
		auditor = audit.NopRecorder{}
	}
	return &Service{
		repo:    repo,
		auditor: auditor,
	}
}

// CreateOrganization creates an active organization together with its own
// data boundary. An empty plan means trial; an empty domain means none.
func (s *Service) CreateOrganization(ctx context.Context, name, domain string, plan Plan) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: organization name is required", ErrInvalidOrganization)
	}
	if len(name) > 255 {
		return nil, fmt.Errorf("%w: organization name is too long", ErrInvalidOrganization)
	}
	if plan == "" {
		plan = PlanTrial
	}
	if !plan.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, plan)
	}

	var domainPtr *string
	if d := normalizeDomain(domain); d != "" {
		if !validDomain(d) {
			return nil, fmt.Errorf("%w: invalid domain %q", ErrInvalidOrganization, domain)
		}
		domainPtr = &d
	}

	now := time.Now().UTC()
	org := &Organization{
		ID:        id.NewUUIDv7(),
		Name:      name,
		Domain:    domainPtr,
		Plan:      plan,
		MaxUsers:  plan.MaxUsers(),
		Active:    true,
		Settings:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	b, err := boundary.New(org.ID, rbac.ResourceTypeOrganization, org.ID, boundary.AccessPrivate)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, org, b); err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		OrganizationID: org.ID,
		Action:         audit.ActionCreate,
		Resource:       audit.ResourceOrganization,
		ResourceID:     org.ID,
		Metadata:       map[string]any{"name": org.Name, audit.AttrPlan: string(org.Plan)},
	})

	slog.InfoContext(ctx, "organization created",
		slog.String("organization_id", org.ID),
		slog.String("plan", string(org.Plan)),
	)
	return org, nil
}

// GetOrganization retrieves an organization by ID
func (s *Service) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	if id == "" {
		return nil, ErrOrganizationNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// GetOrganizationByDomain retrieves an organization by domain
func (s *Service) GetOrganizationByDomain(ctx context.Context, domain string) (*Organization, error) {
	d := normalizeDomain(domain)
	if d == "" {
		return nil, ErrOrganizationNotFound
	}
	return s.repo.GetByDomain(ctx, d)
}

// ListOrganizations lists organizations with pagination
func (s *Service) ListOrganizations(ctx context.Context, limit, offset int) ([]*Organization, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// ChangePlan moves an organization to another plan and applies its seat
// limit. Existing users above the new limit are kept.
func (s *Service) ChangePlan(ctx context.Context, orgID string, plan Plan, actorID string) (*Organization, error) {
	if !plan.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, plan)
	}
	org, err := s.repo.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	previous := org.Plan
	org.Plan = plan
	org.MaxUsers = plan.MaxUsers()
	org.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to update organization: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		OrganizationID: org.ID,
		UserID:         actor(actorID),
		Action:         audit.ActionUpdate,
		Resource:       audit.ResourceOrganization,
		ResourceID:     org.ID,
		Metadata:       map[string]any{audit.AttrPlan: string(plan), "previous_plan": string(previous)},
	})
	return org, nil
}

// Deactivate marks an organization inactive. Its users can no longer authenticate.
func (s *Service) Deactivate(ctx context.Context, orgID, actorID string) error {
	org, err := s.repo.GetByID(ctx, orgID)
	if err != nil {
		return err
	}
	if !org.Active {
		return nil
	}

	org.Active = false
	org.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, org); err != nil {
		return fmt.Errorf("failed to deactivate organization: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		OrganizationID: org.ID,
		UserID:         actor(actorID),
		Action:         audit.ActionDeactivate,
		Resource:       audit.ResourceOrganization,
		ResourceID:     org.ID,
	})
	return nil
}

func actor(userID string) *string {
	if userID == "" {
		return nil
	}
	return &userID
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}

func validDomain(d string) bool {
	if len(d) > 253 || !strings.Contains(d, ".") || strings.HasPrefix(d, ".") || strings.HasSuffix(d, ".") {
		return false
	}
	for _, c := range d {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '.':
		default:
			return false
		}
	}
	return true
}
