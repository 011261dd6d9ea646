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
	"fmt"
	"log/slog"

	"github.com/opentrusty/tenantguard/internal/rbac"
	"github.com/opentrusty/tenantguard/internal/tenant"
)

// BootstrapConfig names the initial super-admin account.
type BootstrapConfig struct {
	Email            string
	Password         string
	OrganizationName string
}

// OrganizationCreator creates the operator organization during bootstrap.
type OrganizationCreator interface {
	CreateOrganization(ctx context.Context, name, domain string, plan tenant.Plan) (*tenant.Organization, error)
}

// BootstrapService creates the first super-admin of an empty installation
type BootstrapService struct {
	identity *Service
	orgs     OrganizationCreator
}

// NewBootstrapService creates a new bootstrap service
func NewBootstrapService(identity *Service, orgs OrganizationCreator) *BootstrapService {
	return &BootstrapService{identity: identity, orgs: orgs}
}

// Bootstrap creates an operator organization on the enterprise plan and a
// super-admin in it. It does nothing when cfg.Email is empty or an active
// super-admin with that email already exists.
func (s *BootstrapService) Bootstrap(ctx context.Context, cfg BootstrapConfig) (*User, error) {
	email := NormalizeEmail(cfg.Email)
	if email == "" {
		return nil, nil
	}

	existing, err := s.identity.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up bootstrap user: %w", err)
	}
	for _, u := range existing {
		if rbac.IsSuperAdmin(u.RoleID) {
			return u, nil
		}
	}

	name := cfg.OrganizationName
	if name == "" {
		name = "Platform Operators"
	}
	org, err := s.orgs.CreateOrganization(ctx, name, "", tenant.PlanEnterprise)
	if err != nil {
		return nil, fmt.Errorf("failed to create operator organization: %w", err)
	}

	user, err := s.identity.CreateUser(ctx, CreateUserRequest{
		OrganizationID: org.ID,
		Email:          email,
		Password:       cfg.Password,
		RoleID:         rbac.RoleSystemSuperAdmin,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap super-admin: %w", err)
	}

	slog.InfoContext(ctx, "bootstrapped initial super-admin",
		slog.String("organization_id", org.ID),
		slog.String("user_id", user.ID),
	)
	return user, nil
}
