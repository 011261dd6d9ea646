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
	"fmt"

	"github.com/opentrusty/tenantguard/internal/rbac"
)

// -----------------------------------------------------------------------------
// Role Permission Mappings
// These define the canonical permissions for each system role.
// Used for seeding and validation.
// -----------------------------------------------------------------------------

// SuperAdminPermissions defines permissions for the system_super_admin role.
var SuperAdminPermissions = []string{
	rbac.SuperAdminPermission,
}

// ServiceProviderAdminPermissions defines permissions for the service_provider_admin role.
var ServiceProviderAdminPermissions = []string{
	"*:*:organization",
	"organizations:*:global",
	"users:*:global",
	"roles:read:global",
	"audit:read:global",
	"billing:*:organization",
}

// ClientAccountManagerPermissions defines permissions for the client_account_manager role.
var ClientAccountManagerPermissions = []string{
	"users:*:organization",
	"agents:*:organization",
	"conversations:*:organization",
	"knowledge_base:*:organization",
	"integrations:*:organization",
	"settings:*:organization",
	"reports:read:organization",
	"audit:read:organization",
	"billing:read:organization",
	"roles:read:global",
}

// SupervisorPermissions defines permissions for the supervisor role.
var SupervisorPermissions = []string{
	"users:read:organization",
	"agents:*:organization",
	"conversations:*:organization",
	"tickets:*:organization",
	"knowledge_base:read:organization",
	"reports:read:organization",
}

// AgentEmployeePermissions defines permissions for the agent_employee role.
var AgentEmployeePermissions = []string{
	"conversations:*:own",
	"conversations:read:organization",
	"tickets:*:own",
	"knowledge_base:read:organization",
	"users:read:own",
	"users:update:own",
}

// ExternalClientViewPermissions defines permissions for the external_client_view role.
var ExternalClientViewPermissions = []string{
	"conversations:read:own",
	"tickets:create:own",
	"tickets:read:own",
	"reports:read:own",
}

// DefaultRoles returns a fresh copy of the six system roles, highest level first.
func DefaultRoles() []*Role {
	defs := []struct {
		id, desc string
		perms    []string
	}{
		{rbac.RoleSystemSuperAdmin, "Unrestricted platform operator", SuperAdminPermissions},
		{rbac.RoleServiceProviderAdmin, "Administers every tenant organization", ServiceProviderAdminPermissions},
		{rbac.RoleClientAccountManager, "Administers a single organization", ClientAccountManagerPermissions},
		{rbac.RoleSupervisor, "Oversees agents within an organization", SupervisorPermissions},
		{rbac.RoleAgentEmployee, "Works assigned conversations and tickets", AgentEmployeePermissions},
		{rbac.RoleExternalClientView, "Read-only customer access", ExternalClientViewPermissions},
	}

	roles := make([]*Role, 0, len(defs))
	for _, d := range defs {
		level, _ := rbac.Level(d.id)
		perms := make([]string, len(d.perms))
		copy(perms, d.perms)
		roles = append(roles, &Role{
			ID:          d.id,
			Name:        d.id,
			Level:       level,
			Description: d.desc,
			Permissions: perms,
		})
	}
	return roles
}

// ValidateCatalog checks a role set before it is seeded.
func ValidateCatalog(roles []*Role) error {
	seen := make(map[string]bool, len(roles))
	for _, r := range roles {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate role %s", ErrInvalidRole, r.ID)
		}
		seen[r.ID] = true
		if rbac.IsSuperAdmin(r.ID) {
			if len(r.Permissions) != 1 || r.Permissions[0] != rbac.SuperAdminPermission {
				return fmt.Errorf("%w: %s must hold exactly %q", ErrInvalidRole, r.ID, rbac.SuperAdminPermission)
			}
		}
	}
	return nil
}
