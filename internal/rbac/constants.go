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

package rbac

// System role IDs. A role's ID is also its name; both are persisted in
// users.role_id and must remain stable across releases.
const (
	// RoleExternalClientView is a read-only customer of a tenant.
	// Level: 1
	RoleExternalClientView = "external_client_view"

	// RoleAgentEmployee is a tenant staff member working their own queue.
	// Level: 2
	RoleAgentEmployee = "agent_employee"

	// RoleSupervisor oversees agents within one organization.
	// Level: 3
	RoleSupervisor = "supervisor"

	// RoleClientAccountManager administers a single organization.
	// Level: 4
	RoleClientAccountManager = "client_account_manager"

	// RoleServiceProviderAdmin operates the platform on behalf of tenants.
	// Level: 5
	RoleServiceProviderAdmin = "service_provider_admin"

	// RoleSystemSuperAdmin bypasses every permission and boundary check.
	// Level: 6
	// Permissions: exactly "*:*:global"
	RoleSystemSuperAdmin = "system_super_admin"
)

// DefaultRoleID is assigned to users created without an explicit role.
const DefaultRoleID = RoleAgentEmployee

// SuperAdminPermission is the single permission held by the super-admin role.
const SuperAdminPermission = "*:*:global"

// Resource types recorded in the data boundary index.
const (
	ResourceTypeOrganization = "organization"
	ResourceTypeUser         = "user"
)

var roleLevels = map[string]int{
	RoleExternalClientView:   1,
	RoleAgentEmployee:        2,
	RoleSupervisor:           3,
	RoleClientAccountManager: 4,
	RoleServiceProviderAdmin: 5,
	RoleSystemSuperAdmin:     6,
}

// Level returns the privilege level of a system role.
func Level(roleID string) (int, bool) {
	l, ok := roleLevels[roleID]
	return l, ok
}

// IsSystemRole reports whether roleID names one of the six system roles.
func IsSystemRole(roleID string) bool {
	_, ok := roleLevels[roleID]
	return ok
}

// IsSuperAdmin reports whether roleID is the super-admin sentinel.
func IsSuperAdmin(roleID string) bool {
	return roleID == RoleSystemSuperAdmin
}
