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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentrusty/tenantguard/internal/rbac"
)

func TestRegistry_ListRoles(t *testing.T) {
	reg := NewRegistry(newMemRoles())
	ctx := context.Background()
	require.NoError(t, reg.SeedDefaults(ctx))
	require.NoError(t, reg.SeedDefaults(ctx))

	roles, err := reg.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 6)
	for i, want := range []int{6, 5, 4, 3, 2, 1} {
		assert.Equal(t, want, roles[i].Level)
	}
	assert.Equal(t, rbac.RoleSystemSuperAdmin, roles[0].ID)
	assert.Equal(t, []string{rbac.SuperAdminPermission}, roles[0].Permissions)
}

func TestRegistry_GetRole(t *testing.T) {
	reg := NewRegistry(newMemRoles())
	ctx := context.Background()
	require.NoError(t, reg.SeedDefaults(ctx))

	role, err := reg.GetRole(ctx, rbac.RoleSupervisor)
	require.NoError(t, err)
	assert.Equal(t, 3, role.Level)

	role.Permissions[0] = "*:*:*"
	again, err := reg.GetRole(ctx, rbac.RoleSupervisor)
	require.NoError(t, err)
	assert.NotEqual(t, "*:*:*", again.Permissions[0], "callers must not alter the snapshot")

	_, err = reg.GetRole(ctx, "ghost")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRegistry_MissFallsBackWithoutMutation(t *testing.T) {
	repo := newMemRoles()
	reg := NewRegistry(repo)
	ctx := context.Background()
	require.NoError(t, reg.SeedDefaults(ctx))

	require.NoError(t, repo.Upsert(ctx, &Role{ID: "auditor", Name: "auditor", Level: 2, Permissions: []string{"audit:read:organization"}}))

	role, err := reg.GetRole(ctx, "auditor")
	require.NoError(t, err)
	assert.Equal(t, "auditor", role.Name)

	roles, err := reg.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 6)

	require.NoError(t, reg.Reload(ctx))
	roles, err = reg.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 7)
}

func TestRegistry_SeedRejectsBadCatalog(t *testing.T) {
	reg := NewRegistry(newMemRoles())
	ctx := context.Background()

	roles := DefaultRoles()
	roles[0].Permissions = append(roles[0].Permissions, "users:read:global")
	assert.ErrorIs(t, reg.Seed(ctx, roles), ErrInvalidRole)

	roles = DefaultRoles()
	roles[3].Permissions = []string{"users:read"}
	assert.ErrorIs(t, reg.Seed(ctx, roles), ErrInvalidRole)

	roles = append(DefaultRoles(), DefaultRoles()[0])
	assert.ErrorIs(t, reg.Seed(ctx, roles), ErrInvalidRole)
}
