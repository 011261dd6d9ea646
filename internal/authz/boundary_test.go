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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentrusty/tenantguard/internal/boundary"
)

// TestPurpose: Validates that principals only reach resources indexed under their own organization.
// Scope: Unit Test
// Security: Tenant isolation
// Expected: Cross-tenant and unindexed resources are denied; super-admin reaches everything.
// Test Case ID: AUTHZ-05
func TestEnforceBoundary(t *testing.T) {
	obs := newCountingObserver()
	svc, _, _ := newTestService(t, WithObserver(obs))
	ctx := context.Background()

	_, err := svc.CreateDataBoundary(ctx, "org-acme", "ticket", "t-1", "")
	require.NoError(t, err)
	_, err = svc.CreateDataBoundary(ctx, "org-globex", "ticket", "t-2", boundary.AccessRestricted)
	require.NoError(t, err)

	tests := []struct {
		name     string
		user     string
		resource string
		want     bool
	}{
		{"own tenant", "u-alice", "t-1", true},
		{"other tenant", "u-alice", "t-2", false},
		{"other tenant reversed", "u-bob", "t-1", false},
		{"bob own tenant", "u-bob", "t-2", true},
		{"unindexed resource", "u-alice", "t-404", false},
		{"super admin any tenant", "u-root", "t-2", true},
		{"super admin unindexed", "u-root", "t-404", true},
		{"inactive user", "u-off", "t-1", false},
		{"unknown user", "u-nobody", "t-1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.EnforceBoundary(ctx, tt.user, "ticket", tt.resource))
		})
	}

	assert.False(t, svc.EnforceBoundary(ctx, "u-alice", "", "t-1"))
	assert.Equal(t, 4, obs.boundary[true])
}

func TestEnforceBoundary_StoreError(t *testing.T) {
	svc, _, boundaries := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateDataBoundary(ctx, "org-acme", "ticket", "t-1", boundary.AccessPrivate)
	require.NoError(t, err)
	boundaries.err = errors.New("timeout")

	assert.False(t, svc.EnforceBoundary(ctx, "u-alice", "ticket", "t-1"))
}

func TestCreateDataBoundary(t *testing.T) {
	svc, _, boundaries := newTestService(t)
	ctx := context.Background()

	b, err := svc.CreateDataBoundary(ctx, "org-acme", "report", "r-1", boundary.AccessPublic)
	require.NoError(t, err)
	assert.Equal(t, boundary.AccessPublic, b.AccessLevel)

	b, err = svc.CreateDataBoundary(ctx, "org-acme", "report", "r-1", boundary.AccessRestricted)
	require.NoError(t, err)
	listed, err := boundaries.ListByOrganization(ctx, "org-acme", "report")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, boundary.AccessRestricted, listed[0].AccessLevel)

	_, err = svc.CreateDataBoundary(ctx, "", "report", "r-2", boundary.AccessPublic)
	assert.ErrorIs(t, err, boundary.ErrInvalidBoundary)

	_, err = svc.CreateDataBoundary(ctx, "org-acme", "report", "r-2", boundary.AccessLevel("secret"))
	assert.ErrorIs(t, err, boundary.ErrInvalidAccessLevel)
}
