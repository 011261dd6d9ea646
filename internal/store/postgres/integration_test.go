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

//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/opentrusty/tenantguard/internal/authz"
	"github.com/opentrusty/tenantguard/internal/boundary"
	"github.com/opentrusty/tenantguard/internal/identity"
	"github.com/opentrusty/tenantguard/internal/rbac"
	"github.com/opentrusty/tenantguard/internal/tenant"
)

func setupPostgres(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("tenantguard"),
		postgres.WithUsername("tenantguard"),
		postgres.WithPassword("tenantguard"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("Skipping integration test: failed to start postgres: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := New(ctx, Config{URL: connStr})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "migrations must be idempotent")
	require.NoError(t, authz.NewRegistry(NewRoleRepository(db)).SeedDefaults(ctx))
	return db
}

func createOrg(t *testing.T, db *DB, id string, seats int) {
	t.Helper()
	now := time.Now().UTC()
	b, err := boundary.New(id, rbac.ResourceTypeOrganization, id, boundary.AccessPrivate)
	require.NoError(t, err)
	require.NoError(t, NewOrganizationRepository(db).Create(context.Background(), &tenant.Organization{
		ID: id, Name: id, Plan: tenant.PlanTrial, MaxUsers: seats, Active: true, CreatedAt: now, UpdatedAt: now,
	}, b))
}

func createUser(db *DB, id, org, email string, seats int) error {
	now := time.Now().UTC()
	b, _ := boundary.New(org, rbac.ResourceTypeUser, id, boundary.AccessPrivate)
	return NewUserRepository(db).Create(context.Background(), &identity.User{
		ID: id, OrganizationID: org, Email: email, PasswordHash: "x",
		RoleID: rbac.RoleAgentEmployee, Active: true, CreatedAt: now, UpdatedAt: now,
	}, b, seats)
}

// TestPurpose: Validates that the database repository maintains strict tenant isolation for users sharing an email.
// Scope: Database Integration Test
// Security: Multi-tenant Data Separation (CWE-284)
// Expected: Lookup by email is scoped to the organization, and boundaries are only visible to their owner.
// Test Case ID: ISO-01
func TestUserRepository_TenantIsolation(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	repo := NewUserRepository(db)

	createOrg(t, db, "tenant-a", 0)
	createOrg(t, db, "tenant-b", 0)
	require.NoError(t, createUser(db, "user-a", "tenant-a", "shared@example.com", 0))
	require.NoError(t, createUser(db, "user-b", "tenant-b", "shared@example.com", 0))

	foundA, err := repo.GetByEmail(ctx, "tenant-a", "SHARED@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-a", foundA.ID)

	foundB, err := repo.GetByEmail(ctx, "tenant-b", "shared@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-b", foundB.ID)

	all, err := repo.FindByEmail(ctx, "shared@example.com")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	boundaries := NewBoundaryRepository(db)
	_, err = boundaries.Get(ctx, "tenant-a", rbac.ResourceTypeUser, "user-b")
	assert.ErrorIs(t, err, boundary.ErrBoundaryNotFound)
	_, err = boundaries.Get(ctx, "tenant-b", rbac.ResourceTypeUser, "user-b")
	assert.NoError(t, err)
}

// TestPurpose: Validates the seat limit under concurrent inserts against a real database.
// Scope: Database Integration Test
// Security: Plan enforcement cannot be bypassed by racing requests
// Expected: Exactly the seat limit of users exists afterwards and the organization count matches.
// Test Case ID: ISO-02
func TestUserRepository_SeatLimitConcurrent(t *testing.T) {
	db := setupPostgres(t)
	createOrg(t, db, "tenant-s", 5)

	var wg sync.WaitGroup
	errs := make([]error, 12)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = createUser(db, fmt.Sprintf("u-%d", i), "tenant-s", fmt.Sprintf("u%d@s.example", i), 5)
		}()
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.True(t, errors.Is(err, identity.ErrSeatLimitExceeded), "unexpected error: %v", err)
	}
	assert.Equal(t, 5, created)

	org, err := NewOrganizationRepository(db).GetByID(context.Background(), "tenant-s")
	require.NoError(t, err)
	assert.Equal(t, 5, org.UserCount)
}
