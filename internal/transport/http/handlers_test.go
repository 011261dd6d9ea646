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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentrusty/tenantguard/internal/audit"
	"github.com/opentrusty/tenantguard/internal/authz"
	"github.com/opentrusty/tenantguard/internal/engine"
	"github.com/opentrusty/tenantguard/internal/identity"
	"github.com/opentrusty/tenantguard/internal/rbac"
	"github.com/opentrusty/tenantguard/internal/store/memory"
	"github.com/opentrusty/tenantguard/internal/tenant"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "correct-horse-battery"
)

type fixture struct {
	t      *testing.T
	engine *engine.Engine
	router http.Handler
	acme   *tenant.Organization
	globex *tenant.Organization
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	e, err := engine.New(ctx, engine.MemoryStores(memory.New()), engine.Config{
		TokenSecret: testSecret,
		Hasher:      identity.NewPasswordHasher(1024, 1, 1, 16, 32),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	rl := NewRateLimiter(1000, 1000)
	t.Cleanup(rl.Stop)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})

	f := &fixture{t: t, engine: e, router: NewRouter(NewHandler(e, metrics), rl)}
	f.acme, err = e.CreateOrganization(ctx, "acme", "acme.test", tenant.PlanTrial)
	require.NoError(t, err)
	f.globex, err = e.CreateOrganization(ctx, "globex", "globex.test", tenant.PlanStarter)
	require.NoError(t, err)
	return f
}

func (f *fixture) user(orgID, email, role string) *identity.User {
	f.t.Helper()
	u, err := f.engine.CreateUser(context.Background(), identity.CreateUserRequest{
		OrganizationID: orgID, Email: email, Password: testPassword, RoleID: role,
	})
	require.NoError(f.t, err)
	return u
}

func (f *fixture) login(email string) string {
	f.t.Helper()
	w := f.do(http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: email, Password: testPassword})
	require.Equal(f.t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = f.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# metrics")
}

func TestCreateOrganization(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/organizations", "", CreateOrganizationRequest{Name: "Initech", Domain: "initech.test"})
	require.Equal(t, http.StatusCreated, w.Code)
	var org tenant.Organization
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &org))
	assert.Equal(t, tenant.PlanTrial, org.Plan)
	assert.NotEmpty(t, org.ID)

	w = f.do(http.MethodPost, "/api/v1/organizations", "", CreateOrganizationRequest{Name: "Copycat", Domain: "initech.test"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPost, "/api/v1/organizations", "", CreateOrganizationRequest{Name: "Odd", Plan: "platinum"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/organizations", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestPurpose: Validates bearer authentication on protected routes.
// Scope: Unit Test
// Security: Unauthenticated access and organization spoofing
// Expected: Missing or bad tokens get 401; X-Organization-ID gets 400; failed logins get a uniform 401.
// Test Case ID: HTTP-01
func TestAuthentication(t *testing.T) {
	f := newFixture(t)
	f.user(f.acme.ID, "alice@acme.test", rbac.RoleClientAccountManager)

	w := f.do(http.MethodGet, "/api/v1/roles", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodGet, "/api/v1/roles", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := f.login("alice@acme.test")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Organization-ID", f.globex.ID)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	wrong := f.do(http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: "alice@acme.test", Password: "wrong-password"})
	unknown := f.do(http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Email: "nobody@acme.test", Password: testPassword})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

// TestPurpose: Validates permission enforcement and denial auditing on user creation.
// Scope: Unit Test
// Security: Privilege escalation and unauthorized provisioning
// Expected: Administrators create users; agents get 403 and an access_denied entry is recorded.
// Test Case ID: HTTP-02
func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	f.user(f.acme.ID, "alice@acme.test", rbac.RoleClientAccountManager)
	f.user(f.acme.ID, "carol@acme.test", rbac.RoleAgentEmployee)
	alice := f.login("alice@acme.test")
	carol := f.login("carol@acme.test")

	w := f.do(http.MethodPost, "/api/v1/users", alice, CreateUserRequest{Email: "dave@acme.test", Password: testPassword})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created identity.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, f.acme.ID, created.OrganizationID)
	assert.Equal(t, rbac.RoleAgentEmployee, created.RoleID)
	assert.NotContains(t, w.Body.String(), "argon2", "password hash never leaves the service")

	w = f.do(http.MethodPost, "/api/v1/users", alice, CreateUserRequest{Email: "dave@acme.test", Password: testPassword})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPost, "/api/v1/users", alice, CreateUserRequest{Email: "root@acme.test", Password: testPassword, Role: rbac.RoleSystemSuperAdmin})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/api/v1/users", alice, CreateUserRequest{Email: "eve@globex.test", Password: testPassword, OrganizationID: f.globex.ID})
	assert.Equal(t, http.StatusForbidden, w.Code, "organization scope does not reach other tenants")

	w = f.do(http.MethodPost, "/api/v1/users", carol, CreateUserRequest{Email: "mallory@acme.test", Password: testPassword})
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Eventually(t, func() bool {
		page, err := f.engine.GetAuditLogs(context.Background(), f.acme.ID, 1, 100)
		if err != nil {
			return false
		}
		for _, e := range page.Entries {
			if e.Action == audit.ActionAccessDenied && e.UserID != nil && *e.UserID != "" &&
				e.Metadata[audit.AttrPermission] == "users:create:organization" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateUser_SeatLimit(t *testing.T) {
	f := newFixture(t)
	f.user(f.acme.ID, "alice@acme.test", rbac.RoleClientAccountManager)
	for _, email := range []string{"a@acme.test", "b@acme.test", "c@acme.test", "d@acme.test"} {
		f.user(f.acme.ID, email, "")
	}
	alice := f.login("alice@acme.test")

	w := f.do(http.MethodPost, "/api/v1/users", alice, CreateUserRequest{Email: "sixth@acme.test", Password: testPassword})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "seat limit")
}

// TestPurpose: Validates the permission and boundary check endpoints.
// Scope: Unit Test
// Security: Tenant isolation of boundary checks
// Expected: Decisions follow the caller's role; cross-tenant boundaries report false; batches keep order.
// Test Case ID: HTTP-03
func TestChecks(t *testing.T) {
	f := newFixture(t)
	alice := f.user(f.acme.ID, "alice@acme.test", rbac.RoleClientAccountManager)
	bob := f.user(f.globex.ID, "bob@globex.test", rbac.RoleClientAccountManager)
	token := f.login("alice@acme.test")

	w := f.do(http.MethodPost, "/api/v1/authz/check", token, CheckPermissionRequest{Resource: "users", Action: "read"})
	require.Equal(t, http.StatusOK, w.Code)
	var d authz.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.True(t, d.Allowed)
	assert.Equal(t, "users:*:organization", d.MatchedPattern)

	w = f.do(http.MethodPost, "/api/v1/authz/batch", token, CheckBatchRequest{Operations: []authz.Operation{
		{Resource: "billing", Action: "write", Scope: authz.ScopeGlobal},
		{Resource: "agents", Action: "create"},
	}})
	require.Equal(t, http.StatusOK, w.Code)
	var batch struct {
		Results []authz.BatchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))
	require.Len(t, batch.Results, 2)
	assert.False(t, batch.Results[0].Allowed)
	assert.Equal(t, "billing", batch.Results[0].Operation.Resource)
	assert.True(t, batch.Results[1].Allowed)

	w = f.do(http.MethodPost, "/api/v1/authz/batch", token, CheckBatchRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var b struct {
		Allowed bool `json:"allowed"`
	}
	w = f.do(http.MethodGet, "/api/v1/boundaries/user/"+alice.ID, token, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.True(t, b.Allowed)

	w = f.do(http.MethodGet, "/api/v1/boundaries/user/"+bob.ID, token, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.False(t, b.Allowed)
}

func TestDeactivateUser(t *testing.T) {
	f := newFixture(t)
	f.user(f.acme.ID, "alice@acme.test", rbac.RoleClientAccountManager)
	carol := f.user(f.acme.ID, "carol@acme.test", rbac.RoleAgentEmployee)
	bob := f.user(f.globex.ID, "bob@globex.test", rbac.RoleAgentEmployee)
	alice := f.login("alice@acme.test")
	carolToken := f.login("carol@acme.test")

	w := f.do(http.MethodDelete, "/api/v1/users/"+bob.ID, alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodDelete, "/api/v1/users/"+carol.ID, alice, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodPost, "/api/v1/authz/check", carolToken, CheckPermissionRequest{Resource: "tickets", Action: "read", Scope: authz.ScopeOwn})
	var d authz.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.False(t, d.Allowed, "deactivated users lose access with a still-valid token")
	assert.Equal(t, authz.ReasonPrincipalUnavailable, d.Reason)
}

func TestRolesAndAudit(t *testing.T) {
	f := newFixture(t)
	f.user(f.acme.ID, "alice@acme.test", rbac.RoleClientAccountManager)
	f.user(f.acme.ID, "carol@acme.test", rbac.RoleAgentEmployee)
	alice := f.login("alice@acme.test")
	carol := f.login("carol@acme.test")

	w := f.do(http.MethodGet, "/api/v1/roles", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var roles struct {
		Roles []authz.Role `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &roles))
	assert.Len(t, roles.Roles, 6)

	w = f.do(http.MethodGet, "/api/v1/roles", carol, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	_, err := f.engine.LogAudit(context.Background(), f.acme.ID, nil, "export", "report", "r-1", nil)
	require.NoError(t, err)

	w = f.do(http.MethodGet, "/api/v1/audit?limit=10", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page audit.Page
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 10, page.Limit)
	for _, e := range page.Entries {
		assert.Equal(t, f.acme.ID, e.OrganizationID)
	}

	w = f.do(http.MethodGet, "/api/v1/audit?organization_id="+f.globex.ID, alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// TestPurpose: Validates per-client rate limiting and which address a client is keyed under.
// Scope: Unit Test
// Security: A client cannot rotate X-Forwarded-For to escape the limit (CWE-348)
// Expected: Without a trusted proxy the key is RemoteAddr; behind one it is the rightmost untrusted hop.
// Test Case ID: HTTP-RL-01
func TestRateLimit(t *testing.T) {
	newLimited := func(t *testing.T, proxies ...string) http.Handler {
		rl := NewRateLimiter(0.001, 1)
		t.Cleanup(rl.Stop)
		require.NoError(t, rl.TrustProxies(proxies))
		return RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	}
	send := func(h http.Handler, remote, xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	t.Run("direct clients", func(t *testing.T) {
		h := newLimited(t)
		assert.Equal(t, http.StatusOK, send(h, "203.0.113.7:5000", ""))
		assert.Equal(t, http.StatusTooManyRequests, send(h, "203.0.113.7:5001", ""))
		assert.Equal(t, http.StatusOK, send(h, "198.51.100.2:5000", ""))
	})

	t.Run("forwarded header ignored without trusted proxy", func(t *testing.T) {
		h := newLimited(t)
		assert.Equal(t, http.StatusOK, send(h, "203.0.113.7:5000", "192.0.2.10"))
		assert.Equal(t, http.StatusTooManyRequests, send(h, "203.0.113.7:5000", "192.0.2.11"))
		assert.Equal(t, http.StatusTooManyRequests, send(h, "203.0.113.7:5000", "192.0.2.12, 10.0.0.1"))
	})

	t.Run("behind trusted proxy", func(t *testing.T) {
		h := newLimited(t, "10.0.0.0/8")
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.5:443", "203.0.113.7, 10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, send(h, "10.0.0.6:443", "203.0.113.7"))
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.5:443", "198.51.100.2"))

		// Spoofed hops left of the first untrusted one do not change the key.
		assert.Equal(t, http.StatusTooManyRequests, send(h, "10.0.0.5:443", "192.0.2.99, 203.0.113.7, 10.0.0.1"))
	})

	t.Run("untrusted peer claiming a trusted hop", func(t *testing.T) {
		h := newLimited(t, "10.0.0.0/8")
		assert.Equal(t, http.StatusOK, send(h, "203.0.113.7:5000", "10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, send(h, "203.0.113.7:5000", "198.51.100.2"))
	})
}

func TestRateLimiter_TrustProxies(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()

	require.NoError(t, rl.TrustProxies([]string{"10.0.0.0/8", " 192.0.2.1 ", "", "::1"}))
	assert.True(t, rl.isTrusted("10.1.2.3"))
	assert.True(t, rl.isTrusted("192.0.2.1"))
	assert.False(t, rl.isTrusted("192.0.2.2"))
	assert.True(t, rl.isTrusted("::1"))
	assert.False(t, rl.isTrusted("not-an-ip"))

	assert.Error(t, rl.TrustProxies([]string{"10.0.0.0/33"}))
	assert.Error(t, rl.TrustProxies([]string{"proxy.internal"}))
}
