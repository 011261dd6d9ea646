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

// Package engine wires the role registry, resolver, boundary enforcer,
// tenant and identity services and the audit logger over one set of
// stores. It is the surface the transport layer and the CLI call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/opentrusty/tenantguard/internal/audit"
	"github.com/opentrusty/tenantguard/internal/authz"
	"github.com/opentrusty/tenantguard/internal/boundary"
	"github.com/opentrusty/tenantguard/internal/identity"
	"github.com/opentrusty/tenantguard/internal/tenant"
)

// Stores is one backend's set of repositories.
type Stores struct {
	Organizations tenant.Repository
	Users         identity.UserRepository
	Roles         authz.RoleRepository
	Boundaries    boundary.Repository
	Audit         audit.Store
	// Closer, when set, is closed by Engine.Close after the audit queue drains.
	Closer io.Closer
}

func (s Stores) validate() error {
	if s.Organizations == nil || s.Users == nil || s.Roles == nil || s.Boundaries == nil || s.Audit == nil {
		return errors.New("engine: every store must be set")
	}
	return nil
}

// Config configures an Engine.
type Config struct {
	TokenSecret string
	TokenIssuer string
	TokenTTL    time.Duration

	// Hasher defaults to argon2id with 64 MiB, 3 passes and 4 lanes.
	Hasher *identity.PasswordHasher

	AuditBufferSize int

	PrincipalCacheSize int
	PrincipalCacheTTL  time.Duration

	Observer authz.Observer
	Tracer   trace.Tracer

	// SkipSeed leaves the role catalog untouched on start.
	SkipSeed bool
}

// Engine is the multi-tenant authorization engine.
type Engine struct {
	stores   Stores
	authz    *authz.Service
	tenants  *tenant.Service
	identity *identity.Service
	audit    *audit.Logger
}

// New builds an engine and seeds the system role catalog.
func New(ctx context.Context, stores Stores, cfg Config) (*Engine, error) {
	if err := stores.validate(); err != nil {
		return nil, err
	}

	issuer := cfg.TokenIssuer
	if issuer == "" {
		issuer = "tenantguard"
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	tokens, err := identity.NewTokenIssuer(cfg.TokenSecret, issuer, ttl)
	if err != nil {
		return nil, err
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = identity.NewPasswordHasher(64*1024, 3, 4, 16, 32)
	}

	registry := authz.NewRegistry(stores.Roles)
	if !cfg.SkipSeed {
		if err := registry.SeedDefaults(ctx); err != nil {
			return nil, fmt.Errorf("failed to seed roles: %w", err)
		}
	}

	opts := []authz.Option{authz.WithPrincipalCache(cfg.PrincipalCacheSize, cfg.PrincipalCacheTTL)}
	if cfg.Observer != nil {
		opts = append(opts, authz.WithObserver(cfg.Observer))
	}
	if cfg.Tracer != nil {
		opts = append(opts, authz.WithTracer(cfg.Tracer))
	}

	logger := audit.NewLogger(stores.Audit, audit.Config{BufferSize: cfg.AuditBufferSize})

	authzSvc := authz.NewService(stores.Users, registry, stores.Boundaries, opts...)
	identitySvc := identity.NewService(stores.Users, stores.Organizations, hasher, tokens, logger)
	identitySvc.OnDeactivate(authzSvc.Invalidate)

	return &Engine{
		stores:   stores,
		authz:    authzSvc,
		tenants:  tenant.NewService(stores.Organizations, logger),
		identity: identitySvc,
		audit:    logger,
	}, nil
}

// HasPermission decides whether userID may perform action on resource at scope.
// An empty scope means organization.
func (e *Engine) HasPermission(ctx context.Context, userID, resource, action string, scope authz.Scope) authz.Decision {
	return e.authz.HasPermission(ctx, userID, resource, action, scope)
}

// EnforceBoundary reports whether the resource lives in userID's organization.
func (e *Engine) EnforceBoundary(ctx context.Context, userID, resourceType, resourceID string) bool {
	return e.authz.EnforceBoundary(ctx, userID, resourceType, resourceID)
}

// ValidateBatch evaluates every operation for userID, in order.
func (e *Engine) ValidateBatch(ctx context.Context, userID string, ops []authz.Operation) []authz.BatchResult {
	return e.authz.ValidateBatch(ctx, userID, ops)
}

// CreateOrganization creates an organization and its boundary. An empty
// plan means trial.
func (e *Engine) CreateOrganization(ctx context.Context, name, domain string, plan tenant.Plan) (*tenant.Organization, error) {
	return e.tenants.CreateOrganization(ctx, name, domain, plan)
}

// GetOrganization retrieves an organization by ID.
func (e *Engine) GetOrganization(ctx context.Context, id string) (*tenant.Organization, error) {
	return e.tenants.GetOrganization(ctx, id)
}

// ChangePlan moves an organization to plan.
func (e *Engine) ChangePlan(ctx context.Context, orgID string, plan tenant.Plan, actorID string) (*tenant.Organization, error) {
	return e.tenants.ChangePlan(ctx, orgID, plan, actorID)
}

// DeactivateOrganization marks an organization inactive.
func (e *Engine) DeactivateOrganization(ctx context.Context, orgID, actorID string) error {
	return e.tenants.Deactivate(ctx, orgID, actorID)
}

// CreateUser creates a user and its boundary within the seat limit.
func (e *Engine) CreateUser(ctx context.Context, req identity.CreateUserRequest) (*identity.User, error) {
	return e.identity.CreateUser(ctx, req)
}

// GetUser retrieves a user by ID.
func (e *Engine) GetUser(ctx context.Context, userID string) (*identity.User, error) {
	return e.identity.GetUser(ctx, userID)
}

// ListUsers lists the users of an organization.
func (e *Engine) ListUsers(ctx context.Context, orgID string) ([]*identity.User, error) {
	return e.identity.ListUsers(ctx, orgID)
}

// DeactivateUser marks a user inactive and drops it from the principal cache.
func (e *Engine) DeactivateUser(ctx context.Context, userID, actorID string) error {
	return e.identity.DeactivateUser(ctx, userID, actorID)
}

// Authenticate returns nil on any failure.
func (e *Engine) Authenticate(ctx context.Context, email, password, orgID string) *identity.AuthResult {
	return e.identity.Authenticate(ctx, email, password, orgID)
}

// VerifyToken parses a token issued by Authenticate.
func (e *Engine) VerifyToken(token string) (*identity.Claims, error) {
	return e.identity.VerifyToken(token)
}

// Bootstrap creates the first super-admin when cfg.Email is set and none exists.
func (e *Engine) Bootstrap(ctx context.Context, cfg identity.BootstrapConfig) (*identity.User, error) {
	return identity.NewBootstrapService(e.identity, e.tenants).Bootstrap(ctx, cfg)
}

// CreateDataBoundary registers a resource as belonging to an organization.
func (e *Engine) CreateDataBoundary(ctx context.Context, orgID, resourceType, resourceID string, level boundary.AccessLevel) (*boundary.DataBoundary, error) {
	return e.authz.CreateDataBoundary(ctx, orgID, resourceType, resourceID, level)
}

// GetRole returns a role from the catalog snapshot.
func (e *Engine) GetRole(ctx context.Context, roleID string) (*authz.Role, error) {
	return e.authz.Registry().GetRole(ctx, roleID)
}

// ListRoles returns the catalog, highest level first.
func (e *Engine) ListRoles(ctx context.Context) ([]*authz.Role, error) {
	return e.authz.Registry().ListRoles(ctx)
}

// SeedRoles upserts roles and refreshes the snapshot. A nil slice seeds
// the system catalog.
func (e *Engine) SeedRoles(ctx context.Context, roles []*authz.Role) error {
	if roles == nil {
		return e.authz.Registry().SeedDefaults(ctx)
	}
	return e.authz.Registry().Seed(ctx, roles)
}

// LogAudit appends one entry synchronously and reports store failures.
func (e *Engine) LogAudit(ctx context.Context, orgID string, userID *string, action, resource, resourceID string, metadata map[string]any) (*audit.Entry, error) {
	return e.audit.Append(ctx, orgID, userID, action, resource, resourceID, metadata)
}

// RecordAudit queues one entry. Failures are logged, never returned.
func (e *Engine) RecordAudit(ctx context.Context, entry audit.Entry) {
	e.audit.Record(ctx, entry)
}

// GetAuditLogs returns one page of an organization's trail, newest first.
func (e *Engine) GetAuditLogs(ctx context.Context, orgID string, page, limit int) (*audit.Page, error) {
	return e.audit.Query(ctx, orgID, page, limit)
}

// Close drains the audit queue and closes the stores.
func (e *Engine) Close() error {
	err := e.audit.Close()
	if e.stores.Closer != nil {
		if cerr := e.stores.Closer.Close(); cerr != nil {
			slog.Error("failed to close store", slog.String("error", cerr.Error()))
			if err == nil {
				err = cerr
			}
		}
	}
	return err
}
