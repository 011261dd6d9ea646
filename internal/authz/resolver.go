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
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opentrusty/tenantguard/internal/observability/logger"
	"github.com/opentrusty/tenantguard/internal/rbac"
)

// Decision reasons.
const (
	ReasonPrincipalUnavailable = "principal not found/inactive"
	ReasonRoleNotFound         = "role not found"
	ReasonFullAccess           = "full access"
	ReasonExactMatch           = "exact match"
	ReasonWildcardMatch        = "wildcard match"
	ReasonNoMatch              = "no matching permission"
	ReasonResolverError        = "resolver error"
	ReasonInvalidRequest       = "invalid permission request"
)

// Decision is the outcome of a permission check. A zero Decision denies.
type Decision struct {
	Allowed         bool     `json:"allowed"`
	RoleLevel       int      `json:"role_level,omitempty"`
	RoleName        string   `json:"role_name,omitempty"`
	Reason          string   `json:"reason"`
	MatchedPattern  string   `json:"matched_pattern,omitempty"`
	Requested       string   `json:"requested,omitempty"`
	RolePermissions []string `json:"role_permissions,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// HasPermission decides whether userID may perform action on resource at
// scope. An empty scope means organization. Every failure is a denial.
func (s *Service) HasPermission(ctx context.Context, userID, resource, action string, scope Scope) (d Decision) {
	start := time.Now()
	req := requested(resource, action, scope)

	ctx, span := s.tracer.Start(ctx, "authz.HasPermission", trace.WithAttributes(
		attribute.String("authz.user_id", userID),
		attribute.String("authz.permission", req.String()),
	))
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic during permission check", logger.UserID(userID), slog.Any("panic", r))
			d = Decision{Reason: ReasonResolverError, Requested: req.String(), Error: fmt.Sprint(r)}
		}
		finish(span, d)
		s.observer.ObserveDecision(ctx, d.Allowed, d.Reason, time.Since(start))
	}()

	role, denial := s.resolve(ctx, userID, req)
	if role == nil {
		return denial
	}
	return evaluate(role, req)
}

// resolve loads the principal's role. On failure it returns the denial to report.
func (s *Service) resolve(ctx context.Context, userID string, req Permission) (*compiledRole, Decision) {
	deny := Decision{Requested: req.String()}

	u, err := s.principal(ctx, userID)
	if err != nil {
		if errors.Is(err, errPrincipalUnavailable) {
			deny.Reason = ReasonPrincipalUnavailable
			return nil, deny
		}
		slog.WarnContext(ctx, "principal lookup failed", logger.UserID(userID), logger.Error(err))
		deny.Reason = ReasonResolverError
		deny.Error = err.Error()
		return nil, deny
	}

	role, err := s.roles.lookup(ctx, u.RoleID)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			deny.Reason = ReasonRoleNotFound
			return nil, deny
		}
		deny.Reason = ReasonResolverError
		deny.Error = err.Error()
		return nil, deny
	}
	return role, deny
}

// evaluate applies the match rules to one request. It never consults storage.
func evaluate(role *compiledRole, req Permission) Decision {
	d := Decision{
		RoleLevel: role.role.Level,
		RoleName:  role.role.Name,
		Requested: req.String(),
	}

	if rbac.IsSuperAdmin(role.role.ID) {
		d.Allowed = true
		d.Reason = ReasonFullAccess
		d.MatchedPattern = rbac.SuperAdminPermission
		return d
	}

	if req.Validate() != nil || !req.IsConcrete() {
		d.Reason = ReasonInvalidRequest
		return d
	}

	if role.has(d.Requested) {
		d.Allowed = true
		d.Reason = ReasonExactMatch
		d.MatchedPattern = d.Requested
		return d
	}

	for _, c := range req.WildcardCandidates() {
		if p := c.String(); role.has(p) {
			d.Allowed = true
			d.Reason = ReasonWildcardMatch
			d.MatchedPattern = p
			return d
		}
	}

	d.Reason = ReasonNoMatch
	d.RolePermissions = slices.Clone(role.role.Permissions)
	return d
}

func requested(resource, action string, scope Scope) Permission {
	if scope == "" {
		scope = ScopeOrganization
	}
	return Permission{
		Resource: strings.ToLower(strings.TrimSpace(resource)),
		Action:   strings.ToLower(strings.TrimSpace(action)),
		Scope:    Scope(strings.ToLower(strings.TrimSpace(string(scope)))),
	}
}

func finish(span trace.Span, d Decision) {
	span.SetAttributes(
		attribute.Bool("authz.allowed", d.Allowed),
		attribute.String("authz.reason", d.Reason),
	)
	if d.Reason == ReasonResolverError {
		span.SetStatus(codes.Error, d.Error)
	}
	span.End()
}
