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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opentrusty/tenantguard/internal/boundary"
	"github.com/opentrusty/tenantguard/internal/observability/logger"
	"github.com/opentrusty/tenantguard/internal/rbac"
)

// EnforceBoundary reports whether the resource belongs to the principal's
// organization. Only resources present in the boundary index are reachable;
// an active super-admin reaches everything.
func (s *Service) EnforceBoundary(ctx context.Context, userID, resourceType, resourceID string) (allowed bool) {
	ctx, span := s.tracer.Start(ctx, "authz.EnforceBoundary", trace.WithAttributes(
		attribute.String("authz.user_id", userID),
		attribute.String("authz.resource_type", resourceType),
	))
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic during boundary check", logger.UserID(userID), slog.Any("panic", r))
			allowed = false
		}
		span.SetAttributes(attribute.Bool("authz.allowed", allowed))
		span.End()
		s.observer.ObserveBoundary(ctx, allowed)
	}()

	u, err := s.principal(ctx, userID)
	if err != nil {
		if !errors.Is(err, errPrincipalUnavailable) {
			slog.WarnContext(ctx, "principal lookup failed", logger.UserID(userID), logger.Error(err))
		}
		return false
	}

	if rbac.IsSuperAdmin(u.RoleID) {
		return true
	}
	if u.OrganizationID == "" || resourceType == "" || resourceID == "" {
		return false
	}

	if _, err := s.boundaries.Get(ctx, u.OrganizationID, resourceType, resourceID); err != nil {
		if !errors.Is(err, boundary.ErrBoundaryNotFound) {
			slog.WarnContext(ctx, "boundary lookup failed",
				logger.OrganizationID(u.OrganizationID),
				logger.Resource(resourceType, resourceID),
				logger.Error(err),
			)
		}
		return false
	}
	return true
}

// CreateDataBoundary records that the resource belongs to organizationID.
// Writing an existing triple updates its access level.
func (s *Service) CreateDataBoundary(ctx context.Context, organizationID, resourceType, resourceID string, level boundary.AccessLevel) (*boundary.DataBoundary, error) {
	b, err := boundary.New(organizationID, resourceType, resourceID, level)
	if err != nil {
		return nil, err
	}
	if err := s.boundaries.Upsert(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create data boundary: %w", err)
	}
	return b, nil
}
