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
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/opentrusty/tenantguard/internal/audit"
	"github.com/opentrusty/tenantguard/internal/authz"
	"github.com/opentrusty/tenantguard/internal/observability/logger"
)

// Organization context is derived only from the bearer token. A client
// cannot select another organization with a header or query parameter.

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// AuthMiddleware validates the bearer token and adds the caller to context
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="tenantguard"`)
			respondError(w, http.StatusUnauthorized, "not authenticated")
			return
		}

		claims, err := h.engine.VerifyToken(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="tenantguard", error="invalid_token"`)
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		if r.Header.Get("X-Organization-ID") != "" {
			slog.WarnContext(r.Context(), "organization header spoofing attempt on authenticated route",
				logger.UserID(claims.Subject),
				logger.OrganizationID(claims.OrganizationID),
			)
			respondError(w, http.StatusBadRequest, "X-Organization-ID header is not allowed; organization is derived from the token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
		ctx = context.WithValue(ctx, organizationIDKey, claims.OrganizationID)
		ctx = context.WithValue(ctx, roleIDKey, claims.RoleID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// authorize checks the caller's permission. On denial it records an
// access_denied audit entry and writes 403.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, resource, action string, scope authz.Scope) (authz.Decision, bool) {
	d := h.engine.HasPermission(r.Context(), GetUserID(r.Context()), resource, action, scope)
	if d.Allowed {
		return d, true
	}

	h.recordDenied(r, d.Requested, d.Reason, "")
	respondError(w, http.StatusForbidden, "insufficient permissions")
	return d, false
}

// recordDenied records an access_denied entry in the caller's organization.
func (h *Handler) recordDenied(r *http.Request, permission, reason, resourceID string) {
	ctx := r.Context()
	userID := GetUserID(ctx)
	orgID := GetOrganizationID(ctx)

	slog.InfoContext(ctx, "access denied",
		logger.UserID(userID),
		logger.OrganizationID(orgID),
		logger.Permission(permission),
		logger.Reason(reason),
	)
	if orgID == "" {
		return
	}

	h.engine.RecordAudit(ctx, audit.Entry{
		OrganizationID: orgID,
		UserID:         &userID,
		Action:         audit.ActionAccessDenied,
		Resource:       resourceOf(permission),
		ResourceID:     resourceID,
		Metadata: map[string]any{
			audit.AttrPermission: permission,
			audit.AttrReason:     reason,
			audit.AttrIPAddress:  getIPAddress(r),
			audit.AttrUserAgent:  r.UserAgent(),
		},
	})
}

func resourceOf(permission string) string {
	resource, _, _ := strings.Cut(permission, ":")
	if resource == "" {
		return "unknown"
	}
	return resource
}
