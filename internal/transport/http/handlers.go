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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/opentrusty/tenantguard/internal/audit"
	"github.com/opentrusty/tenantguard/internal/authz"
	"github.com/opentrusty/tenantguard/internal/boundary"
	"github.com/opentrusty/tenantguard/internal/engine"
	"github.com/opentrusty/tenantguard/internal/identity"
	"github.com/opentrusty/tenantguard/internal/observability/logger"
	"github.com/opentrusty/tenantguard/internal/store"
	"github.com/opentrusty/tenantguard/internal/tenant"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// Handler holds HTTP handlers and dependencies
type Handler struct {
	engine  *engine.Engine
	metrics http.Handler
}

// NewHandler creates a new HTTP handler. A nil metrics handler leaves
// /metrics unrouted.
func NewHandler(e *engine.Engine, metrics http.Handler) *Handler {
	return &Handler{engine: e, metrics: metrics}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/organizations", h.CreateOrganization)
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Post("/users", h.CreateUser)
			r.Delete("/users/{userID}", h.DeactivateUser)

			r.Post("/authz/check", h.CheckPermission)
			r.Post("/authz/batch", h.CheckBatch)
			r.Get("/boundaries/{resourceType}/{resourceID}", h.CheckBoundary)

			r.Get("/roles", h.ListRoles)
			r.Get("/audit", h.ListAuditLogs)
		})
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "tenantguard",
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondServiceError maps domain errors to status codes. Unknown errors
// are logged and reported without detail.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenant.ErrDomainTaken):
		respondError(w, http.StatusConflict, "domain already registered")
	case errors.Is(err, identity.ErrDuplicateEmail):
		respondError(w, http.StatusConflict, "email already in use in organization")
	case errors.Is(err, identity.ErrSeatLimitExceeded):
		respondError(w, http.StatusConflict, "organization seat limit exceeded")
	case errors.Is(err, tenant.ErrOrganizationInactive):
		respondError(w, http.StatusForbidden, "organization is inactive")
	case errors.Is(err, tenant.ErrOrganizationNotFound),
		errors.Is(err, identity.ErrUserNotFound),
		errors.Is(err, authz.ErrRoleNotFound),
		errors.Is(err, boundary.ErrBoundaryNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, identity.ErrWeakPassword),
		errors.Is(err, identity.ErrInvalidRole),
		errors.Is(err, identity.ErrOrganizationRequired),
		errors.Is(err, tenant.ErrInvalidPlan),
		errors.Is(err, tenant.ErrInvalidOrganization),
		errors.Is(err, boundary.ErrInvalidBoundary),
		errors.Is(err, boundary.ErrInvalidAccessLevel),
		errors.Is(err, audit.ErrInvalidEntry):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrUnavailable):
		slog.ErrorContext(r.Context(), "store unavailable", logger.Error(err))
		respondError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		slog.ErrorContext(r.Context(), "request failed", logger.Error(err), logger.Path(r.URL.Path))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func getIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
