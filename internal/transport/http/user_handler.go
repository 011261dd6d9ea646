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
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opentrusty/tenantguard/internal/authz"
	"github.com/opentrusty/tenantguard/internal/identity"
	"github.com/opentrusty/tenantguard/internal/rbac"
)

// CreateUserRequest represents user creation data
type CreateUserRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Role     string         `json:"role,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	// OrganizationID defaults to the caller's organization. Another
	// organization needs users:create at global scope.
	OrganizationID string `json:"organization_id,omitempty"`
}

// CreateUser creates a user. Callers cannot grant a role above their own.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	callerOrg := GetOrganizationID(ctx)
	orgID := req.OrganizationID
	scope := authz.ScopeOrganization
	if orgID == "" {
		orgID = callerOrg
	} else if orgID != callerOrg {
		scope = authz.ScopeGlobal
	}

	d, ok := h.authorize(w, r, "users", "create", scope)
	if !ok {
		return
	}

	roleID := req.Role
	if roleID == "" {
		roleID = rbac.DefaultRoleID
	}
	if level, known := rbac.Level(roleID); known && level > d.RoleLevel {
		h.recordDenied(r, "roles:assign:"+string(scope), "role above caller", roleID)
		respondError(w, http.StatusForbidden, "cannot assign a role above your own")
		return
	}

	user, err := h.engine.CreateUser(ctx, identity.CreateUserRequest{
		OrganizationID: orgID,
		Email:          req.Email,
		Password:       req.Password,
		RoleID:         roleID,
		Metadata:       req.Metadata,
		CreatedBy:      GetUserID(ctx),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

// DeactivateUser deactivates a user. The target must be the caller or lie
// inside the caller's organization unless the caller holds global scope.
func (h *Handler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := GetUserID(ctx)
	targetID := chi.URLParam(r, "userID")

	scope := authz.ScopeOrganization
	switch {
	case targetID == callerID:
		scope = authz.ScopeOwn
	case !h.engine.EnforceBoundary(ctx, callerID, rbac.ResourceTypeUser, targetID):
		scope = authz.ScopeGlobal
	}

	if _, ok := h.authorize(w, r, "users", "delete", scope); !ok {
		return
	}

	if err := h.engine.DeactivateUser(ctx, targetID, callerID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
