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
	"strconv"

	"github.com/opentrusty/tenantguard/internal/authz"
)

// ListRoles returns the role catalog.
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, "roles", "read", authz.ScopeGlobal); !ok {
		return
	}
	roles, err := h.engine.ListRoles(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

// ListAuditLogs returns one page of an organization's audit trail. The
// organization_id query parameter defaults to the caller's organization;
// any other organization needs audit:read at global scope.
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	callerOrg := GetOrganizationID(r.Context())

	orgID := q.Get("organization_id")
	scope := authz.ScopeOrganization
	if orgID == "" {
		orgID = callerOrg
	} else if orgID != callerOrg {
		scope = authz.ScopeGlobal
	}

	if _, ok := h.authorize(w, r, "audit", "read", scope); !ok {
		return
	}

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	result, err := h.engine.GetAuditLogs(r.Context(), orgID, page, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
