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
)

// maxBatchSize bounds the operations of one batch request.
const maxBatchSize = 100

// CheckPermissionRequest names one permission to check for the caller.
type CheckPermissionRequest struct {
	Resource string      `json:"resource"`
	Action   string      `json:"action"`
	Scope    authz.Scope `json:"scope,omitempty"`
}

// CheckPermission returns the caller's decision for one permission.
func (h *Handler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	var req CheckPermissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d := h.engine.HasPermission(r.Context(), GetUserID(r.Context()), req.Resource, req.Action, req.Scope)
	respondJSON(w, http.StatusOK, d)
}

// CheckBatchRequest lists the operations to evaluate.
type CheckBatchRequest struct {
	Operations []authz.Operation `json:"operations"`
}

// CheckBatch evaluates every operation for the caller, in request order.
func (h *Handler) CheckBatch(w http.ResponseWriter, r *http.Request) {
	var req CheckBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Operations) == 0 || len(req.Operations) > maxBatchSize {
		respondError(w, http.StatusBadRequest, "operations must hold between 1 and 100 items")
		return
	}

	results := h.engine.ValidateBatch(r.Context(), GetUserID(r.Context()), req.Operations)
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

// CheckBoundary reports whether a resource lies in the caller's organization.
func (h *Handler) CheckBoundary(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "resourceType")
	resourceID := chi.URLParam(r, "resourceID")

	allowed := h.engine.EnforceBoundary(r.Context(), GetUserID(r.Context()), resourceType, resourceID)
	respondJSON(w, http.StatusOK, map[string]any{
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"allowed":       allowed,
	})
}
