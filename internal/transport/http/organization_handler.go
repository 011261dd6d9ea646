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

	"github.com/opentrusty/tenantguard/internal/tenant"
)

// CreateOrganizationRequest represents organization sign-up data
type CreateOrganizationRequest struct {
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
	Plan   string `json:"plan,omitempty"`
}

// CreateOrganization handles organization sign-up. The new organization
// has no users; its first administrator is created by an operator.
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	plan, err := tenant.ParsePlan(req.Plan)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	org, err := h.engine.CreateOrganization(r.Context(), req.Name, req.Domain, plan)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, org)
}
