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
	"log/slog"
	"net/http"

	"github.com/opentrusty/tenantguard/internal/observability/logger"
)

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// OrganizationID is required when the email exists in several organizations.
	OrganizationID string `json:"organization_id,omitempty"`
}

// Login exchanges credentials for a bearer token. Every failure looks the same.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res := h.engine.Authenticate(r.Context(), req.Email, req.Password, req.OrganizationID)
	if res == nil {
		slog.DebugContext(r.Context(), "login rejected", logger.RemoteAddr(getIPAddress(r)))
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"token":      res.Token,
		"token_type": "Bearer",
		"expires_at": res.ExpiresAt,
		"user":       res.User,
	})
}
