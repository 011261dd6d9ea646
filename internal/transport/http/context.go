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

import "context"

type contextKey string

const (
	organizationIDKey contextKey = "organization_id"
	userIDKey         contextKey = "user_id"
	roleIDKey         contextKey = "role_id"
)

// GetUserID retrieves the authenticated User ID from context.
func GetUserID(ctx context.Context) string {
	if val, ok := ctx.Value(userIDKey).(string); ok {
		return val
	}
	return ""
}

// GetOrganizationID retrieves the caller's organization from context.
func GetOrganizationID(ctx context.Context) string {
	if val, ok := ctx.Value(organizationIDKey).(string); ok {
		return val
	}
	return ""
}

// GetRoleID retrieves the role carried by the caller's token.
func GetRoleID(ctx context.Context) string {
	if val, ok := ctx.Value(roleIDKey).(string); ok {
		return val
	}
	return ""
}
