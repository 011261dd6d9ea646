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

package tenant

import (
	"context"
	"errors"

	"github.com/opentrusty/tenantguard/internal/boundary"
)

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrOrganizationInactive = errors.New("organization is inactive")
	ErrDomainTaken          = errors.New("domain already registered")
	ErrInvalidPlan          = errors.New("invalid plan")
	ErrInvalidOrganization  = errors.New("invalid organization")
)

// Repository defines the interface for organization storage
type Repository interface {
	// Create stores the organization and its boundary in one atomic write.
	// Returns ErrDomainTaken when the domain is registered to another organization.
	Create(ctx context.Context, org *Organization, b *boundary.DataBoundary) error

	// GetByID retrieves an organization by ID
	GetByID(ctx context.Context, id string) (*Organization, error)

	// GetByDomain retrieves an organization by its lower-cased domain
	GetByDomain(ctx context.Context, domain string) (*Organization, error)

	// Update replaces name, plan, seat limit, active flag and settings
	Update(ctx context.Context, org *Organization) error

	// List returns organizations ordered by creation time
	List(ctx context.Context, limit, offset int) ([]*Organization, error)
}
