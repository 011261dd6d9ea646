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

package memory

import (
	"context"
	"sort"
	"time"

	"github.com/opentrusty/tenantguard/internal/boundary"
	"github.com/opentrusty/tenantguard/internal/tenant"
)

// OrganizationRepository implements tenant.Repository.
type OrganizationRepository struct {
	s *Store
}

// Create stores the organization together with its boundary.
func (r *OrganizationRepository) Create(_ context.Context, org *tenant.Organization, b *boundary.DataBoundary) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if org.Domain != nil {
		if _, taken := r.s.domains[*org.Domain]; taken {
			return tenant.ErrDomainTaken
		}
		r.s.domains[*org.Domain] = org.ID
	}
	r.s.orgs[org.ID] = org.Clone()
	if b != nil {
		r.s.boundaries[b.Key()] = copyBoundary(b)
	}
	return nil
}

func (r *OrganizationRepository) GetByID(_ context.Context, id string) (*tenant.Organization, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	org, ok := r.s.orgs[id]
	if !ok {
		return nil, tenant.ErrOrganizationNotFound
	}
	return org.Clone(), nil
}

func (r *OrganizationRepository) GetByDomain(_ context.Context, domain string) (*tenant.Organization, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.domains[domain]
	if !ok {
		return nil, tenant.ErrOrganizationNotFound
	}
	return r.s.orgs[id].Clone(), nil
}

// Update replaces the mutable fields. Domain and user count are left alone.
func (r *OrganizationRepository) Update(_ context.Context, org *tenant.Organization) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.orgs[org.ID]
	if !ok {
		return tenant.ErrOrganizationNotFound
	}
	next := org.Clone()
	next.Domain = cur.Domain
	next.UserCount = cur.UserCount
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	r.s.orgs[org.ID] = next
	return nil
}

func (r *OrganizationRepository) List(_ context.Context, limit, offset int) ([]*tenant.Organization, error) {
	r.s.mu.RLock()
	all := make([]*tenant.Organization, 0, len(r.s.orgs))
	for _, org := range r.s.orgs {
		all = append(all, org.Clone())
	}
	r.s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return window(all, limit, offset), nil
}

func window[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
