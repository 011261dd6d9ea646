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

	"github.com/opentrusty/tenantguard/internal/authz"
	"github.com/opentrusty/tenantguard/internal/boundary"
)

// RoleRepository implements authz.RoleRepository.
type RoleRepository struct {
	s *Store
}

func (r *RoleRepository) Upsert(_ context.Context, role *authz.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	next := role.Clone()
	next.UpdatedAt = now
	if cur, ok := r.s.roles[role.ID]; ok {
		next.CreatedAt = cur.CreatedAt
	} else {
		next.CreatedAt = now
	}
	r.s.roles[role.ID] = next
	return nil
}

func (r *RoleRepository) GetByID(_ context.Context, id string) (*authz.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, authz.ErrRoleNotFound
	}
	return role.Clone(), nil
}

func (r *RoleRepository) List(_ context.Context) ([]*authz.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*authz.Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		out = append(out, role.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level > out[j].Level })
	return out, nil
}

// BoundaryRepository implements boundary.Repository.
type BoundaryRepository struct {
	s *Store
}

func (r *BoundaryRepository) Upsert(_ context.Context, b *boundary.DataBoundary) error {
	if err := b.Validate(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if cur, ok := r.s.boundaries[b.Key()]; ok {
		cur.AccessLevel = b.AccessLevel
		return nil
	}
	r.s.boundaries[b.Key()] = copyBoundary(b)
	return nil
}

func (r *BoundaryRepository) Get(_ context.Context, organizationID, resourceType, resourceID string) (*boundary.DataBoundary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.boundaries[boundary.Key(organizationID, resourceType, resourceID)]
	if !ok {
		return nil, boundary.ErrBoundaryNotFound
	}
	return copyBoundary(b), nil
}

func (r *BoundaryRepository) ListByOrganization(_ context.Context, organizationID, resourceType string) ([]*boundary.DataBoundary, error) {
	r.s.mu.RLock()
	out := make([]*boundary.DataBoundary, 0)
	for _, b := range r.s.boundaries {
		if b.OrganizationID == organizationID && (resourceType == "" || b.ResourceType == resourceType) {
			out = append(out, copyBoundary(b))
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}
