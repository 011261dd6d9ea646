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
	"github.com/opentrusty/tenantguard/internal/identity"
	"github.com/opentrusty/tenantguard/internal/tenant"
)

// UserRepository implements identity.UserRepository.
type UserRepository struct {
	s *Store
}

// Create checks uniqueness and the seat limit, then writes the user, its
// boundary and the new organization user count under one lock.
func (r *UserRepository) Create(_ context.Context, user *identity.User, b *boundary.DataBoundary, seatLimit int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	org, ok := r.s.orgs[user.OrganizationID]
	if !ok {
		return tenant.ErrOrganizationNotFound
	}

	active := 0
	for _, u := range r.s.users {
		if u.OrganizationID != user.OrganizationID || !u.Active {
			continue
		}
		if u.Email == user.Email {
			return identity.ErrDuplicateEmail
		}
		active++
	}
	if seatLimit > 0 && active >= seatLimit {
		return identity.ErrSeatLimitExceeded
	}

	r.s.users[user.ID] = user.Clone()
	if b != nil {
		r.s.boundaries[b.Key()] = copyBoundary(b)
	}
	org.UserCount = active + 1
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*identity.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (r *UserRepository) GetByEmail(_ context.Context, organizationID, email string) (*identity.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.OrganizationID == organizationID && u.Email == email && u.Active {
			return u.Clone(), nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) ([]*identity.User, error) {
	return r.collect(func(u *identity.User) bool { return u.Email == email && u.Active }), nil
}

func (r *UserRepository) ListByOrganization(_ context.Context, organizationID string) ([]*identity.User, error) {
	return r.collect(func(u *identity.User) bool { return u.OrganizationID == organizationID }), nil
}

func (r *UserRepository) CountActive(_ context.Context, organizationID string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.activeCount(organizationID), nil
}

func (r *UserRepository) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return identity.ErrUserNotFound
	}
	t := at.UTC()
	u.LastLoginAt = &t
	return nil
}

func (r *UserRepository) Deactivate(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return identity.ErrUserNotFound
	}
	u.Active = false
	u.UpdatedAt = time.Now().UTC()
	if org, ok := r.s.orgs[u.OrganizationID]; ok {
		org.UserCount = r.s.activeCount(u.OrganizationID)
	}
	return nil
}

func (r *UserRepository) collect(match func(*identity.User) bool) []*identity.User {
	r.s.mu.RLock()
	out := make([]*identity.User, 0)
	for _, u := range r.s.users {
		if match(u) {
			out = append(out, u.Clone())
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
