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

package authz

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opentrusty/tenantguard/internal/boundary"
	"github.com/opentrusty/tenantguard/internal/identity"
)

type memRoles struct {
	mu    sync.Mutex
	roles map[string]*Role
	gets  atomic.Int32
}

func newMemRoles() *memRoles {
	return &memRoles{roles: make(map[string]*Role)}
}

func (m *memRoles) Upsert(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[role.ID] = role.Clone()
	return nil
}

func (m *memRoles) GetByID(_ context.Context, id string) (*Role, error) {
	m.gets.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return r.Clone(), nil
}

func (m *memRoles) List(_ context.Context) ([]*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memPrincipals struct {
	mu    sync.Mutex
	users map[string]*identity.User
	err   error
	panic bool
	calls atomic.Int32
}

func newMemPrincipals(users ...*identity.User) *memPrincipals {
	m := &memPrincipals{users: make(map[string]*identity.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memPrincipals) GetByID(_ context.Context, id string) (*identity.User, error) {
	m.calls.Add(1)
	if m.panic {
		panic("principal store exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (m *memPrincipals) setActive(id string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].Active = active
}

type memBoundaries struct {
	mu    sync.Mutex
	items map[string]*boundary.DataBoundary
	err   error
}

func newMemBoundaries() *memBoundaries {
	return &memBoundaries{items: make(map[string]*boundary.DataBoundary)}
}

func (m *memBoundaries) Upsert(_ context.Context, b *boundary.DataBoundary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *b
	m.items[b.Key()] = &c
	return nil
}

func (m *memBoundaries) Get(_ context.Context, org, resourceType, resourceID string) (*boundary.DataBoundary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	b, ok := m.items[boundary.Key(org, resourceType, resourceID)]
	if !ok {
		return nil, boundary.ErrBoundaryNotFound
	}
	c := *b
	return &c, nil
}

func (m *memBoundaries) ListByOrganization(_ context.Context, org, resourceType string) ([]*boundary.DataBoundary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*boundary.DataBoundary
	for _, b := range m.items {
		if b.OrganizationID == org && (resourceType == "" || b.ResourceType == resourceType) {
			c := *b
			out = append(out, &c)
		}
	}
	return out, nil
}

type countingObserver struct {
	mu        sync.Mutex
	reasons   map[string]int
	boundary  map[bool]int
	cacheHits int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{reasons: map[string]int{}, boundary: map[bool]int{}}
}

func (o *countingObserver) ObserveDecision(_ context.Context, _ bool, reason string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reasons[reason]++
}

func (o *countingObserver) ObserveBoundary(_ context.Context, allowed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.boundary[allowed]++
}

func (o *countingObserver) ObservePrincipalCache(hit bool) {
	if hit {
		o.mu.Lock()
		o.cacheHits++
		o.mu.Unlock()
	}
}
