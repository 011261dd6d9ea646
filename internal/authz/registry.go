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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/opentrusty/tenantguard/internal/observability/logger"
)

// compiledRole pairs a role with a set view of its permissions.
type compiledRole struct {
	role  *Role
	perms map[string]struct{}
}

func compile(r *Role) *compiledRole {
	perms := make(map[string]struct{}, len(r.Permissions))
	for _, p := range r.Permissions {
		perms[p] = struct{}{}
	}
	return &compiledRole{role: r.Clone(), perms: perms}
}

func (c *compiledRole) has(p string) bool {
	_, ok := c.perms[p]
	return ok
}

type roleSnapshot struct {
	byID    map[string]*compiledRole
	ordered []*Role
}

// Registry serves roles from an immutable snapshot. Reads never lock; only
// Seed and Reload replace the snapshot.
type Registry struct {
	repo RoleRepository
	snap atomic.Pointer[roleSnapshot]
	mu   sync.Mutex
}

// NewRegistry creates a registry over repo. The snapshot is loaded on first use.
func NewRegistry(repo RoleRepository) *Registry {
	return &Registry{repo: repo}
}

// Seed upserts roles and swaps in a fresh snapshot. Seeding the same
// catalog twice is a no-op apart from timestamps.
func (r *Registry) Seed(ctx context.Context, roles []*Role) error {
	if err := ValidateCatalog(roles); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, role := range roles {
		if err := r.repo.Upsert(ctx, role); err != nil {
			return fmt.Errorf("failed to upsert role %s: %w", role.ID, err)
		}
	}
	if err := r.reloadLocked(ctx); err != nil {
		return err
	}

	slog.InfoContext(ctx, "role catalog seeded", slog.Int("roles", len(roles)))
	return nil
}

// SeedDefaults seeds the six system roles.
func (r *Registry) SeedDefaults(ctx context.Context) error {
	return r.Seed(ctx, DefaultRoles())
}

// Reload rebuilds the snapshot from the repository.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloadLocked(ctx)
}

func (r *Registry) reloadLocked(ctx context.Context) error {
	roles, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list roles: %w", err)
	}

	snap := &roleSnapshot{
		byID:    make(map[string]*compiledRole, len(roles)),
		ordered: make([]*Role, 0, len(roles)),
	}
	for _, role := range roles {
		c := compile(role)
		snap.byID[role.ID] = c
		snap.ordered = append(snap.ordered, c.role)
	}
	sort.SliceStable(snap.ordered, func(i, j int) bool {
		return snap.ordered[i].Level > snap.ordered[j].Level
	})

	r.snap.Store(snap)
	return nil
}

func (r *Registry) snapshot(ctx context.Context) (*roleSnapshot, error) {
	if s := r.snap.Load(); s != nil {
		return s, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.snap.Load(); s != nil {
		return s, nil
	}
	if err := r.reloadLocked(ctx); err != nil {
		return nil, err
	}
	return r.snap.Load(), nil
}

// lookup resolves a role for permission checks.
func (r *Registry) lookup(ctx context.Context, roleID string) (*compiledRole, error) {
	snap, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if c, ok := snap.byID[roleID]; ok {
		return c, nil
	}

	// Roles written after the last seed are read through without touching the snapshot.
	role, err := r.repo.GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return nil, ErrRoleNotFound
		}
		slog.WarnContext(ctx, "role lookup failed", logger.RoleID(roleID), logger.Error(err))
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return compile(role), nil
}

// GetRole returns a copy of the role with the given ID.
func (r *Registry) GetRole(ctx context.Context, roleID string) (*Role, error) {
	c, err := r.lookup(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return c.role.Clone(), nil
}

// ListRoles returns copies of all roles, highest level first.
func (r *Registry) ListRoles(ctx context.Context) ([]*Role, error) {
	snap, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Role, len(snap.ordered))
	for i, role := range snap.ordered {
		out[i] = role.Clone()
	}
	return out, nil
}
