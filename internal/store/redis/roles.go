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

package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/opentrusty/tenantguard/internal/authz"
	"github.com/opentrusty/tenantguard/internal/boundary"
)

// RoleRepository implements authz.RoleRepository.
type RoleRepository struct {
	s *Store
}

func (r *RoleRepository) Upsert(ctx context.Context, role *authz.Role) error {
	s := r.s
	key := s.roleKey(role.ID)
	return s.watch(ctx, func(tx *goredis.Tx) error {
		now := time.Now().UTC()
		next := role.Clone()
		next.CreatedAt = now
		next.UpdatedAt = now

		var cur authz.Role
		ok, err := load(ctx, tx, key, &cur)
		if err != nil {
			return err
		}
		if ok {
			next.CreatedAt = cur.CreatedAt
		}

		data, err := encode(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, s.roleIndexKey(), role.ID)
			return nil
		})
		return err
	}, key)
}

func (r *RoleRepository) GetByID(ctx context.Context, id string) (*authz.Role, error) {
	var role authz.Role
	ok, err := load(ctx, r.s.client, r.s.roleKey(id), &role)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, authz.ErrRoleNotFound
	}
	return &role, nil
}

func (r *RoleRepository) List(ctx context.Context) ([]*authz.Role, error) {
	ids, err := r.s.client.SMembers(ctx, r.s.roleIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", unavailable(err))
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.s.roleKey(id)
	}
	roles, err := loadMany[authz.Role](ctx, r.s.client, keys)
	if err != nil {
		return nil, err
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Level > roles[j].Level })
	return roles, nil
}

// BoundaryRepository implements boundary.Repository.
type BoundaryRepository struct {
	s *Store
}

// Upsert writes the boundary. An existing triple keeps its creation time.
func (r *BoundaryRepository) Upsert(ctx context.Context, b *boundary.DataBoundary) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s := r.s
	key := s.boundaryKey(b.OrganizationID, b.ResourceType, b.ResourceID)
	return s.watch(ctx, func(tx *goredis.Tx) error {
		next := *b
		var cur boundary.DataBoundary
		ok, err := load(ctx, tx, key, &cur)
		if err != nil {
			return err
		}
		if ok {
			next.CreatedAt = cur.CreatedAt
		}
		data, err := encode(&next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			putBoundary(ctx, s, pipe, &next, data)
			return nil
		})
		return err
	}, key)
}

func (r *BoundaryRepository) Get(ctx context.Context, organizationID, resourceType, resourceID string) (*boundary.DataBoundary, error) {
	var b boundary.DataBoundary
	ok, err := load(ctx, r.s.client, r.s.boundaryKey(organizationID, resourceType, resourceID), &b)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, boundary.ErrBoundaryNotFound
	}
	return &b, nil
}

func (r *BoundaryRepository) ListByOrganization(ctx context.Context, organizationID, resourceType string) ([]*boundary.DataBoundary, error) {
	keys, err := r.s.client.SMembers(ctx, r.s.orgBoundariesKey(organizationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list boundaries: %w", unavailable(err))
	}
	all, err := loadMany[boundary.DataBoundary](ctx, r.s.client, keys)
	if err != nil {
		return nil, err
	}

	out := all[:0]
	for _, b := range all {
		if resourceType == "" || b.ResourceType == resourceType {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// putBoundary queues the writes for one boundary on pipe.
func putBoundary(ctx context.Context, s *Store, pipe goredis.Pipeliner, b *boundary.DataBoundary, data []byte) {
	key := s.boundaryKey(b.OrganizationID, b.ResourceType, b.ResourceID)
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, s.orgBoundariesKey(b.OrganizationID), key)
}
