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
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/opentrusty/tenantguard/internal/boundary"
	"github.com/opentrusty/tenantguard/internal/tenant"
)

// OrganizationRepository implements tenant.Repository.
type OrganizationRepository struct {
	s *Store
}

// Create writes the organization, its domain claim and its boundary in one
// MULTI block.
func (r *OrganizationRepository) Create(ctx context.Context, org *tenant.Organization, b *boundary.DataBoundary) error {
	s := r.s
	data, err := encode(org)
	if err != nil {
		return err
	}
	var bData []byte
	if b != nil {
		if bData, err = encode(b); err != nil {
			return err
		}
	}

	var watched []string
	if org.Domain != nil {
		watched = append(watched, s.domainKey(*org.Domain))
	}
	watched = append(watched, s.orgKey(org.ID))

	return s.watch(ctx, func(tx *goredis.Tx) error {
		if org.Domain != nil {
			n, err := tx.Exists(ctx, s.domainKey(*org.Domain)).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return tenant.ErrDomainTaken
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, s.orgKey(org.ID), data, 0)
			if org.Domain != nil {
				pipe.Set(ctx, s.domainKey(*org.Domain), org.ID, 0)
			}
			pipe.ZAdd(ctx, s.orgIndexKey(), &goredis.Z{Score: float64(org.CreatedAt.UnixMicro()), Member: org.ID})
			if b != nil {
				putBoundary(ctx, s, pipe, b, bData)
			}
			return nil
		})
		return err
	}, watched...)
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*tenant.Organization, error) {
	var org tenant.Organization
	ok, err := load(ctx, r.s.client, r.s.orgKey(id), &org)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, tenant.ErrOrganizationNotFound
	}
	return &org, nil
}

func (r *OrganizationRepository) GetByDomain(ctx context.Context, domain string) (*tenant.Organization, error) {
	id, err := r.s.client.Get(ctx, r.s.domainKey(domain)).Result()
	if err == goredis.Nil {
		return nil, tenant.ErrOrganizationNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", unavailable(err))
	}
	return r.GetByID(ctx, id)
}

// Update replaces the mutable fields. Domain, user count and creation time are kept.
func (r *OrganizationRepository) Update(ctx context.Context, org *tenant.Organization) error {
	s := r.s
	key := s.orgKey(org.ID)
	return s.watch(ctx, func(tx *goredis.Tx) error {
		var cur tenant.Organization
		ok, err := load(ctx, tx, key, &cur)
		if err != nil {
			return err
		}
		if !ok {
			return tenant.ErrOrganizationNotFound
		}

		next := org.Clone()
		next.Domain = cur.Domain
		next.UserCount = cur.UserCount
		next.CreatedAt = cur.CreatedAt
		next.UpdatedAt = time.Now().UTC()
		data, err := encode(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
}

func (r *OrganizationRepository) List(ctx context.Context, limit, offset int) ([]*tenant.Organization, error) {
	if offset < 0 {
		offset = 0
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}

	ids, err := r.s.client.ZRange(ctx, r.s.orgIndexKey(), int64(offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", unavailable(err))
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.s.orgKey(id)
	}
	return loadMany[tenant.Organization](ctx, r.s.client, keys)
}
