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

	"github.com/opentrusty/tenantguard/internal/boundary"
	"github.com/opentrusty/tenantguard/internal/identity"
	"github.com/opentrusty/tenantguard/internal/tenant"
)

// userRecord keeps the password hash, which identity.User hides from JSON.
type userRecord struct {
	*identity.User
	PasswordHash string `json:"password_hash"`
}

func encodeUser(u *identity.User) ([]byte, error) {
	return encode(userRecord{User: u, PasswordHash: u.PasswordHash})
}

func decodeUser(rec *userRecord) *identity.User {
	u := rec.User
	u.PasswordHash = rec.PasswordHash
	return u
}

// UserRepository implements identity.UserRepository.
type UserRepository struct {
	s *Store
}

// Create watches the organization's active set and email index, checks
// uniqueness and the seat limit, then writes the user, its boundary and the
// organization's user count in one MULTI block.
func (r *UserRepository) Create(ctx context.Context, user *identity.User, b *boundary.DataBoundary, seatLimit int) error {
	s := r.s
	data, err := encodeUser(user)
	if err != nil {
		return err
	}
	var bData []byte
	if b != nil {
		if bData, err = encode(b); err != nil {
			return err
		}
	}

	orgKey := s.orgKey(user.OrganizationID)
	activeKey := s.orgActiveKey(user.OrganizationID)
	emailsKey := s.orgEmailsKey(user.OrganizationID)

	return s.watch(ctx, func(tx *goredis.Tx) error {
		var org tenant.Organization
		ok, err := load(ctx, tx, orgKey, &org)
		if err != nil {
			return err
		}
		if !ok {
			return tenant.ErrOrganizationNotFound
		}

		taken, err := tx.HExists(ctx, emailsKey, user.Email).Result()
		if err != nil {
			return err
		}
		if taken {
			return identity.ErrDuplicateEmail
		}

		active, err := tx.SCard(ctx, activeKey).Result()
		if err != nil {
			return err
		}
		if seatLimit > 0 && active >= int64(seatLimit) {
			return identity.ErrSeatLimitExceeded
		}

		org.UserCount = int(active) + 1
		orgData, err := encode(&org)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, s.userKey(user.ID), data, 0)
			pipe.SAdd(ctx, s.orgUsersKey(user.OrganizationID), user.ID)
			if user.Active {
				pipe.SAdd(ctx, activeKey, user.ID)
				pipe.HSet(ctx, emailsKey, user.Email, user.ID)
				pipe.SAdd(ctx, s.emailKey(user.Email), user.ID)
			}
			if b != nil {
				putBoundary(ctx, s, pipe, b, bData)
			}
			pipe.Set(ctx, orgKey, orgData, 0)
			return nil
		})
		return err
	}, orgKey, activeKey, emailsKey)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*identity.User, error) {
	return r.get(ctx, r.s.client, id)
}

func (r *UserRepository) get(ctx context.Context, c getter, id string) (*identity.User, error) {
	rec := userRecord{User: &identity.User{}}
	ok, err := load(ctx, c, r.s.userKey(id), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return decodeUser(&rec), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, organizationID, email string) (*identity.User, error) {
	id, err := r.s.client.HGet(ctx, r.s.orgEmailsKey(organizationID), email).Result()
	if err == goredis.Nil {
		return nil, identity.ErrUserNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis hget failed: %w", unavailable(err))
	}
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, identity.ErrUserNotFound
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) ([]*identity.User, error) {
	users, err := r.members(ctx, r.s.emailKey(email))
	if err != nil {
		return nil, err
	}
	out := users[:0]
	for _, u := range users {
		if u.Active {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *UserRepository) ListByOrganization(ctx context.Context, organizationID string) ([]*identity.User, error) {
	return r.members(ctx, r.s.orgUsersKey(organizationID))
}

func (r *UserRepository) CountActive(ctx context.Context, organizationID string) (int, error) {
	n, err := r.s.client.SCard(ctx, r.s.orgActiveKey(organizationID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scard failed: %w", unavailable(err))
	}
	return int(n), nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	key := r.s.userKey(id)
	return r.s.watch(ctx, func(tx *goredis.Tx) error {
		u, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		t := at.UTC()
		u.LastLoginAt = &t
		data, err := encodeUser(u)
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

// Deactivate clears the user's active and email index entries and refreshes
// the organization's user count.
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	s := r.s
	key := s.userKey(id)

	u, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	orgKey := s.orgKey(u.OrganizationID)
	activeKey := s.orgActiveKey(u.OrganizationID)
	emailsKey := s.orgEmailsKey(u.OrganizationID)

	return s.watch(ctx, func(tx *goredis.Tx) error {
		u, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		u.Active = false
		u.UpdatedAt = time.Now().UTC()
		data, err := encodeUser(u)
		if err != nil {
			return err
		}

		active, err := tx.SCard(ctx, activeKey).Result()
		if err != nil {
			return err
		}
		isMember, err := tx.SIsMember(ctx, activeKey, id).Result()
		if err != nil {
			return err
		}
		if isMember {
			active--
		}

		var org tenant.Organization
		hasOrg, err := load(ctx, tx, orgKey, &org)
		if err != nil {
			return err
		}

		owner, err := tx.HGet(ctx, emailsKey, u.Email).Result()
		if err != nil && err != goredis.Nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SRem(ctx, activeKey, id)
			pipe.SRem(ctx, s.emailKey(u.Email), id)
			if owner == id {
				pipe.HDel(ctx, emailsKey, u.Email)
			}
			if hasOrg {
				org.UserCount = int(active)
				if orgData, err := encode(&org); err == nil {
					pipe.Set(ctx, orgKey, orgData, 0)
				}
			}
			return nil
		})
		return err
	}, key, orgKey, activeKey, emailsKey)
}

func (r *UserRepository) members(ctx context.Context, setKey string) ([]*identity.User, error) {
	ids, err := r.s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", unavailable(err))
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.s.userKey(id)
	}

	recs, err := loadMany[userRecord](ctx, r.s.client, keys)
	if err != nil {
		return nil, err
	}
	users := make([]*identity.User, 0, len(recs))
	for _, rec := range recs {
		if rec.User != nil {
			users = append(users, decodeUser(rec))
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}
