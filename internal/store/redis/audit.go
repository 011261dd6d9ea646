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
	"encoding/json"
	"fmt"
	"sort"

	goredis "github.com/go-redis/redis/v8"

	"github.com/opentrusty/tenantguard/internal/audit"
)

// AuditStore implements audit.Store with one sorted set per organization,
// scored by the entry timestamp in microseconds.
type AuditStore struct {
	s *Store
}

func (a *AuditStore) Append(ctx context.Context, e *audit.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	key := a.s.auditKey(e.OrganizationID)

	_, err = a.s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, key, &goredis.Z{Score: float64(e.Timestamp.UnixMicro()), Member: data})
		pipe.SAdd(ctx, a.s.auditOrgsKey(), e.OrganizationID)
		if a.s.auditCap > 0 {
			pipe.ZRemRangeByRank(ctx, key, 0, -int64(a.s.auditCap)-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", unavailable(err))
	}
	return nil
}

func (a *AuditStore) List(ctx context.Context, organizationID string, offset, limit int) ([]*audit.Entry, error) {
	if offset < 0 {
		offset = 0
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}

	members, err := a.s.client.ZRevRange(ctx, a.s.auditKey(organizationID), int64(offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit entries: %w", unavailable(err))
	}

	out := make([]*audit.Entry, 0, len(members))
	for _, m := range members {
		var e audit.Entry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, nil
}

func (a *AuditStore) Count(ctx context.Context, organizationID string) (int, error) {
	n, err := a.s.client.ZCard(ctx, a.s.auditKey(organizationID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", unavailable(err))
	}
	return int(n), nil
}

func (a *AuditStore) Trim(ctx context.Context, organizationID string, keep int) (int64, error) {
	if keep < 0 {
		return 0, nil
	}
	n, err := a.s.client.ZRemRangeByRank(ctx, a.s.auditKey(organizationID), 0, -int64(keep)-1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to trim audit entries: %w", unavailable(err))
	}
	return n, nil
}

func (a *AuditStore) Organizations(ctx context.Context) ([]string, error) {
	orgs, err := a.s.client.SMembers(ctx, a.s.auditOrgsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list audit organizations: %w", unavailable(err))
	}
	sort.Strings(orgs)
	return orgs, nil
}
