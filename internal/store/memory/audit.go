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
	"maps"
	"slices"
	"sort"

	"github.com/opentrusty/tenantguard/internal/audit"
)

// AuditStore implements audit.Store. Entries are kept oldest first per
// organization, ordered by (Timestamp, ID); appends beyond the cap evict the
// oldest.
type AuditStore struct {
	s *Store
}

func (a *AuditStore) Append(_ context.Context, e *audit.Entry) error {
	c := copyEntry(e)

	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	log := a.s.audit[e.OrganizationID]
	i := sort.Search(len(log), func(i int) bool { return olderThan(c, log[i]) })
	log = slices.Insert(log, i, c)
	if a.s.auditCap > 0 && len(log) > a.s.auditCap {
		log = append([]*audit.Entry(nil), log[len(log)-a.s.auditCap:]...)
	}
	a.s.audit[e.OrganizationID] = log
	return nil
}

// olderThan orders entries by timestamp, then id. Entries written late by the
// asynchronous logger still land in timestamp order.
func olderThan(x, y *audit.Entry) bool {
	if !x.Timestamp.Equal(y.Timestamp) {
		return x.Timestamp.Before(y.Timestamp)
	}
	return x.ID < y.ID
}

func (a *AuditStore) List(_ context.Context, organizationID string, offset, limit int) ([]*audit.Entry, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	log := a.s.audit[organizationID]
	newest := make([]*audit.Entry, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		newest = append(newest, log[i])
	}
	page := window(newest, limit, offset)

	out := make([]*audit.Entry, len(page))
	for i, e := range page {
		out[i] = copyEntry(e)
	}
	return out, nil
}

func (a *AuditStore) Count(_ context.Context, organizationID string) (int, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	return len(a.s.audit[organizationID]), nil
}

func (a *AuditStore) Trim(_ context.Context, organizationID string, keep int) (int64, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	log := a.s.audit[organizationID]
	if keep < 0 || len(log) <= keep {
		return 0, nil
	}
	removed := len(log) - keep
	a.s.audit[organizationID] = append([]*audit.Entry(nil), log[removed:]...)
	return int64(removed), nil
}

func (a *AuditStore) Organizations(_ context.Context) ([]string, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	out := make([]string, 0, len(a.s.audit))
	for org, log := range a.s.audit {
		if len(log) > 0 {
			out = append(out, org)
		}
	}
	sort.Strings(out)
	return out, nil
}

func copyEntry(e *audit.Entry) *audit.Entry {
	c := *e
	if e.UserID != nil {
		u := *e.UserID
		c.UserID = &u
	}
	c.Metadata = maps.Clone(e.Metadata)
	return &c
}
