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

package engine

import (
	"github.com/opentrusty/tenantguard/internal/store/memory"
	"github.com/opentrusty/tenantguard/internal/store/postgres"
	"github.com/opentrusty/tenantguard/internal/store/redis"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// MemoryStores returns the repositories of an in-process store.
func MemoryStores(s *memory.Store) Stores {
	return Stores{
		Organizations: s.Organizations(),
		Users:         s.Users(),
		Roles:         s.Roles(),
		Boundaries:    s.Boundaries(),
		Audit:         s.Audit(),
	}
}

// PostgresStores returns the repositories of db. The audit trail keeps
// the newest auditCap entries per organization.
func PostgresStores(db *postgres.DB, auditCap int) Stores {
	return Stores{
		Organizations: postgres.NewOrganizationRepository(db),
		Users:         postgres.NewUserRepository(db),
		Roles:         postgres.NewRoleRepository(db),
		Boundaries:    postgres.NewBoundaryRepository(db),
		Audit:         postgres.NewAuditStore(db, auditCap),
		Closer: closerFunc(func() error {
			db.Close()
			return nil
		}),
	}
}

// RedisStores returns the repositories of s.
func RedisStores(s *redis.Store) Stores {
	return Stores{
		Organizations: s.Organizations(),
		Users:         s.Users(),
		Roles:         s.Roles(),
		Boundaries:    s.Boundaries(),
		Audit:         s.Audit(),
		Closer:        s,
	}
}
