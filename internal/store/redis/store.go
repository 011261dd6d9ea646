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

// Package redis stores tenants, principals, roles, boundaries and the audit
// trail in Redis. Multi-key writes use WATCH/MULTI so they apply atomically.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/opentrusty/tenantguard/internal/audit"
	"github.com/opentrusty/tenantguard/internal/store"
)

const (
	defaultPrefix = "tg:"
	maxTxRetries  = 64
)

var errContention = errors.New("redis: transaction retries exhausted")

// Store is a Redis-backed store.
type Store struct {
	client   *goredis.Client
	prefix   string
	auditCap int
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix namespaces every key.
func WithPrefix(p string) Option {
	return func(s *Store) { s.prefix = p }
}

// WithAuditCap bounds the audit entries kept per organization.
func WithAuditCap(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.auditCap = n
		}
	}
}

// Connect opens a client for url and verifies it answers.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := goredis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", store.Unavailable(err))
	}
	return client, nil
}

// New wraps client.
func New(client *goredis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix, auditCap: audit.DefaultRetentionCap}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return store.Unavailable(s.client.Ping(ctx).Err())
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Organizations() *OrganizationRepository { return &OrganizationRepository{s: s} }
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }
func (s *Store) Roles() *RoleRepository { return &RoleRepository{s: s} }
func (s *Store) Boundaries() *BoundaryRepository { return &BoundaryRepository{s: s} }
func (s *Store) Audit() *AuditStore { return &AuditStore{s: s} }

// Keys
func (s *Store) orgKey(id string) string { return s.prefix + "org:" + id }
func (s *Store) domainKey(d string) string { return s.prefix + "domain:" + d }
func (s *Store) orgIndexKey() string { return s.prefix + "orgs" }
func (s *Store) userKey(id string) string { return s.prefix + "user:" + id }
func (s *Store) orgUsersKey(org string) string { return s.prefix + "org:" + org + ":users" }
func (s *Store) orgActiveKey(org string) string { return s.prefix + "org:" + org + ":active" }
func (s *Store) orgEmailsKey(org string) string { return s.prefix + "org:" + org + ":emails" }
func (s *Store) emailKey(email string) string { return s.prefix + "email:" + email }
func (s *Store) roleKey(id string) string { return s.prefix + "role:" + id }
func (s *Store) roleIndexKey() string { return s.prefix + "roles" }
func (s *Store) orgBoundariesKey(org string) string { return s.prefix + "org:" + org + ":boundaries" }
func (s *Store) auditKey(org string) string { return s.prefix + "audit:" + org }
func (s *Store) auditOrgsKey() string { return s.prefix + "audit:orgs" }

func (s *Store) boundaryKey(org, resourceType, resourceID string) string {
	return s.prefix + "boundary:" + org + ":" + resourceType + ":" + resourceID
}

// watch runs fn under WATCH on keys, retrying when another client touched them.
func (s *Store) watch(ctx context.Context, fn func(*goredis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return unavailable(err)
	}
	return errContention
}

// unavailable marks connection-level failures with store.ErrUnavailable.
// Redis replies and domain errors are returned unchanged.
func unavailable(err error) error {
	if err == nil || errors.Is(err, goredis.Nil) {
		return err
	}
	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET):
		return store.Unavailable(err)
	}
	// The pool's closed and timeout errors are unexported.
	switch err.Error() {
	case "redis: client is closed", "redis: connection pool timeout":
		return store.Unavailable(err)
	}
	return err
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

// load decodes the JSON value at key into v. It reports false when the key is absent.
func load(ctx context.Context, c getter, key string, v any) (bool, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", unavailable(err))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode: %w", err)
	}
	return data, nil
}

// loadMany decodes the JSON values at keys, skipping missing ones.
func loadMany[T any](ctx context.Context, c *goredis.Client, keys []string) ([]*T, error) {
	out := make([]*T, 0, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", unavailable(err))
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		item := new(T)
		if err := json.Unmarshal([]byte(str), item); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", keys[i], err)
		}
		out = append(out, item)
	}
	return out, nil
}
