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
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/opentrusty/tenantguard/internal/boundary"
	"github.com/opentrusty/tenantguard/internal/identity"
)

// Observer receives the outcome of every check. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveDecision(ctx context.Context, allowed bool, reason string, elapsed time.Duration)
	ObserveBoundary(ctx context.Context, allowed bool)
	ObservePrincipalCache(hit bool)
}

type nopObserver struct{}

func (nopObserver) ObserveDecision(context.Context, bool, string, time.Duration) {}
func (nopObserver) ObserveBoundary(context.Context, bool)                        {}
func (nopObserver) ObservePrincipalCache(bool)                                   {}

// Service answers permission and boundary questions for principals.
type Service struct {
	users      PrincipalStore
	roles      *Registry
	boundaries boundary.Repository

	cache    *expirable.LRU[string, *identity.User]
	group    singleflight.Group
	tracer   trace.Tracer
	observer Observer
}

// Option configures a Service.
type Option func(*Service)

// WithPrincipalCache caches principals for ttl. A non-positive size or ttl
// disables the cache. A deactivation not routed through Invalidate is seen
// after at most ttl.
func WithPrincipalCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		if size <= 0 || ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache = expirable.NewLRU[string, *identity.User](size, nil, ttl)
	}
}

// WithObserver reports decisions to o.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithTracer sets the tracer used for check spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// NewService creates a new authorization service
func NewService(users PrincipalStore, roles *Registry, boundaries boundary.Repository, opts ...Option) *Service {
	s := &Service{
		users:      users,
		roles:      roles,
		boundaries: boundaries,
		tracer:     otel.Tracer("github.com/opentrusty/tenantguard/internal/authz"),
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the role registry backing the service.
func (s *Service) Registry() *Registry {
	return s.roles
}

// Invalidate drops a cached principal. Call it after any change to the user's
// role or active flag.
func (s *Service) Invalidate(userID string) {
	if s.cache != nil {
		s.cache.Remove(userID)
	}
}

var errPrincipalUnavailable = errors.New("principal not found or inactive")

// principal loads an active user. errPrincipalUnavailable covers both a
// missing and an inactive user; any other error is a store failure.
func (s *Service) principal(ctx context.Context, userID string) (*identity.User, error) {
	if userID == "" {
		return nil, errPrincipalUnavailable
	}

	if s.cache != nil {
		if u, ok := s.cache.Get(userID); ok {
			s.observer.ObservePrincipalCache(true)
			return activeOnly(u)
		}
		s.observer.ObservePrincipalCache(false)
	}

	v, err, _ := s.group.Do(userID, func() (any, error) {
		return s.users.GetByID(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, errPrincipalUnavailable
		}
		return nil, err
	}

	u := v.(*identity.User)
	if s.cache != nil {
		s.cache.Add(userID, u)
	}
	return activeOnly(u)
}

func activeOnly(u *identity.User) (*identity.User, error) {
	if u == nil || !u.Active {
		return nil, errPrincipalUnavailable
	}
	return u, nil
}
