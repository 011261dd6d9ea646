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
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opentrusty/tenantguard/internal/observability/logger"
)

// Operation is one permission request inside a batch.
type Operation struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Scope    Scope  `json:"scope,omitempty"`
}

// BatchResult pairs an operation with its decision.
type BatchResult struct {
	Operation Operation `json:"operation"`
	Allowed   bool      `json:"allowed"`
	Decision  Decision  `json:"decision"`
}

// ValidateBatch evaluates ops for one principal. The principal and role are
// resolved once; results keep the input order and one failing item never
// affects the others.
func (s *Service) ValidateBatch(ctx context.Context, userID string, ops []Operation) []BatchResult {
	ctx, span := s.tracer.Start(ctx, "authz.ValidateBatch", trace.WithAttributes(
		attribute.String("authz.user_id", userID),
		attribute.Int("authz.batch_size", len(ops)),
	))
	defer span.End()

	results := make([]BatchResult, len(ops))
	if len(ops) == 0 {
		return results
	}

	role, denial := s.resolveSafe(ctx, userID)

	for i, op := range ops {
		start := time.Now()
		req := requested(op.Resource, op.Action, op.Scope)

		var d Decision
		if role == nil {
			d = denial
			d.Requested = req.String()
		} else {
			d = s.evaluateSafe(ctx, userID, role, req)
		}

		results[i] = BatchResult{Operation: op, Allowed: d.Allowed, Decision: d}
		s.observer.ObserveDecision(ctx, d.Allowed, d.Reason, time.Since(start))
	}
	return results
}

func (s *Service) resolveSafe(ctx context.Context, userID string) (role *compiledRole, d Decision) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic while resolving principal", logger.UserID(userID), slog.Any("panic", r))
			role = nil
			d = Decision{Reason: ReasonResolverError, Error: fmt.Sprint(r)}
		}
	}()
	return s.resolve(ctx, userID, Permission{})
}

func (s *Service) evaluateSafe(ctx context.Context, userID string, role *compiledRole, req Permission) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic during permission check", logger.UserID(userID), slog.Any("panic", r))
			d = Decision{Reason: ReasonResolverError, Requested: req.String(), Error: fmt.Sprint(r)}
		}
	}()
	return evaluate(role, req)
}
