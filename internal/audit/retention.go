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

package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Retention trims every organization's trail to a fixed number of entries.
type Retention struct {
	store Store
	keep  int
	cron  *cron.Cron
}

// NewRetention creates a retention job keeping the newest keep entries
// per organization. A non-positive keep uses DefaultRetentionCap.
func NewRetention(store Store, keep int) *Retention {
	if keep <= 0 {
		keep = DefaultRetentionCap
	}
	return &Retention{store: store, keep: keep}
}

// RunOnce trims all organizations and returns the number of deleted entries.
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	orgs, err := r.store.Organizations(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list audited organizations: %w", err)
	}

	var total int64
	for _, org := range orgs {
		n, err := r.store.Trim(ctx, org, r.keep)
		if err != nil {
			return total, fmt.Errorf("failed to trim audit trail of %s: %w", org, err)
		}
		total += n
	}
	return total, nil
}

// Start schedules RunOnce with a standard five-field cron expression.
func (r *Retention) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx := context.Background()
		n, err := r.RunOnce(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "audit retention failed", slog.String("error", err.Error()))
			return
		}
		slog.InfoContext(ctx, "audit retention completed", slog.Int64("deleted", n), slog.Int("keep", r.keep))
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	r.cron = c
	c.Start()
	return nil
}

// Stop waits for a running trim to finish.
func (r *Retention) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}
