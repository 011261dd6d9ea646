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
	"sync"
	"time"

	"github.com/opentrusty/tenantguard/internal/id"
)

// Pagination bounds for Query.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Config configures a Logger.
type Config struct {
	// BufferSize is the capacity of the Record queue. Zero means 1024.
	BufferSize int
}

type queued struct {
	ctx   context.Context
	entry *Entry
}

// Logger writes audit entries to a Store. Append is synchronous and
// reports failures; Record is best-effort and never blocks the caller
// on a healthy queue.
type Logger struct {
	store Store
	now   func() time.Time

	clockMu sync.Mutex
	last    time.Time

	queue  chan queued
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewLogger creates a logger and starts its drain goroutine.
func NewLogger(store Store, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	l := &Logger{
		store: store,
		now:   time.Now,
		queue: make(chan queued, cfg.BufferSize),
	}
	l.wg.Add(1)
	go l.drain()
	return l
}

// timestamp returns a strictly increasing time at microsecond precision,
// which every backend can store without loss.
func (l *Logger) timestamp() time.Time {
	l.clockMu.Lock()
	defer l.clockMu.Unlock()

	t := l.now().UTC().Truncate(time.Microsecond)
	if !t.After(l.last) {
		t = l.last.Add(time.Microsecond)
	}
	l.last = t
	return t
}

func (l *Logger) prepare(e *Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	e.Timestamp = l.timestamp()
	e.ID = id.NewULID(e.Timestamp)
	e.Metadata = redact(e.Metadata)
	return nil
}

// Append writes an entry and returns it once stored.
func (l *Logger) Append(ctx context.Context, organizationID string, userID *string, action, resource, resourceID string, metadata map[string]any) (*Entry, error) {
	e := &Entry{
		OrganizationID: organizationID,
		UserID:         userID,
		Action:         action,
		Resource:       resource,
		ResourceID:     resourceID,
		Metadata:       metadata,
	}
	if err := l.prepare(e); err != nil {
		return nil, err
	}
	if err := l.write(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Record queues an entry. When the queue is full the entry is written
// inline; failures are logged and never returned.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	e := &entry
	if err := l.prepare(e); err != nil {
		slog.WarnContext(ctx, "audit entry rejected", slog.String("action", entry.Action), slog.String("error", err.Error()))
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.writeLogged(ctx, e)
		return
	}

	select {
	case l.queue <- queued{ctx: context.WithoutCancel(ctx), entry: e}:
	default:
		l.writeLogged(ctx, e)
	}
}

func (l *Logger) drain() {
	defer l.wg.Done()
	for q := range l.queue {
		l.writeLogged(q.ctx, q.entry)
	}
}

func (l *Logger) write(ctx context.Context, e *Entry) error {
	if err := l.store.Append(ctx, e); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	mirror(ctx, e)
	return nil
}

func (l *Logger) writeLogged(ctx context.Context, e *Entry) {
	if err := l.write(ctx, e); err != nil {
		slog.WarnContext(ctx, "audit write failed",
			slog.String("organization_id", e.OrganizationID),
			slog.String("action", e.Action),
			slog.String("resource", e.Resource),
			slog.String("error", err.Error()),
		)
	}
}

// Query returns one page of an organization's entries, newest first.
// Pages start at 1.
func (l *Logger) Query(ctx context.Context, organizationID string, page, limit int) (*Page, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrInvalidEntry)
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	entries, err := l.store.List(ctx, organizationID, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	total, err := l.store.Count(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return &Page{Entries: entries, Page: page, Limit: limit, Total: total}, nil
}

// Close stops accepting queued entries and waits for the queue to drain.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()
	return nil
}

// mirror emits the stored entry to the structured log.
func mirror(ctx context.Context, e *Entry) {
	attrs := []any{
		slog.String("audit_id", e.ID),
		slog.String("organization_id", e.OrganizationID),
		slog.String("action", e.Action),
		slog.String("resource", e.Resource),
		slog.Time("timestamp", e.Timestamp),
		slog.String("component", "audit"),
	}
	if e.UserID != nil {
		attrs = append(attrs, slog.String("user_id", *e.UserID))
	}
	if e.ResourceID != "" {
		attrs = append(attrs, slog.String("resource_id", e.ResourceID))
	}
	if len(e.Metadata) > 0 {
		group := make([]any, 0, len(e.Metadata))
		for k, v := range e.Metadata {
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}
	slog.InfoContext(ctx, "AUDIT_EVENT", attrs...)
}
