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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/opentrusty/tenantguard/internal/audit"
	"github.com/opentrusty/tenantguard/internal/config"
	"github.com/opentrusty/tenantguard/internal/observability/logger"
	"github.com/opentrusty/tenantguard/internal/observability/metrics"
	"github.com/opentrusty/tenantguard/internal/store/postgres"
	transportHTTP "github.com/opentrusty/tenantguard/internal/transport/http"
)

func newServeCommand() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before serving (postgres backend)")
	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.shutdownTracer(context.Background())

	if migrate && a.cfg.Store.Backend == config.BackendPostgres {
		if err := migrateStores(ctx, a); err != nil {
			a.closeStores()
			return err
		}
	}

	e, err := a.newEngine(ctx)
	if err != nil {
		a.closeStores()
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer func() {
		if err := e.Close(); err != nil {
			slog.Error("engine shutdown error", logger.Error(err))
		}
	}()

	if err := a.bootstrap(ctx, e); err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	if schedule := a.cfg.Audit.RetentionSchedule; schedule != "" {
		retention := audit.NewRetention(a.stores.Audit, a.cfg.Audit.RetentionCap)
		if err := retention.Start(schedule); err != nil {
			return err
		}
		defer retention.Stop()
		slog.InfoContext(ctx, "audit retention scheduled", slog.String("schedule", schedule))
	}

	rateLimiter := transportHTTP.NewRateLimiter(a.cfg.RateLimit.RequestsPerSecond, a.cfg.RateLimit.Burst)
	defer rateLimiter.Stop()
	if err := rateLimiter.TrustProxies(a.cfg.RateLimit.TrustedProxies); err != nil {
		return fmt.Errorf("RATELIMIT_TRUSTED_PROXIES: %w", err)
	}

	var metricsHandler http.Handler
	if a.recorder != nil {
		metricsHandler = metrics.Handler(a.registry)
	}
	router := transportHTTP.NewRouter(transportHTTP.NewHandler(e, metricsHandler), rateLimiter)

	addr := fmt.Sprintf("%s:%s", a.cfg.Server.Host, a.cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"), slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}
	slog.Info("server stopped")
	return nil
}

// migrateStores applies the postgres schema through a dedicated connection.
func migrateStores(ctx context.Context, a *app) error {
	db, err := openPostgres(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return applyMigrations(ctx, db)
}

func applyMigrations(ctx context.Context, db *postgres.DB) error {
	slog.InfoContext(ctx, "applying migrations")
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.InfoContext(ctx, "migrations applied")
	return nil
}
