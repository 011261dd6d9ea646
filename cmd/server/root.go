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
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/opentrusty/tenantguard/internal/config"
	"github.com/opentrusty/tenantguard/internal/engine"
	"github.com/opentrusty/tenantguard/internal/identity"
	"github.com/opentrusty/tenantguard/internal/observability/logger"
	"github.com/opentrusty/tenantguard/internal/observability/metrics"
	"github.com/opentrusty/tenantguard/internal/observability/tracing"
	"github.com/opentrusty/tenantguard/internal/store/memory"
	"github.com/opentrusty/tenantguard/internal/store/postgres"
	"github.com/opentrusty/tenantguard/internal/store/redis"
)

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "tenantguard",
		Short:         "Multi-tenant authorization and data isolation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				return os.Setenv("CONFIG_FILE", configFile)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML configuration file (overrides CONFIG_FILE)")

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newSeedCommand(),
		newRetentionCommand(),
	)
	return root
}

// app holds the process-wide dependencies shared by every subcommand.
type app struct {
	cfg      *config.Config
	stores   engine.Stores
	tracer   *tracing.Tracer
	registry *prometheus.Registry
	recorder *metrics.Recorder
}

// setup loads configuration, installs the logger and opens the configured
// store. The caller owns the returned app and must call close.
func setup(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   cfg.Observability.SamplingRate,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize tracer, tracing disabled", logger.Error(err))
		tracer = tracing.Noop()
	}

	a := &app{cfg: cfg, tracer: tracer, registry: prometheus.NewRegistry()}
	if cfg.Observability.MetricsEnabled {
		meter := metrics.New(metrics.Config{Enabled: cfg.Observability.OTELEnabled}, cfg.Observability.ServiceName)
		if a.recorder, err = metrics.NewRecorder(a.registry, meter); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	if a.stores, err = openStores(ctx, cfg); err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, err
	}
	return a, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
		DisableOTel: !cfg.Observability.OTELEnabled,
	})
	return cfg, nil
}

func openStores(ctx context.Context, cfg *config.Config) (engine.Stores, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		slog.WarnContext(ctx, "using in-memory store, state is lost on exit")
		return engine.MemoryStores(memory.New(memory.WithAuditCap(cfg.Audit.RetentionCap))), nil

	case config.BackendPostgres:
		db, err := openPostgres(ctx, cfg)
		if err != nil {
			return engine.Stores{}, err
		}
		return engine.PostgresStores(db, cfg.Audit.RetentionCap), nil

	case config.BackendRedis:
		client, err := redis.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return engine.Stores{}, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.InfoContext(ctx, "connected to redis")
		s := redis.New(client, redis.WithPrefix(cfg.Redis.KeyPrefix), redis.WithAuditCap(cfg.Audit.RetentionCap))
		return engine.RedisStores(s), nil

	default:
		return engine.Stores{}, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func openPostgres(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.New(ctx, postgres.Config{
		URL:          cfg.Database.URL,
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.InfoContext(ctx, "connected to database")
	return db, nil
}

// newEngine builds the engine over the app's stores. The engine owns the
// stores from here on.
func (a *app) newEngine(ctx context.Context) (*engine.Engine, error) {
	cfg := engine.Config{
		TokenSecret: a.cfg.Security.TokenSecret,
		TokenIssuer: a.cfg.Security.TokenIssuer,
		TokenTTL:    a.cfg.Security.TokenTTL,
		Hasher: identity.NewPasswordHasher(
			a.cfg.Security.Argon2Memory,
			a.cfg.Security.Argon2Iterations,
			a.cfg.Security.Argon2Parallelism,
			a.cfg.Security.Argon2SaltLength,
			a.cfg.Security.Argon2KeyLength,
		),
		AuditBufferSize:    a.cfg.Audit.BufferSize,
		PrincipalCacheSize: a.cfg.Cache.PrincipalSize,
		PrincipalCacheTTL:  a.cfg.Cache.PrincipalTTL,
		Tracer:             a.tracer.GetTracer(),
	}
	if a.recorder != nil {
		cfg.Observer = a.recorder
	}
	return engine.New(ctx, a.stores, cfg)
}

func (a *app) bootstrap(ctx context.Context, e *engine.Engine) error {
	b := a.cfg.Bootstrap
	if b.AdminEmail == "" {
		return nil
	}
	_, err := e.Bootstrap(ctx, identity.BootstrapConfig{
		Email:            b.AdminEmail,
		Password:         b.AdminPassword,
		OrganizationName: b.OrganizationName,
	})
	return err
}

func (a *app) closeStores() {
	if a.stores.Closer != nil {
		if err := a.stores.Closer.Close(); err != nil {
			slog.Error("failed to close store", logger.Error(err))
		}
	}
}

func (a *app) shutdownTracer(ctx context.Context) {
	if err := a.tracer.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to shut down tracer", logger.Error(err))
	}
}
