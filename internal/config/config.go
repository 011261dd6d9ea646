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

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Store         StoreConfig         `yaml:"store"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Observability ObservabilityConfig `yaml:"observability"`
	Security      SecurityConfig      `yaml:"security"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Audit         AuditConfig         `yaml:"audit"`
	Cache         CacheConfig         `yaml:"cache"`
	Bootstrap     BootstrapConfig     `yaml:"bootstrap"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`

	// TrustedProxies lists addresses or CIDRs whose X-Forwarded-For is honored.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `yaml:"backend"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ObservabilityConfig holds logging, tracing and metrics configuration
type ObservabilityConfig struct {
	LogLevel       string  `yaml:"log_level"`
	LogFormat      string  `yaml:"log_format"`
	OTELEnabled    bool    `yaml:"otel_enabled"`
	SamplingRate   float64 `yaml:"sampling_rate"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	MetricsEnabled bool    `yaml:"metrics_enabled"`
}

// SecurityConfig holds password hashing and token configuration
type SecurityConfig struct {
	Argon2Memory      uint32        `yaml:"argon2_memory"`
	Argon2Iterations  uint32        `yaml:"argon2_iterations"`
	Argon2Parallelism uint8         `yaml:"argon2_parallelism"`
	Argon2SaltLength  uint32        `yaml:"argon2_salt_length"`
	Argon2KeyLength   uint32        `yaml:"argon2_key_length"`
	TokenSecret       string        `yaml:"token_secret"`
	TokenIssuer       string        `yaml:"token_issuer"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
}

// AuditConfig controls the audit trail.
type AuditConfig struct {
	// RetentionCap is the number of entries kept per organization.
	RetentionCap int `yaml:"retention_cap"`
	// BufferSize is the capacity of the asynchronous queue.
	BufferSize int `yaml:"buffer_size"`
	// RetentionSchedule is a cron expression; empty disables the job.
	RetentionSchedule string `yaml:"retention_schedule"`
}

// MaxPrincipalTTL bounds how long a cached principal may outlive a
// deactivation made elsewhere.
const MaxPrincipalTTL = time.Minute

// CacheConfig sizes the principal cache. A zero size disables it. The cache
// is off by default: deactivations made by another replica are only seen
// after PrincipalTTL.
type CacheConfig struct {
	PrincipalSize int           `yaml:"principal_size"`
	PrincipalTTL  time.Duration `yaml:"principal_ttl"`
}

// BootstrapConfig names the first super-admin created by serve and seed.
type BootstrapConfig struct {
	AdminEmail       string `yaml:"admin_email"`
	AdminPassword    string `yaml:"admin_password"`
	OrganizationName string `yaml:"organization_name"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{Backend: BackendMemory},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         "5432",
			User:         "tenantguard",
			Database:     "tenantguard",
			SSLMode:      "disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{
			URL:       "redis://localhost:6379/0",
			KeyPrefix: "tg:",
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			SamplingRate:   1.0,
			ServiceName:    "tenantguard",
			ServiceVersion: "0.1.0",
			MetricsEnabled: true,
		},
		Security: SecurityConfig{
			Argon2Memory:      65536,
			Argon2Iterations:  3,
			Argon2Parallelism: 4,
			Argon2SaltLength:  16,
			Argon2KeyLength:   32,
			TokenIssuer:       "tenantguard",
			TokenTTL:          time.Hour,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Audit: AuditConfig{
			RetentionCap: 1000,
			BufferSize:   1024,
		},
		Cache: CacheConfig{
			PrincipalSize: 0,
			PrincipalTTL:  5 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any) and environment variables, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = parseDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = parseDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = parseDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = parseDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Store.Backend = strings.ToLower(getEnv("STORE_BACKEND", c.Store.Backend))

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.MaxOpenConns = parseInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = parseInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Redis.KeyPrefix = getEnv("REDIS_KEY_PREFIX", c.Redis.KeyPrefix)

	c.Observability.LogLevel = getEnv("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = getEnv("LOG_FORMAT", c.Observability.LogFormat)
	c.Observability.OTELEnabled = parseBool("OTEL_ENABLED", c.Observability.OTELEnabled)
	c.Observability.SamplingRate = parseFloat("OTEL_SAMPLING_RATE", c.Observability.SamplingRate)
	c.Observability.ServiceName = getEnv("OTEL_SERVICE_NAME", c.Observability.ServiceName)
	c.Observability.ServiceVersion = getEnv("OTEL_SERVICE_VERSION", c.Observability.ServiceVersion)
	c.Observability.MetricsEnabled = parseBool("METRICS_ENABLED", c.Observability.MetricsEnabled)

	c.Security.Argon2Memory = uint32(parseInt("ARGON2_MEMORY", int(c.Security.Argon2Memory)))
	c.Security.Argon2Iterations = uint32(parseInt("ARGON2_ITERATIONS", int(c.Security.Argon2Iterations)))
	c.Security.Argon2Parallelism = uint8(parseInt("ARGON2_PARALLELISM", int(c.Security.Argon2Parallelism)))
	c.Security.Argon2SaltLength = uint32(parseInt("ARGON2_SALT_LENGTH", int(c.Security.Argon2SaltLength)))
	c.Security.Argon2KeyLength = uint32(parseInt("ARGON2_KEY_LENGTH", int(c.Security.Argon2KeyLength)))
	c.Security.TokenSecret = getEnv("TOKEN_SECRET", c.Security.TokenSecret)
	c.Security.TokenIssuer = getEnv("TOKEN_ISSUER", c.Security.TokenIssuer)
	c.Security.TokenTTL = parseDuration("TOKEN_TTL", c.Security.TokenTTL)

	c.RateLimit.RequestsPerSecond = parseFloat("RATELIMIT_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = parseInt("RATELIMIT_BURST", c.RateLimit.Burst)
	c.RateLimit.TrustedProxies = parseList("RATELIMIT_TRUSTED_PROXIES", c.RateLimit.TrustedProxies)

	c.Audit.RetentionCap = parseInt("AUDIT_RETENTION_CAP", c.Audit.RetentionCap)
	c.Audit.BufferSize = parseInt("AUDIT_BUFFER_SIZE", c.Audit.BufferSize)
	c.Audit.RetentionSchedule = getEnv("AUDIT_RETENTION_SCHEDULE", c.Audit.RetentionSchedule)

	c.Cache.PrincipalSize = parseInt("PRINCIPAL_CACHE_SIZE", c.Cache.PrincipalSize)
	c.Cache.PrincipalTTL = parseDuration("PRINCIPAL_CACHE_TTL", c.Cache.PrincipalTTL)

	c.Bootstrap.AdminEmail = getEnv("BOOTSTRAP_ADMIN_EMAIL", c.Bootstrap.AdminEmail)
	c.Bootstrap.AdminPassword = getEnv("BOOTSTRAP_ADMIN_PASSWORD", c.Bootstrap.AdminPassword)
	c.Bootstrap.OrganizationName = getEnv("BOOTSTRAP_ORGANIZATION_NAME", c.Bootstrap.OrganizationName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.Database.URL == "" && c.Database.Password == "" {
			return errors.New("DB_PASSWORD or DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if len(c.Security.TokenSecret) < 32 {
		return errors.New("TOKEN_SECRET must be at least 32 bytes")
	}
	if c.Security.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.Audit.RetentionCap < 0 {
		return errors.New("AUDIT_RETENTION_CAP must not be negative")
	}
	if c.Observability.SamplingRate < 0 || c.Observability.SamplingRate > 1 {
		return errors.New("OTEL_SAMPLING_RATE must be between 0 and 1")
	}
	if c.Cache.PrincipalSize > 0 && (c.Cache.PrincipalTTL <= 0 || c.Cache.PrincipalTTL > MaxPrincipalTTL) {
		return fmt.Errorf("PRINCIPAL_CACHE_TTL must be between 0 and %s when the principal cache is enabled", MaxPrincipalTTL)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var list []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

func parseDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
