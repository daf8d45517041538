// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the application configuration once at process start.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-sql-driver/mysql"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// ErrInvalid marks configuration that must stop the process from starting.
var ErrInvalid = errors.New("invalid configuration")

// Provider call timeout bounds.
const (
	MinProviderTimeout = 1 * time.Second
	MaxProviderTimeout = 30 * time.Second
)

// Supported database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBDriver   string `env:"TRIBUTE_DB_DRIVER" envDefault:"sqlite"`
	DBPath     string `env:"TRIBUTE_DB_PATH" envDefault:"./data/tribute.db"`
	DBDSN      string `env:"TRIBUTE_DB_DSN"` // MySQL DSN, e.g. user:pass@tcp(host:3306)/tribute
	ServerHost string `env:"TRIBUTE_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"TRIBUTE_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"TRIBUTE_ENV" envDefault:"development"`
	LogLevel   string `env:"TRIBUTE_LOG_LEVEL" envDefault:"info"`

	// BaseURL is the public origin used for provider callbacks and back URLs.
	BaseURL string `env:"TRIBUTE_BASE_URL" envDefault:"http://localhost:3000"`

	// Payment provider
	MPAccessToken   string        `env:"TRIBUTE_MP_ACCESS_TOKEN,required"`
	MPAPIURL        string        `env:"TRIBUTE_MP_API_URL" envDefault:"https://api.mercadopago.com"`
	MPWebhookSecret string        `env:"TRIBUTE_MP_WEBHOOK_SECRET"`
	ProviderTimeout time.Duration `env:"TRIBUTE_PROVIDER_TIMEOUT" envDefault:"10s"`

	// RequestTimeout bounds every HTTP request. ReconcileTimeout bounds one
	// whole reconciliation and must stay below it so the webhook is always
	// acknowledged before the request times out.
	RequestTimeout   time.Duration `env:"TRIBUTE_REQUEST_TIMEOUT" envDefault:"30s"`
	ReconcileTimeout time.Duration `env:"TRIBUTE_RECONCILE_TIMEOUT" envDefault:"20s"`

	// Pricing. The client never decides the amount.
	Price     decimal.Decimal `env:"TRIBUTE_PRICE" envDefault:"19.90"`
	Currency  string          `env:"TRIBUTE_CURRENCY" envDefault:"BRL"`
	ItemTitle string          `env:"TRIBUTE_ITEM_TITLE" envDefault:"Tribute page"`

	// Cache configuration
	RedisURL    string        `env:"TRIBUTE_REDIS_URL"`
	CachePrefix string        `env:"TRIBUTE_CACHE_PREFIX" envDefault:"tribute:"`
	CacheTTL    time.Duration `env:"TRIBUTE_CACHE_TTL" envDefault:"24h"`

	// Pending payment sweep
	SweepSchedule string        `env:"TRIBUTE_SWEEP_SCHEDULE" envDefault:"*/5 * * * *"`
	SweepMaxAge   time.Duration `env:"TRIBUTE_SWEEP_MAX_AGE" envDefault:"48h"`

	// Outbound page.paid notifications
	NotifyURL    string `env:"TRIBUTE_NOTIFY_URL"`
	NotifySecret string `env:"TRIBUTE_NOTIFY_SECRET"`

	// Public endpoint rate limiting (per client IP)
	RateLimitRPS   float64 `env:"TRIBUTE_RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int     `env:"TRIBUTE_RATE_LIMIT_BURST" envDefault:"10"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// NotificationURL is where the provider pushes payment notifications.
func (c Config) NotificationURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/api/webhooks/mercadopago"
}

// BackURL returns the browser return URL for a checkout outcome
// ("success", "failure" or "pending").
func (c Config) BackURL(kind string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/checkout/" + kind
}

// Load parses environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing config: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that env tags cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.MPAccessToken) == "" {
		return fmt.Errorf("%w: TRIBUTE_MP_ACCESS_TOKEN is required", ErrInvalid)
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: TRIBUTE_BASE_URL must be an absolute http:// or https:// URL, got %q", ErrInvalid, c.BaseURL)
	}

	if !c.Price.IsPositive() {
		return fmt.Errorf("%w: TRIBUTE_PRICE must be positive, got %s", ErrInvalid, c.Price.String())
	}
	if !c.Price.Equal(c.Price.Round(2)) {
		return fmt.Errorf("%w: TRIBUTE_PRICE must have at most 2 decimal places, got %s", ErrInvalid, c.Price.String())
	}

	if c.ProviderTimeout < MinProviderTimeout || c.ProviderTimeout > MaxProviderTimeout {
		return fmt.Errorf("%w: TRIBUTE_PROVIDER_TIMEOUT must be between %s and %s, got %s",
			ErrInvalid, MinProviderTimeout, MaxProviderTimeout, c.ProviderTimeout)
	}

	if c.ReconcileTimeout <= 0 || c.ReconcileTimeout >= c.RequestTimeout {
		return fmt.Errorf("%w: TRIBUTE_RECONCILE_TIMEOUT must be positive and below TRIBUTE_REQUEST_TIMEOUT (%s), got %s",
			ErrInvalid, c.RequestTimeout, c.ReconcileTimeout)
	}

	switch c.DBDriver {
	case DriverSQLite:
	case DriverMySQL:
		if c.DBDSN == "" {
			return fmt.Errorf("%w: TRIBUTE_DB_DSN is required for the mysql driver", ErrInvalid)
		}
		if _, err := mysql.ParseDSN(c.DBDSN); err != nil {
			return fmt.Errorf("%w: TRIBUTE_DB_DSN: %v", ErrInvalid, err)
		}
	default:
		return fmt.Errorf("%w: TRIBUTE_DB_DRIVER must be %q or %q, got %q", ErrInvalid, DriverSQLite, DriverMySQL, c.DBDriver)
	}

	if _, err := cron.ParseStandard(c.SweepSchedule); err != nil {
		return fmt.Errorf("%w: TRIBUTE_SWEEP_SCHEDULE: %v", ErrInvalid, err)
	}

	if c.NotifyURL != "" {
		nu, err := url.Parse(c.NotifyURL)
		if err != nil || (nu.Scheme != "http" && nu.Scheme != "https") || nu.Host == "" {
			return fmt.Errorf("%w: TRIBUTE_NOTIFY_URL must be an absolute http(s) URL", ErrInvalid)
		}
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("%w: rate limit rps and burst must be positive", ErrInvalid)
	}

	return nil
}
