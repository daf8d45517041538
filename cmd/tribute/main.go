// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/olegiv/tribute-go/internal/cache"
	"github.com/olegiv/tribute-go/internal/config"
	"github.com/olegiv/tribute-go/internal/handler"
	"github.com/olegiv/tribute-go/internal/handler/api"
	"github.com/olegiv/tribute-go/internal/logging"
	"github.com/olegiv/tribute-go/internal/middleware"
	"github.com/olegiv/tribute-go/internal/payment"
	"github.com/olegiv/tribute-go/internal/provider"
	"github.com/olegiv/tribute-go/internal/scheduler"
	"github.com/olegiv/tribute-go/internal/store"
	"github.com/olegiv/tribute-go/internal/util"
	"github.com/olegiv/tribute-go/internal/version"
	"github.com/olegiv/tribute-go/internal/webhook"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	// Parse CLI flags
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "tribute - commemorative page payments service\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  TRIBUTE_MP_ACCESS_TOKEN    Mercado Pago access token (required)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  TRIBUTE_MP_WEBHOOK_SECRET  Webhook signature secret (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  TRIBUTE_BASE_URL           Public origin for callbacks (default: http://localhost:3000)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  TRIBUTE_DB_DRIVER          sqlite|mysql (default: sqlite)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  TRIBUTE_DB_PATH            SQLite database path (default: ./data/tribute.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  TRIBUTE_DB_DSN             MySQL DSN (required for mysql)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  TRIBUTE_SERVER_PORT        Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  TRIBUTE_PRICE              Canonical page price (default: 19.90)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  TRIBUTE_REDIS_URL          Redis URL for the paid-result cache (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  TRIBUTE_NOTIFY_URL         page.paid notification target (optional)\n")
	}

	flag.Parse()

	// Handle -h/-help flag
	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	// Handle -v/-version flag
	if *showVersion {
		_, _ = fmt.Printf("tribute %s (commit: %s, built: %s)\n", appVersion, appGitCommit, appBuildTime)
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env files if present (development)
	_ = godotenv.Load()

	// Load configuration. Missing credentials stop the process here.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	versionInfo := version.Info{
		Version:   appVersion,
		GitCommit: appGitCommit,
		BuildTime: appBuildTime,
	}

	// Setup logger
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Initialize database
	dsn := cfg.DBDSN
	if cfg.DBDriver == config.DriverSQLite {
		dsn = cfg.DBPath
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	slog.Info("initializing database", "driver", cfg.DBDriver)
	db, err := store.NewDB(cfg.DBDriver, dsn)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		err = db.Close()
		if err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	// Run migrations
	slog.Info("running database migrations")
	if err := store.Migrate(db, cfg.DBDriver); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	// Upgrade logger to also write WARN and ERROR logs to the events table
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger = slog.New(logging.NewEventLogHandler(textHandler, db))
	slog.SetDefault(logger)
	slog.Info("event log integration enabled", "min_level", "warn")

	// Paid-result cache
	cacheConfig := cache.DefaultCacheConfig()
	cacheConfig.RedisURL = cfg.RedisURL
	cacheConfig.Prefix = cfg.CachePrefix
	cacheConfig.DefaultTTL = cfg.CacheTTL
	if cfg.UseRedisCache() {
		cacheConfig.Type = cache.CacheBackendRedis
	}
	cacheResult, err := cache.NewCacheWithInfo(cacheConfig)
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	defer func() { _ = cacheResult.Cache.Close() }()

	var cachePinger handler.Pinger
	switch {
	case cacheResult.BackendType == cache.CacheBackendRedis:
		slog.Info(handler.LogCacheInit, "backend", "redis", "url", cache.SanitizeRedisURL(cfg.RedisURL))
		if rc, ok := cacheResult.Cache.(*cache.RedisCache); ok {
			cachePinger = rc
		}
	case cacheResult.IsFallback:
		slog.Warn(handler.LogCacheInit, "backend", "memory", "note", "Redis unavailable, using fallback")
	default:
		slog.Info(handler.LogCacheInit, "backend", "memory")
	}

	// Payment provider and services
	mp := provider.New(provider.Config{
		BaseURL:     cfg.MPAPIURL,
		AccessToken: cfg.MPAccessToken,
		Timeout:     cfg.ProviderTimeout,
	})
	queries := store.New(db)

	creator, err := payment.NewCreator(mp, queries, payment.CreatorConfig{
		Price:           cfg.Price,
		Currency:        cfg.Currency,
		ItemTitle:       cfg.ItemTitle,
		NotificationURL: cfg.NotificationURL(),
		BackURLs: provider.BackURLs{
			Success: cfg.BackURL("success"),
			Failure: cfg.BackURL("failure"),
			Pending: cfg.BackURL("pending"),
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing payments: %w", err)
	}
	logger.Info("payments configured", "price", creator.Price().StringFixed(2), "currency", cfg.Currency)

	// Outbound page.paid notifications
	if cfg.NotifyURL != "" && !cfg.IsDevelopment() {
		if err := util.ValidateOutboundURL(context.Background(), cfg.NotifyURL); err != nil {
			return fmt.Errorf("%w: TRIBUTE_NOTIFY_URL: %v", config.ErrInvalid, err)
		}
	}
	dispatcherConfig := webhook.DefaultConfig()
	dispatcherConfig.URL = cfg.NotifyURL
	dispatcherConfig.Secret = cfg.NotifySecret
	dispatcherConfig.AllowPrivate = cfg.IsDevelopment()
	dispatcher := webhook.NewDispatcher(logger, dispatcherConfig)

	ctx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	reconciler := payment.NewReconciler(mp, queries, payment.ReconcilerOptions{
		Cache:    cacheResult.Cache,
		CacheTTL: cfg.CacheTTL,
		Notifier: dispatcher,
		Logger:   logger,
		Timeout:  cfg.ReconcileTimeout,
	})

	// Pending sweep
	sched := scheduler.New(queries, reconciler, logger, scheduler.Config{
		Schedule: cfg.SweepSchedule,
		MaxAge:   cfg.SweepMaxAge,
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	// Router
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig(cfg.IsDevelopment())))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	healthHandler := handler.NewHealthHandler(db, cachePinger, versionInfo)
	r.Get(handler.RouteHealth, healthHandler.Health)
	r.Get(handler.RouteHealthLive, healthHandler.Liveness)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	apiHandler := api.NewHandler(db, creator, reconciler, api.Options{
		WebhookSecret: cfg.MPWebhookSecret,
		Logger:        logger,
	})
	r.Mount(handler.RouteAPI, apiHandler.Routes(limiter.Middleware()))

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env, "version", versionInfo.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
