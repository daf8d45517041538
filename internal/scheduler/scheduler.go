// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs the periodic sweep that reconciles pages whose
// payment is still pending.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/olegiv/tribute-go/internal/model"
	"github.com/olegiv/tribute-go/internal/payment"
	"github.com/olegiv/tribute-go/internal/store"
)

// Sweep defaults.
const (
	DefaultSchedule = "*/5 * * * *"
	DefaultMaxAge   = 48 * time.Hour
	DefaultBatch    = 100
)

// PageLister lists unpaid pages still waiting on the provider.
type PageLister interface {
	ListStalePendingPages(ctx context.Context, arg store.ListStalePendingPagesParams) ([]model.Page, error)
}

// Reconciler re-derives a page's payment state.
type Reconciler interface {
	ReconcilePage(ctx context.Context, key payment.PageKey, trigger payment.Trigger) (payment.Result, error)
}

// Config holds sweep settings.
type Config struct {
	Schedule string
	MaxAge   time.Duration
	Batch    int
}

// Scheduler reconciles pending pages on a cron schedule. It covers lost
// webhooks and retries paid writes that failed after provider confirmation.
type Scheduler struct {
	cron       *cron.Cron
	pages      PageLister
	reconciler Reconciler
	logger     *slog.Logger
	cfg        Config
	now        func() time.Time
}

// New creates a new scheduler instance.
func New(pages PageLister, reconciler Reconciler, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Batch <= 0 {
		cfg.Batch = DefaultBatch
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("category", model.EventCategoryPayment)

	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DiscardLogger),
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		pages:      pages,
		reconciler: reconciler,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Start registers the sweep job and starts the cron runner.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("pending payment sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", s.cfg.Schedule, "max_age", s.cfg.MaxAge.String())
	return nil
}

// Stop gracefully stops the scheduler, waiting for a running sweep.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// SweepStats summarizes one sweep.
type SweepStats struct {
	Checked int
	Paid    int
	Failed  int
}

// Sweep reconciles every pending page updated within the max age window.
// Per-page failures are logged and counted; only a failed listing is
// returned as an error.
func (s *Scheduler) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	pages, err := s.pages.ListStalePendingPages(ctx, store.ListStalePendingPagesParams{
		Since: s.now().UTC().Add(-s.cfg.MaxAge),
		Limit: int64(s.cfg.Batch),
	})
	if err != nil {
		return stats, err
	}
	if len(pages) == 0 {
		return stats, nil
	}

	s.logger.Debug("sweeping pending pages", "count", len(pages))

	for _, page := range pages {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++

		res, err := s.reconciler.ReconcilePage(ctx, payment.PageKey{ID: page.ID}, payment.TriggerSweep)
		if err != nil {
			stats.Failed++
			s.logger.Warn("sweep reconciliation failed", "page_id", page.ID, "error", err)
			continue
		}
		if res.Paid && !res.AlreadyPaid {
			stats.Paid++
		}
	}

	s.logger.Info("pending payment sweep finished",
		"checked", stats.Checked,
		"paid", stats.Paid,
		"failed", stats.Failed,
	)
	return stats, nil
}
