// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/olegiv/tribute-go/internal/model"
	"github.com/olegiv/tribute-go/internal/util"
)

// Dispatcher delivers outbound events to a single configured endpoint
// through a bounded queue and a small worker pool.
type Dispatcher struct {
	url     string
	secret  string
	logger  *slog.Logger
	client  *resty.Client
	queue   chan *QueuedDelivery
	workers int
	backoff backoffPolicy
	wg      sync.WaitGroup
	done    chan struct{}
	mu      sync.RWMutex
	running bool
}

// QueuedDelivery represents a delivery queued for processing.
type QueuedDelivery struct {
	DeliveryID string
	Event      string
	Payload    []byte
	Attempts   int
}

// Config holds dispatcher configuration.
type Config struct {
	URL            string // empty disables delivery
	Secret         string
	Workers        int // Number of concurrent delivery workers
	QueueSize      int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RequestTimeout time.Duration
	// AllowPrivate permits delivery to loopback and private networks.
	AllowPrivate bool
}

// DefaultConfig returns default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Workers:        3,
		QueueSize:      100,
		InitialBackoff: InitialBackoff,
		MaxBackoff:     MaxBackoff,
		RequestTimeout: RequestTimeout,
	}
}

// NewDispatcher creates a new webhook dispatcher.
func NewDispatcher(logger *slog.Logger, cfg Config) *Dispatcher {
	defaults := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaults.MaxBackoff
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New().
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", UserAgent)
	if !cfg.AllowPrivate {
		client.SetTransport(&http.Transport{
			DialContext: util.SSRFSafeDialContext(&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}),
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     90 * time.Second,
		})
	}

	return &Dispatcher{
		url:     strings.TrimSpace(cfg.URL),
		secret:  cfg.Secret,
		logger:  logger.With("category", model.EventCategoryWebhook),
		client:  client,
		queue:   make(chan *QueuedDelivery, cfg.QueueSize),
		workers: cfg.Workers,
		backoff: backoffPolicy{initial: cfg.InitialBackoff, max: cfg.MaxBackoff},
		done:    make(chan struct{}),
	}
}

// Enabled reports whether a delivery endpoint is configured.
func (d *Dispatcher) Enabled() bool {
	return d.url != ""
}

// Start starts the dispatcher workers.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	d.logger.Info("starting webhook dispatcher", "workers", d.workers, "enabled", d.Enabled())

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Stop stops the dispatcher and waits for workers to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info("stopping webhook dispatcher")
	close(d.done)
	d.wg.Wait()

	if n := len(d.queue); n > 0 {
		d.logger.Warn("webhook dispatcher stopped with undelivered events", "pending", n)
	}
	d.logger.Info("webhook dispatcher stopped")
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	d.logger.Debug("webhook worker started", "worker_id", id)

	for {
		select {
		case <-d.done:
			d.logger.Debug("webhook worker stopping", "worker_id", id)
			return
		case <-ctx.Done():
			d.logger.Debug("webhook worker context cancelled", "worker_id", id)
			return
		case delivery := <-d.queue:
			d.processDelivery(ctx, delivery)
		}
	}
}

// Dispatch queues an event for delivery. It never blocks: when the queue is
// full the event is dropped and logged.
func (d *Dispatcher) Dispatch(_ context.Context, event *Event) error {
	if !d.Enabled() {
		return nil
	}

	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()

	if !running {
		d.logger.Warn("dispatcher not running, cannot dispatch event", "event_type", event.Type)
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("failed to marshal event payload", "error", err, "event_type", event.Type)
		return err
	}

	qd := &QueuedDelivery{
		DeliveryID: uuid.NewString(),
		Event:      event.Type,
		Payload:    payload,
	}

	select {
	case d.queue <- qd:
		d.logger.Debug("delivery queued", "delivery_id", qd.DeliveryID, "event_type", event.Type)
	default:
		d.logger.Warn("delivery queue full, event dropped", "delivery_id", qd.DeliveryID, "event_type", event.Type)
	}
	return nil
}

// PagePaid queues a page.paid event.
func (d *Dispatcher) PagePaid(ctx context.Context, page model.Page) {
	if err := d.Dispatch(ctx, NewEvent(EventPagePaid, NewPagePaidData(page))); err != nil {
		d.logger.Error("failed to dispatch page paid event", "page_id", page.ID, "error", err)
	}
}
