// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package payment

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/olegiv/tribute-go/internal/cache"
	"github.com/olegiv/tribute-go/internal/model"
	"github.com/olegiv/tribute-go/internal/provider"
	"github.com/olegiv/tribute-go/internal/store"
)

// Trigger names what asked for a reconciliation.
type Trigger string

// Triggers.
const (
	TriggerWebhook Trigger = "webhook"
	TriggerPoll    Trigger = "poll"
	TriggerReturn  Trigger = "return"
	TriggerSweep   Trigger = "sweep"
)

// Background reports whether failures are logged rather than shown to a user.
func (t Trigger) Background() bool {
	return t == TriggerWebhook || t == TriggerSweep
}

// PageKey identifies a page by id or, when the id is unavailable, by slug.
type PageKey struct {
	ID   string
	Slug string
}

func (k PageKey) flightKey() string {
	if k.ID != "" {
		return "id:" + k.ID
	}
	return "slug:" + k.Slug
}

// Result is the normalized outcome returned to every trigger.
type Result struct {
	PageID    string `json:"page_id"`
	Paid      bool   `json:"paid"`
	Status    string `json:"status"`
	PaymentID string `json:"payment_id,omitempty"`
	Slug      string `json:"slug,omitempty"`

	// AlreadyPaid is set when the page was paid before this call.
	AlreadyPaid bool `json:"already_paid"`
	// Persisted is false when the provider confirmed payment but the paid
	// state could not be written. The next reconciliation retries the write.
	Persisted bool `json:"persisted"`
}

// DefaultReconcileTimeout bounds one whole reconciliation, every provider
// call and store write included.
const DefaultReconcileTimeout = 20 * time.Second

// ReconcilerOptions holds optional collaborators.
type ReconcilerOptions struct {
	Cache    cache.Cache // nil disables result caching
	CacheTTL time.Duration
	Notifier Notifier // nil disables paid notifications
	Logger   *slog.Logger
	// Timeout is the overall budget of one reconciliation. Zero means
	// DefaultReconcileTimeout.
	Timeout time.Duration
}

// Reconciler derives a page's true payment state from the provider and
// applies it with a conditional write.
type Reconciler struct {
	provider Provider
	store    Store
	paid     *cache.TypedCache[Result]
	notifier Notifier
	logger   *slog.Logger
	group    singleflight.Group
	timeout  time.Duration
	now      func() time.Time
}

// NewReconciler creates a reconciler.
func NewReconciler(p Provider, s Store, opts ReconcilerOptions) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		provider: p,
		store:    s,
		notifier: opts.Notifier,
		logger:   logger.With("category", model.EventCategoryPayment),
		timeout:  opts.Timeout,
		now:      time.Now,
	}
	if r.timeout <= 0 {
		r.timeout = DefaultReconcileTimeout
	}
	if opts.Cache != nil {
		r.paid = cache.NewTypedCache[Result](opts.Cache, opts.CacheTTL)
	}
	return r
}

// ReconcilePage re-derives the payment state of one page. A page that is
// already paid returns without any provider call. Concurrent calls for the
// same key in this process share one execution.
func (r *Reconciler) ReconcilePage(ctx context.Context, key PageKey, trigger Trigger) (Result, error) {
	const op = "reconcile page"

	key.ID = strings.TrimSpace(key.ID)
	key.Slug = strings.TrimSpace(key.Slug)
	if key.ID == "" && key.Slug == "" {
		return Result{}, validationError(op, map[string]string{"pageId": "is required"})
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if key.ID != "" {
		if res, ok := r.cachedPaid(ctx, key.ID); ok {
			return res, nil
		}
	}

	v, err, _ := r.group.Do(key.flightKey(), func() (interface{}, error) {
		// Shared by every waiter; one caller going away must not fail the rest.
		fctx, cancel := detach(ctx)
		defer cancel()

		page, err := r.loadPage(fctx, op, key)
		if err != nil {
			return Result{}, err
		}
		return r.reconcile(fctx, op, page, nil, trigger)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// ReconcilePayment handles a provider notification about one payment. The
// page is taken from the payment's own external reference as reported by
// the provider, never from the notification body.
func (r *Reconciler) ReconcilePayment(ctx context.Context, providerPaymentID string, trigger Trigger) (Result, error) {
	const op = "reconcile payment"

	providerPaymentID = strings.TrimSpace(providerPaymentID)
	if providerPaymentID == "" {
		return Result{}, validationError(op, map[string]string{"paymentId": "is required"})
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	p, err := r.provider.GetPayment(ctx, providerPaymentID)
	if err != nil {
		return Result{}, fromProvider(op, err)
	}
	ref := strings.TrimSpace(p.ExternalReference)
	if ref == "" {
		return Result{}, newError(ErrNotFound, op, "provider payment has no external reference", nil)
	}

	if res, ok := r.cachedPaid(ctx, ref); ok {
		return res, nil
	}

	key := PageKey{ID: ref}
	v, err, _ := r.group.Do(key.flightKey(), func() (interface{}, error) {
		fctx, cancel := detach(ctx)
		defer cancel()

		page, err := r.loadPage(fctx, op, key)
		if err != nil {
			return Result{}, err
		}
		return r.reconcile(fctx, op, page, p, trigger)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// detach drops ctx's cancellation but keeps its values and deadline.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	d := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(d, deadline)
	}
	return d, func() {}
}

func (r *Reconciler) loadPage(ctx context.Context, op string, key PageKey) (model.Page, error) {
	var (
		page model.Page
		err  error
	)
	if key.ID != "" {
		page, err = r.store.GetPageByID(ctx, key.ID)
	} else {
		page, err = r.store.GetPageBySlug(ctx, key.Slug)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Page{}, notFound(op, "page")
		}
		return model.Page{}, newError(ErrPersistence, op, "loading page", err)
	}
	return page, nil
}

// reconcile applies the provider's view to the page. known, when set, is a
// payment already fetched from the provider for this page.
func (r *Reconciler) reconcile(ctx context.Context, op string, page model.Page, known *provider.Payment, trigger Trigger) (Result, error) {
	log := r.logger.With("page_id", page.ID, "trigger", string(trigger))

	if page.IsPaid {
		res := paidResult(page, true)
		r.storePaid(ctx, res)
		return res, nil
	}

	var (
		chosen *provider.Payment
		err    error
	)
	if known != nil && model.IsPaidStatus(known.Status) {
		chosen = known
	} else {
		chosen, err = r.determine(ctx, page, known)
		if err != nil {
			log.Warn("provider lookup failed during reconciliation", "error", err)
			return Result{}, fromProvider(op, err)
		}
	}

	if chosen == nil {
		return Result{
			PageID: page.ID,
			Status: model.PaymentStatusPending,
			Slug:   page.Slug,
		}, nil
	}

	if model.IsPaidStatus(chosen.Status) {
		return r.applyPaid(ctx, log, page, chosen)
	}
	return r.applyUnpaid(ctx, log, page, chosen)
}

// determine picks the provider payment that decides the page's state:
// any approved or authorized attempt wins regardless of age, otherwise the
// newest attempt supplies the advisory status. It returns nil when the
// provider knows no payment for the page.
func (r *Reconciler) determine(ctx context.Context, page model.Page, known *provider.Payment) (*provider.Payment, error) {
	var candidates []provider.Payment
	if known != nil {
		candidates = append(candidates, *known)
	}

	if page.HasPayment() && (known == nil || string(known.ID) != page.PaymentID.String) {
		p, err := r.provider.GetPayment(ctx, page.PaymentID.String)
		switch {
		case err == nil:
			if matchesPage(p, page) {
				if model.IsPaidStatus(p.Status) {
					return p, nil
				}
				candidates = append(candidates, *p)
			}
		case provider.IsNotFound(err):
			// Fall through to the search.
		default:
			return nil, err
		}
	}

	results, err := r.provider.SearchPayments(ctx, page.ExternalReference())
	if err != nil {
		// The stored attempt alone is still a valid, unpaid answer.
		if len(candidates) > 0 {
			r.logger.Warn("provider search failed, using stored attempt",
				"page_id", page.ID, "error", err)
			return pick(candidates), nil
		}
		return nil, err
	}
	for i := range results {
		if matchesPage(&results[i], page) {
			candidates = append(candidates, results[i])
		}
	}
	return pick(candidates), nil
}

// pick applies the precedence rule to a candidate set.
func pick(candidates []provider.Payment) *provider.Payment {
	if len(candidates) == 0 {
		return nil
	}
	sorted := make([]provider.Payment, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DateCreated.After(sorted[j].DateCreated)
	})
	for i := range sorted {
		if model.IsPaidStatus(sorted[i].Status) {
			return &sorted[i]
		}
	}
	return &sorted[0]
}

func matchesPage(p *provider.Payment, page model.Page) bool {
	return p != nil && p.ID != "" && p.ExternalReference == page.ExternalReference()
}

func (r *Reconciler) applyPaid(ctx context.Context, log *slog.Logger, page model.Page, p *provider.Payment) (Result, error) {
	paidAt := r.now().UTC()
	status := strings.ToLower(strings.TrimSpace(p.Status))

	n, err := r.store.MarkPagePaid(ctx, store.MarkPagePaidParams{
		ID:            page.ID,
		PaymentID:     string(p.ID),
		PaymentStatus: status,
		PaidAt:        paidAt,
	})
	if err != nil {
		// The provider is authoritative: report paid, keep the page
		// reconcilable, and leave a durable trace.
		log.Error("persisting paid state failed after provider confirmation",
			"payment_id", string(p.ID), "status", status, "error", err)
		return Result{
			PageID:    page.ID,
			Paid:      true,
			Status:    status,
			PaymentID: string(p.ID),
			Slug:      page.Slug,
		}, nil
	}

	if n == 0 {
		// Another reconciliation won the conditional write.
		current, lerr := r.store.GetPageByID(ctx, page.ID)
		if lerr == nil && current.IsPaid {
			res := paidResult(current, true)
			r.storePaid(ctx, res)
			return res, nil
		}
		return Result{
			PageID:      page.ID,
			Paid:        true,
			Status:      status,
			PaymentID:   string(p.ID),
			Slug:        page.Slug,
			AlreadyPaid: true,
		}, nil
	}

	page.IsPaid = true
	page.PaymentID = sql.NullString{String: string(p.ID), Valid: true}
	page.PaymentStatus = sql.NullString{String: status, Valid: true}
	page.PaidAt = sql.NullTime{Time: paidAt, Valid: true}

	log.Info("page marked as paid", "payment_id", string(p.ID), "status", status)

	res := paidResult(page, false)
	r.storePaid(ctx, res)
	if r.notifier != nil {
		r.notifier.PagePaid(ctx, page)
	}
	return res, nil
}

func (r *Reconciler) applyUnpaid(ctx context.Context, log *slog.Logger, page model.Page, p *provider.Payment) (Result, error) {
	status := strings.ToLower(strings.TrimSpace(p.Status))
	if status == "" {
		status = model.PaymentStatusPending
	}
	res := Result{
		PageID:    page.ID,
		Status:    status,
		PaymentID: string(p.ID),
		Slug:      page.Slug,
		Persisted: true,
	}

	n, err := r.store.UpdatePaymentStatus(ctx, store.UpdatePaymentStatusParams{
		ID:            page.ID,
		PaymentStatus: status,
		PaymentID:     sql.NullString{String: string(p.ID), Valid: true},
		UpdatedAt:     r.now().UTC(),
	})
	if err != nil {
		log.Warn("recording payment status failed", "payment_id", string(p.ID), "status", status, "error", err)
		res.Persisted = false
		return res, nil
	}
	if n == 0 {
		// Paid between our read and this write.
		if current, lerr := r.store.GetPageByID(ctx, page.ID); lerr == nil && current.IsPaid {
			paid := paidResult(current, true)
			r.storePaid(ctx, paid)
			return paid, nil
		}
	}
	return res, nil
}

func paidResult(page model.Page, alreadyPaid bool) Result {
	status := page.PaymentStatus.String
	if status == "" {
		status = model.PaymentStatusApproved
	}
	return Result{
		PageID:      page.ID,
		Paid:        true,
		Status:      status,
		PaymentID:   page.PaymentID.String,
		Slug:        page.Slug,
		AlreadyPaid: alreadyPaid,
		Persisted:   true,
	}
}

func paidCacheKey(pageID string) string {
	return "paid:" + pageID
}

func (r *Reconciler) cachedPaid(ctx context.Context, pageID string) (Result, bool) {
	if r.paid == nil {
		return Result{}, false
	}
	res, err := r.paid.Get(ctx, paidCacheKey(pageID))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.logger.Debug("paid cache read failed", "page_id", pageID, "error", err, "category", model.EventCategoryCache)
		}
		return Result{}, false
	}
	if !res.Paid || !res.Persisted {
		return Result{}, false
	}
	res.AlreadyPaid = true
	return res, true
}

// storePaid caches a persisted paid result. Paid is terminal, so the entry
// never needs invalidation.
func (r *Reconciler) storePaid(ctx context.Context, res Result) {
	if r.paid == nil || !res.Paid || !res.Persisted {
		return
	}
	if err := r.paid.Set(ctx, paidCacheKey(res.PageID), res); err != nil {
		r.logger.Debug("paid cache write failed", "page_id", res.PageID, "error", err, "category", model.EventCategoryCache)
	}
}
