// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package payment

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olegiv/tribute-go/internal/model"
	"github.com/olegiv/tribute-go/internal/provider"
	"github.com/olegiv/tribute-go/internal/store"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "tribute-payment-test-*.db")
	require.NoError(t, err)
	dbPath := f.Name()
	_ = f.Close()

	db, err := store.NewDB(store.DriverSQLite, dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db, store.DriverSQLite))

	t.Cleanup(func() {
		_ = db.Close()
		_ = os.Remove(dbPath)
		_ = os.Remove(dbPath + "-wal")
		_ = os.Remove(dbPath + "-shm")
	})
	return db
}

func createPage(t *testing.T, q *store.Queries, id string) model.Page {
	t.Helper()
	page, err := q.CreatePage(context.Background(), store.CreatePageParams{
		ID:        id,
		Slug:      "for-ana-" + id,
		Title:     "For Ana",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return page
}

func getPage(t *testing.T, q *store.Queries, id string) model.Page {
	t.Helper()
	page, err := q.GetPageByID(context.Background(), id)
	require.NoError(t, err)
	return page
}

func setPaymentID(t *testing.T, q *store.Queries, pageID, paymentID string) {
	t.Helper()
	_, err := q.SetPendingPayment(context.Background(), store.SetPendingPaymentParams{
		ID:        pageID,
		PaymentID: sql.NullString{String: paymentID, Valid: true},
		UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

var errUnreachable = &provider.Error{Op: "test", Err: errors.New("dial tcp: i/o timeout")}

// fakeProvider is an in-memory provider with call counters.
type fakeProvider struct {
	mu       sync.Mutex
	payments map[string]provider.Payment
	// failAll makes every call fail as if the provider were unreachable.
	failAll    bool
	failSearch bool
	createErr  error
	createResp provider.Payment
	pref       provider.Preference
	// delay slows every lookup; ctx expiry cuts it short.
	delay time.Duration

	getCalls, searchCalls, createCalls, prefCalls int
	lastCreate                                    provider.CreatePaymentRequest
	lastPref                                      provider.CreatePreferenceRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{payments: map[string]provider.Payment{}}
}

func (f *fakeProvider) add(id, status, ref string, created time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[id] = provider.Payment{ID: provider.ID(id), Status: status, ExternalReference: ref, DateCreated: created}
}

func (f *fakeProvider) CreatePayment(_ context.Context, req provider.CreatePaymentRequest) (*provider.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.lastCreate = req
	if f.failAll {
		return nil, errUnreachable
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	p := f.createResp
	p.ExternalReference = req.ExternalReference
	p.TransactionAmount = req.Amount
	f.payments[string(p.ID)] = p
	return &p, nil
}

// wait simulates provider latency.
func (f *fakeProvider) wait(ctx context.Context) error {
	f.mu.Lock()
	d := f.delay
	f.mu.Unlock()
	if d == 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return &provider.Error{Op: "test", Err: ctx.Err()}
	}
}

func (f *fakeProvider) GetPayment(ctx context.Context, id string) (*provider.Payment, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.failAll {
		return nil, errUnreachable
	}
	p, ok := f.payments[id]
	if !ok {
		return nil, provider.ErrNotFound
	}
	return &p, nil
}

func (f *fakeProvider) SearchPayments(ctx context.Context, ref string) ([]provider.Payment, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	if f.failAll || f.failSearch {
		return nil, errUnreachable
	}
	var out []provider.Payment
	for _, p := range f.payments {
		if p.ExternalReference == ref {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProvider) CreatePreference(_ context.Context, req provider.CreatePreferenceRequest) (*provider.Preference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefCalls++
	f.lastPref = req
	if f.failAll {
		return nil, errUnreachable
	}
	p := f.pref
	return &p, nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls + f.searchCalls + f.createCalls + f.prefCalls
}

// failingStore wraps a real store and fails selected writes.
type failingStore struct {
	Store
	failMarkPaid bool
	failPending  bool
	failStatus   bool
}

var errDiskFull = errors.New("disk I/O error")

func (s *failingStore) MarkPagePaid(ctx context.Context, arg store.MarkPagePaidParams) (int64, error) {
	if s.failMarkPaid {
		return 0, errDiskFull
	}
	return s.Store.MarkPagePaid(ctx, arg)
}

func (s *failingStore) SetPendingPayment(ctx context.Context, arg store.SetPendingPaymentParams) (int64, error) {
	if s.failPending {
		return 0, errDiskFull
	}
	return s.Store.SetPendingPayment(ctx, arg)
}

func (s *failingStore) UpdatePaymentStatus(ctx context.Context, arg store.UpdatePaymentStatusParams) (int64, error) {
	if s.failStatus {
		return 0, errDiskFull
	}
	return s.Store.UpdatePaymentStatus(ctx, arg)
}

// recordingNotifier counts paid notifications.
type recordingNotifier struct {
	mu    sync.Mutex
	pages []model.Page
}

func (n *recordingNotifier) PagePaid(_ context.Context, page model.Page) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pages = append(n.pages, page)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pages)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
