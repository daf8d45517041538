// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/tribute-go/internal/model"
	"github.com/olegiv/tribute-go/internal/payment"
	"github.com/olegiv/tribute-go/internal/provider"
	"github.com/olegiv/tribute-go/internal/store"
)

var testPrice = decimal.RequireFromString("19.90")

type testEnv struct {
	db      *sql.DB
	q       *store.Queries
	prov    *fakeProvider
	handler *Handler
	router  http.Handler
	logs    *syncBuffer
}

// syncBuffer collects log output from concurrent handlers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	return newTestEnvWith(t, opts, payment.ReconcilerOptions{})
}

func newTestEnvWith(t *testing.T, opts Options, recOpts payment.ReconcilerOptions) *testEnv {
	t.Helper()

	db := newTestDB(t)
	q := store.New(db)
	prov := newFakeProvider()
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))

	creator, err := payment.NewCreator(prov, q, payment.CreatorConfig{
		Price:           testPrice,
		Currency:        "BRL",
		ItemTitle:       "Tribute page",
		NotificationURL: "https://tribute.example/api/webhooks/mercadopago",
	}, logger)
	require.NoError(t, err)

	recOpts.Logger = logger
	reconciler := payment.NewReconciler(prov, q, recOpts)

	opts.Logger = logger
	h := NewHandler(db, creator, reconciler, opts)

	r := chi.NewRouter()
	r.Mount("/api", h.Routes(nil))

	return &testEnv{db: db, q: q, prov: prov, handler: h, router: r, logs: logs}
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "tribute-api-test-*.db")
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

func (e *testEnv) do(t *testing.T, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		encoded, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createPage(t *testing.T, id, title string) model.Page {
	t.Helper()
	page, err := e.q.CreatePage(context.Background(), store.CreatePageParams{
		ID:            id,
		Slug:          "for-ana-" + id,
		Title:         title,
		GalleryLayout: "grid",
		SelectedFrame: "none",
		CreatedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)
	return page
}

func (e *testEnv) page(t *testing.T, id string) model.Page {
	t.Helper()
	page, err := e.q.GetPageByID(context.Background(), id)
	require.NoError(t, err)
	return page
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

var errUnreachable = &provider.Error{Op: "test", Err: errors.New("dial tcp: i/o timeout")}

// fakeProvider is an in-memory provider with call counters.
type fakeProvider struct {
	mu        sync.Mutex
	payments  map[string]provider.Payment
	failAll   bool
	createErr error
	nextID    string
	pref      provider.Preference

	// delay slows lookups; ctx expiry cuts it short.
	delay time.Duration

	calls      int
	lastCreate provider.CreatePaymentRequest
}

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

func newFakeProvider() *fakeProvider {
	return &fakeProvider{payments: map[string]provider.Payment{}, nextID: "123"}
}

func (f *fakeProvider) add(id, status, ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[id] = provider.Payment{
		ID:                provider.ID(id),
		Status:            status,
		ExternalReference: ref,
		DateCreated:       time.Now().UTC(),
	}
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) CreatePayment(_ context.Context, req provider.CreatePaymentRequest) (*provider.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastCreate = req
	if f.failAll {
		return nil, errUnreachable
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	p := provider.Payment{
		ID:                provider.ID(f.nextID),
		Status:            model.PaymentStatusPending,
		ExternalReference: req.ExternalReference,
		TransactionAmount: req.Amount,
		DateCreated:       time.Now().UTC(),
	}
	p.PointOfInteraction.TransactionData.QRCode = "00020126pix"
	p.PointOfInteraction.TransactionData.QRCodeBase64 = "iVBORw0KGgo="
	f.payments[f.nextID] = p
	return &p, nil
}

func (f *fakeProvider) GetPayment(ctx context.Context, id string) (*provider.Payment, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
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
	f.calls++
	if f.failAll {
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

func (f *fakeProvider) CreatePreference(_ context.Context, _ provider.CreatePreferenceRequest) (*provider.Preference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAll {
		return nil, errUnreachable
	}
	p := f.pref
	return &p, nil
}
