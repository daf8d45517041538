// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/tribute-go/internal/model"
	"github.com/olegiv/tribute-go/internal/provider"
	"github.com/olegiv/tribute-go/internal/store"
)

var testPrice = decimal.RequireFromString("19.90")

func newTestCreator(t *testing.T, p Provider, s Store) *Creator {
	t.Helper()
	c, err := NewCreator(p, s, CreatorConfig{
		Price:           testPrice,
		Currency:        "BRL",
		ItemTitle:       "Tribute page",
		NotificationURL: "https://tribute.example.com/api/webhooks/mercadopago",
		BackURLs: provider.BackURLs{
			Success: "https://tribute.example.com/checkout/success",
			Failure: "https://tribute.example.com/checkout/failure",
			Pending: "https://tribute.example.com/checkout/pending",
		},
	}, discardLogger())
	require.NoError(t, err)
	return c
}

func TestNewCreator_InvalidPrice(t *testing.T) {
	_, err := NewCreator(newFakeProvider(), nil, CreatorConfig{Price: decimal.Zero}, discardLogger())
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestCreatePix_RecordsPendingPayment(t *testing.T) {
	q := store.New(newTestDB(t))
	createPage(t, q, "p1")

	fp := newFakeProvider()
	fp.createResp = provider.Payment{ID: "123", Status: "pending"}
	fp.createResp.PointOfInteraction.TransactionData.QRCode = "00020126580014br.gov.bcb.pix"
	fp.createResp.PointOfInteraction.TransactionData.QRCodeBase64 = "iVBORw0KGgo="

	pix, err := newTestCreator(t, fp, q).CreatePix(context.Background(), CreateRequest{
		PageID:     "p1",
		PayerEmail: "ana@example.com",
		PayerName:  "Ana Maria Souza",
		PayerPhone: "(11) 98765-4321",
	})
	require.NoError(t, err)

	assert.Equal(t, "123", pix.ProviderID)
	assert.Equal(t, "00020126580014br.gov.bcb.pix", pix.QRCode)
	assert.Equal(t, "iVBORw0KGgo=", pix.QRCodeBase64)
	assert.True(t, pix.Amount.Equal(testPrice))

	page := getPage(t, q, "p1")
	assert.Equal(t, "123", page.PaymentID.String)
	assert.Equal(t, model.PaymentStatusPending, page.PaymentStatus.String)
	assert.False(t, page.IsPaid)
	assert.False(t, page.PaidAt.Valid)

	req := fp.lastCreate
	assert.Equal(t, 1, fp.createCalls)
	assert.Equal(t, "p1", req.ExternalReference)
	assert.Equal(t, PaymentMethodPix, req.PaymentMethodID)
	assert.Equal(t, "Ana", req.Payer.FirstName)
	assert.Equal(t, "Maria Souza", req.Payer.LastName)
	require.NotNil(t, req.Payer.Phone)
	assert.Equal(t, "11", req.Payer.Phone.AreaCode)
	assert.Equal(t, "Tribute page - For Ana", req.Description)
	assert.Equal(t, "https://tribute.example.com/api/webhooks/mercadopago", req.NotificationURL)
}

func TestCreatePix_IgnoresClientAmount(t *testing.T) {
	q := store.New(newTestDB(t))
	createPage(t, q, "p1")

	fp := newFakeProvider()
	fp.createResp = provider.Payment{ID: "123", Status: "pending"}

	tampered := decimal.RequireFromString("0.01")
	pix, err := newTestCreator(t, fp, q).CreatePix(context.Background(), CreateRequest{
		PageID:     "p1",
		PayerEmail: "ana@example.com",
		Amount:     &tampered,
	})
	require.NoError(t, err)

	assert.True(t, fp.lastCreate.Amount.Equal(testPrice), "provider got %s", fp.lastCreate.Amount)
	assert.True(t, pix.Amount.Equal(testPrice))
}

func TestCreatePix_Validation(t *testing.T) {
	fp := newFakeProvider()
	c := newTestCreator(t, fp, store.New(newTestDB(t)))

	tests := []struct {
		name  string
		req   CreateRequest
		field string
	}{
		{"missing page id", CreateRequest{PayerEmail: "ana@example.com"}, "pageId"},
		{"blank page id", CreateRequest{PageID: "   ", PayerEmail: "ana@example.com"}, "pageId"},
		{"missing email", CreateRequest{PageID: "p1"}, "payerEmail"},
		{"invalid email", CreateRequest{PageID: "p1", PayerEmail: "not-an-email"}, "payerEmail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreatePix(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			assert.Contains(t, FieldErrors(err), tt.field)
			assert.False(t, Retryable(err))
		})
	}
	assert.Equal(t, 0, fp.calls(), "no provider call on invalid input")
}

func TestCreatePix_PageNotFound(t *testing.T) {
	fp := newFakeProvider()
	_, err := newTestCreator(t, fp, store.New(newTestDB(t))).CreatePix(context.Background(), CreateRequest{
		PageID:     "missing",
		PayerEmail: "ana@example.com",
	})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 0, fp.calls())
}

func TestCreatePix_AlreadyPaid(t *testing.T) {
	q := store.New(newTestDB(t))
	createPage(t, q, "p1")
	_, err := q.MarkPagePaid(context.Background(), store.MarkPagePaidParams{ID: "p1", PaymentID: "1", PaymentStatus: "approved"})
	require.NoError(t, err)

	fp := newFakeProvider()
	_, err = newTestCreator(t, fp, q).CreatePix(context.Background(), CreateRequest{PageID: "p1", PayerEmail: "ana@example.com"})
	assert.True(t, errors.Is(err, ErrAlreadyPaid))
	assert.Equal(t, 0, fp.calls())
}

func TestCreatePix_ProviderFailureLeavesPageUnchanged(t *testing.T) {
	q := store.New(newTestDB(t))
	createPage(t, q, "p1")

	fp := newFakeProvider()
	fp.createErr = &provider.Error{Op: "create payment", StatusCode: 400, Detail: "invalid payer email"}

	_, err := newTestCreator(t, fp, q).CreatePix(context.Background(), CreateRequest{PageID: "p1", PayerEmail: "ana@example.com"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProvider))
	assert.False(t, Retryable(err), "a 400 rejection is final")
	assert.Contains(t, err.Error(), "invalid payer email")

	page := getPage(t, q, "p1")
	assert.False(t, page.PaymentID.Valid)
	assert.False(t, page.PaymentStatus.Valid)
}

func TestCreatePix_StoreFailureStillReturnsArtifacts(t *testing.T) {
	q := store.New(newTestDB(t))
	createPage(t, q, "p1")

	fp := newFakeProvider()
	fp.createResp = provider.Payment{ID: "123", Status: "pending"}

	pix, err := newTestCreator(t, fp, &failingStore{Store: q, failPending: true}).
		CreatePix(context.Background(), CreateRequest{PageID: "p1", PayerEmail: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "123", pix.ProviderID)
}

func TestCreatePix_IdempotencyKey(t *testing.T) {
	q := store.New(newTestDB(t))
	createPage(t, q, "p1")

	fp := newFakeProvider()
	fp.createResp = provider.Payment{ID: "123", Status: "pending"}
	c := newTestCreator(t, fp, q)

	clientKey := uuid.NewString()
	_, err := c.CreatePix(context.Background(), CreateRequest{PageID: "p1", PayerEmail: "ana@example.com", IdempotencyKey: clientKey})
	require.NoError(t, err)
	assert.Equal(t, clientKey, fp.lastCreate.IdempotencyKey)

	_, err = c.CreatePix(context.Background(), CreateRequest{PageID: "p1", PayerEmail: "ana@example.com", IdempotencyKey: "retry-1"})
	require.NoError(t, err)
	first := fp.lastCreate.IdempotencyKey
	assert.NotEqual(t, "retry-1", first)
	_, err = uuid.Parse(first)
	assert.NoError(t, err)

	_, err = c.CreatePix(context.Background(), CreateRequest{PageID: "p1", PayerEmail: "ana@example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, first, fp.lastCreate.IdempotencyKey, "each attempt gets its own key")
}

func TestCreatePix_UnparseablePhoneDropped(t *testing.T) {
	q := store.New(newTestDB(t))
	createPage(t, q, "p1")

	fp := newFakeProvider()
	fp.createResp = provider.Payment{ID: "123"}

	_, err := newTestCreator(t, fp, q).CreatePix(context.Background(), CreateRequest{
		PageID:     "p1",
		PayerEmail: "ana@example.com",
		PayerPhone: "12-34",
	})
	require.NoError(t, err)
	assert.Nil(t, fp.lastCreate.Payer.Phone)
	assert.Equal(t, "ana", fp.lastCreate.Payer.FirstName)
}

func TestCreateCheckout(t *testing.T) {
	q := store.New(newTestDB(t))
	createPage(t, q, "p1")

	fp := newFakeProvider()
	fp.pref = provider.Preference{ID: "pref-1", InitPoint: "https://mp.example.com/checkout/pref-1"}

	tampered := decimal.NewFromInt(1)
	co, err := newTestCreator(t, fp, q).CreateCheckout(context.Background(), CreateRequest{
		PageID:     "p1",
		PayerEmail: "ana@example.com",
		PayerName:  "Ana",
		Amount:     &tampered,
	})
	require.NoError(t, err)

	assert.Equal(t, "pref-1", co.PreferenceID)
	assert.Equal(t, "https://mp.example.com/checkout/pref-1", co.RedirectURL)
	assert.True(t, fp.lastPref.Amount.Equal(testPrice))
	assert.Equal(t, "BRL", fp.lastPref.CurrencyID)
	assert.Equal(t, "p1", fp.lastPref.ExternalReference)
	assert.Equal(t, "https://tribute.example.com/checkout/success", fp.lastPref.BackURLs.Success)

	page := getPage(t, q, "p1")
	assert.Equal(t, model.PaymentStatusPending, page.PaymentStatus.String)
	assert.False(t, page.PaymentID.Valid, "no provider payment exists yet")
	assert.False(t, page.IsPaid)
}

func TestCreateCheckout_ProviderFailure(t *testing.T) {
	q := store.New(newTestDB(t))
	createPage(t, q, "p1")

	fp := newFakeProvider()
	fp.failAll = true

	_, err := newTestCreator(t, fp, q).CreateCheckout(context.Background(), CreateRequest{PageID: "p1", PayerEmail: "ana@example.com"})
	assert.True(t, errors.Is(err, ErrProvider))
	assert.False(t, getPage(t, q, "p1").PaymentStatus.Valid)
}

func TestPayerNames(t *testing.T) {
	tests := []struct {
		name, email, first, last string
	}{
		{"Ana Maria Souza", "x@example.com", "Ana", "Maria Souza"},
		{"Ana", "x@example.com", "Ana", ""},
		{"", "joao.silva@example.com", "joao.silva", ""},
		{"  ", "bia@example.com", "bia", ""},
	}
	for _, tt := range tests {
		first, last := payerNames(tt.name, tt.email)
		assert.Equal(t, tt.first, first, tt.name)
		assert.Equal(t, tt.last, last, tt.name)
	}
}
