// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "APP_USR-secret-token"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, AccessToken: testToken, Timeout: 2 * time.Second})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestCreatePayment(t *testing.T) {
	var (
		gotBody map[string]interface{}
		gotKey  string
		gotAuth string
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		gotKey = r.Header.Get("X-Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeJSON(w, http.StatusCreated, `{
			"id": 123,
			"status": "pending",
			"external_reference": "p1",
			"transaction_amount": 19.9,
			"date_created": "2026-01-02T10:00:00.000-03:00",
			"point_of_interaction": {"transaction_data": {"qr_code": "000201...", "qr_code_base64": "iVBOR..."}}
		}`)
	})

	p, err := client.CreatePayment(context.Background(), CreatePaymentRequest{
		Amount:            decimal.RequireFromString("19.90"),
		Description:       "Tribute page",
		PaymentMethodID:   "pix",
		Payer:             Payer{Email: "ana@example.com", FirstName: "Ana"},
		ExternalReference: "p1",
		NotificationURL:   "https://tribute.example.com/api/webhooks/mercadopago",
		IdempotencyKey:    "key-1",
	})
	require.NoError(t, err)

	assert.Equal(t, ID("123"), p.ID)
	assert.Equal(t, "pending", p.Status)
	assert.Equal(t, "000201...", p.QRCode())
	assert.Equal(t, "iVBOR...", p.QRCodeBase64())
	assert.True(t, p.TransactionAmount.Equal(decimal.RequireFromString("19.9")))

	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "Bearer "+testToken, gotAuth)
	assert.Equal(t, 19.9, gotBody["transaction_amount"])
	assert.Equal(t, "pix", gotBody["payment_method_id"])
	assert.Equal(t, "p1", gotBody["external_reference"])
}

func TestCreatePayment_ProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"message":"invalid payer","error":"bad_request","status":400,"cause":[{"code":2034,"description":"Invalid users involved"}]}`)
	})

	_, err := client.CreatePayment(context.Background(), CreatePaymentRequest{Amount: decimal.NewFromInt(1)})
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Equal(t, "invalid payer: Invalid users involved", perr.Detail)
	assert.False(t, perr.Temporary())
	assert.NotContains(t, err.Error(), testToken)
}

func TestCreatePayment_MissingID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `{"status":"pending"}`)
	})

	_, err := client.CreatePayment(context.Background(), CreatePaymentRequest{Amount: decimal.NewFromInt(1)})
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Detail, "no payment id")
	assert.True(t, perr.Temporary())
}

func TestGetPayment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/123", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"id":123,"status":"approved","external_reference":"p1"}`)
	})

	p, err := client.GetPayment(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "approved", p.Status)
	assert.Equal(t, "p1", p.ExternalReference)
}

func TestGetPayment_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"message":"Payment not found","status":404}`)
	})

	_, err := client.GetPayment(context.Background(), "999")
	assert.True(t, IsNotFound(err))

	_, err = client.GetPayment(context.Background(), "  ")
	assert.True(t, IsNotFound(err))
}

func TestGetPayment_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, `upstream down`)
	})

	_, err := client.GetPayment(context.Background(), "123")
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
	assert.True(t, perr.Temporary())
}

func TestGetPayment_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html><body>maintenance</body></html>")
	})

	_, err := client.GetPayment(context.Background(), "123")
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusOK, perr.StatusCode)
	assert.Equal(t, "malformed response", perr.Detail)
	assert.True(t, perr.Temporary(), "an unreadable success body may be fine on the next try")
}

func TestError_Temporary(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want bool
	}{
		{"transport failure", &Error{Op: "get", Err: errors.New("connection reset")}, true},
		{"malformed 200", &Error{Op: "get", StatusCode: http.StatusOK, Detail: "malformed response"}, true},
		{"created without id", &Error{Op: "create", StatusCode: http.StatusCreated, Detail: "response has no payment id"}, true},
		{"bad request", &Error{Op: "create", StatusCode: http.StatusBadRequest}, false},
		{"unauthorized", &Error{Op: "get", StatusCode: http.StatusUnauthorized}, false},
		{"request timeout", &Error{Op: "get", StatusCode: http.StatusRequestTimeout}, true},
		{"rate limited", &Error{Op: "get", StatusCode: http.StatusTooManyRequests}, true},
		{"server error", &Error{Op: "get", StatusCode: http.StatusInternalServerError}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Temporary())
		})
	}
}

func TestGetPayment_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	client := New(Config{BaseURL: srv.URL, AccessToken: testToken, Timeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := client.GetPayment(context.Background(), "123")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 0, perr.StatusCode)
	assert.True(t, perr.Temporary())
}

func TestSearchPayments(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "p1", q.Get("external_reference"))
		assert.Equal(t, "date_created", q.Get("sort"))
		assert.Equal(t, "desc", q.Get("criteria"))
		writeJSON(w, http.StatusOK, `{"results":[
			{"id":1,"status":"approved","external_reference":"p1","date_created":"2026-01-01T10:00:00.000-03:00"},
			{"id":2,"status":"pending","external_reference":"p1","date_created":"2026-01-02T10:00:00.000-03:00"},
			{"id":3,"status":"approved","external_reference":"p10","date_created":"2026-01-03T10:00:00.000-03:00"}
		]}`)
	})

	results, err := client.SearchPayments(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ID("2"), results[0].ID, "newest first")
	assert.Equal(t, ID("1"), results[1].ID)
}

func TestSearchPayments_Empty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"results":[],"paging":{"total":0}}`)
	})

	results, err := client.SearchPayments(context.Background(), "p2")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCreatePreference(t *testing.T) {
	var body map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusCreated, `{"id":"pref-1","init_point":"https://mp.example.com/checkout?pref=pref-1"}`)
	})

	pref, err := client.CreatePreference(context.Background(), CreatePreferenceRequest{
		Title:             "Tribute page - For Ana",
		Amount:            decimal.RequireFromString("19.90"),
		CurrencyID:        "BRL",
		Payer:             Payer{Email: "ana@example.com"},
		ExternalReference: "p1",
		BackURLs:          BackURLs{Success: "https://t.example.com/checkout/success"},
	})
	require.NoError(t, err)
	assert.Equal(t, ID("pref-1"), pref.ID)
	assert.True(t, strings.HasPrefix(pref.InitPoint, "https://"))

	assert.Equal(t, "approved", body["auto_return"])
	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	assert.Equal(t, 19.9, item["unit_price"])
	assert.Equal(t, float64(1), item["quantity"])
	methods := body["payment_methods"].(map[string]interface{})
	assert.Equal(t, "pix", methods["default_payment_method_id"])
	assert.Equal(t, float64(1), methods["installments"])
}

func TestIDUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want ID
	}{
		{`123`, "123"},
		{`"abc-1"`, "abc-1"},
		{`null`, ""},
		{`12345678901234567890`, "12345678901234567890"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var id ID
			require.NoError(t, json.Unmarshal([]byte(tt.in), &id))
			assert.Equal(t, tt.want, id)
		})
	}
}
