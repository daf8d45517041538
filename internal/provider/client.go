// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package provider is the network boundary to the Mercado Pago REST API.
// Every call runs under its own timeout.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the production API origin.
const DefaultBaseURL = "https://api.mercadopago.com"

// searchLimit caps how many attempts are considered for one page.
const searchLimit = 50

// Config configures the client.
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Client calls the payment provider.
type Client struct {
	http    *resty.Client
	timeout time.Duration
}

// New creates a provider client. The access token is only ever placed in the
// Authorization header.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: httpClient, timeout: timeout}
}

// CreatePayment creates a direct payment (e.g. Pix) and returns it with its
// QR artifacts.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	const op = "create payment"

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := createPaymentBody{
		TransactionAmount: amountJSON(req.Amount),
		Description:       req.Description,
		PaymentMethodID:   req.PaymentMethodID,
		Payer:             req.Payer,
		ExternalReference: req.ExternalReference,
		NotificationURL:   req.NotificationURL,
	}

	r := c.http.R().SetContext(ctx).SetBody(body)
	if req.IdempotencyKey != "" {
		r.SetHeader("X-Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := r.Post("/v1/payments")
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	if err := checkResponse(op, resp); err != nil {
		return nil, err
	}

	var p Payment
	if err := decode(op, resp, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode(), Detail: "response has no payment id"}
	}
	return &p, nil
}

// GetPayment fetches the current state of a payment. It returns ErrNotFound
// when the provider does not know the id.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	const op = "get payment"

	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Get("/v1/payments/{id}")
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err := checkResponse(op, resp); err != nil {
		return nil, err
	}

	var p Payment
	if err := decode(op, resp, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SearchPayments lists payments carrying the external reference, newest
// first. No match is an empty slice, not an error.
func (c *Client) SearchPayments(ctx context.Context, externalReference string) ([]Payment, error) {
	const op = "search payments"

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("external_reference", externalReference)
	params.Set("sort", "date_created")
	params.Set("criteria", "desc")
	params.Set("limit", fmt.Sprint(searchLimit))

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get("/v1/payments/search")
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	if err := checkResponse(op, resp); err != nil {
		return nil, err
	}

	var out searchResponse
	if err := decode(op, resp, &out); err != nil {
		return nil, err
	}

	results := make([]Payment, 0, len(out.Results))
	for _, p := range out.Results {
		// The search matches by prefix on some accounts; keep exact matches only.
		if p.ExternalReference == externalReference {
			results = append(results, p)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DateCreated.After(results[j].DateCreated)
	})
	return results, nil
}

// CreatePreference creates a hosted checkout with a single item.
func (c *Client) CreatePreference(ctx context.Context, req CreatePreferenceRequest) (*Preference, error) {
	const op = "create preference"

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := createPreferenceBody{
		Items: []preferenceItem{{
			Title:      req.Title,
			Quantity:   1,
			UnitPrice:  amountJSON(req.Amount),
			CurrencyID: req.CurrencyID,
		}},
		Payer: preferencePayer{
			Email: req.Payer.Email,
			Name:  req.Payer.FirstName,
		},
		ExternalReference: req.ExternalReference,
		NotificationURL:   req.NotificationURL,
		BackURLs:          req.BackURLs,
		AutoReturn:        "approved",
		PaymentMethods: preferencePaymentMethods{
			ExcludedPaymentTypes:   []idRef{{ID: "ticket"}},
			ExcludedPaymentMethods: []idRef{{ID: "pec"}},
			DefaultPaymentMethodID: "pix",
			Installments:           1,
		},
	}

	r := c.http.R().SetContext(ctx).SetBody(body)
	if req.IdempotencyKey != "" {
		r.SetHeader("X-Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := r.Post("/checkout/preferences")
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	if err := checkResponse(op, resp); err != nil {
		return nil, err
	}

	var pref Preference
	if err := decode(op, resp, &pref); err != nil {
		return nil, err
	}
	if pref.InitPoint == "" {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode(), Detail: "response has no init_point"}
	}
	return &pref, nil
}

func checkResponse(op string, resp *resty.Response) error {
	if resp.StatusCode() >= 200 && resp.StatusCode() < 300 {
		return nil
	}
	var apiErr apiError
	detail := ""
	if err := json.Unmarshal(resp.Body(), &apiErr); err == nil {
		detail = apiErr.detail()
	}
	return &Error{Op: op, StatusCode: resp.StatusCode(), Detail: detail}
}

func decode(op string, resp *resty.Response, v interface{}) error {
	if err := json.Unmarshal(resp.Body(), v); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode(), Detail: "malformed response", Err: err}
	}
	return nil
}

// IsNotFound reports whether err means the provider has no such object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
