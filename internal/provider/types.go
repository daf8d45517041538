// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ID is a provider object id. Mercado Pago sends payment ids as JSON numbers
// and preference ids as strings; both decode to their decimal text.
type ID string

// UnmarshalJSON accepts a JSON number, string or null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("provider id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Payment is a provider payment as far as this service cares about it.
type Payment struct {
	ID                ID              `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	ExternalReference string          `json:"external_reference"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	DateCreated       time.Time       `json:"date_created"`
	DateApproved      *time.Time      `json:"date_approved,omitempty"`

	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

// QRCode returns the copy-paste code for QR-style methods.
func (p *Payment) QRCode() string {
	return p.PointOfInteraction.TransactionData.QRCode
}

// QRCodeBase64 returns the scannable image for QR-style methods.
func (p *Payment) QRCodeBase64() string {
	return p.PointOfInteraction.TransactionData.QRCodeBase64
}

// Phone is a payer phone split the way the provider expects it.
type Phone struct {
	AreaCode string `json:"area_code"`
	Number   string `json:"number"`
}

// Payer identifies who pays.
type Payer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     *Phone `json:"phone,omitempty"`
}

// CreatePaymentRequest creates a direct payment. Amount is always the
// server-side price.
type CreatePaymentRequest struct {
	Amount            decimal.Decimal
	Description       string
	PaymentMethodID   string
	Payer             Payer
	ExternalReference string
	NotificationURL   string
	// IdempotencyKey is sent as X-Idempotency-Key so a retried submission
	// does not create a second charge.
	IdempotencyKey string
}

// amountJSON renders a price as a JSON number with two decimals.
// decimal.Decimal marshals as a quoted string, which the provider rejects.
func amountJSON(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

type createPaymentBody struct {
	TransactionAmount json.Number `json:"transaction_amount"`
	Description       string      `json:"description"`
	PaymentMethodID   string      `json:"payment_method_id"`
	Payer             Payer       `json:"payer"`
	ExternalReference string      `json:"external_reference"`
	NotificationURL   string      `json:"notification_url,omitempty"`
}

// BackURLs are where the provider returns the browser after checkout.
type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// CreatePreferenceRequest creates a hosted checkout for a single item.
type CreatePreferenceRequest struct {
	Title             string
	Amount            decimal.Decimal
	CurrencyID        string
	Payer             Payer
	ExternalReference string
	NotificationURL   string
	BackURLs          BackURLs
	IdempotencyKey    string
}

type preferenceItem struct {
	Title      string      `json:"title"`
	Quantity   int         `json:"quantity"`
	UnitPrice  json.Number `json:"unit_price"`
	CurrencyID string      `json:"currency_id"`
}

type idRef struct {
	ID string `json:"id"`
}

type preferencePaymentMethods struct {
	ExcludedPaymentTypes   []idRef `json:"excluded_payment_types"`
	ExcludedPaymentMethods []idRef `json:"excluded_payment_methods"`
	DefaultPaymentMethodID string  `json:"default_payment_method_id"`
	Installments           int     `json:"installments"`
}

type preferencePayer struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type createPreferenceBody struct {
	Items             []preferenceItem         `json:"items"`
	Payer             preferencePayer          `json:"payer"`
	ExternalReference string                   `json:"external_reference"`
	NotificationURL   string                   `json:"notification_url,omitempty"`
	BackURLs          BackURLs                 `json:"back_urls"`
	AutoReturn        string                   `json:"auto_return"`
	PaymentMethods    preferencePaymentMethods `json:"payment_methods"`
}

// Preference is a created hosted checkout.
type Preference struct {
	ID               ID     `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

type searchResponse struct {
	Results []Payment `json:"results"`
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Cause   []struct {
		Code        json.RawMessage `json:"code"`
		Description string          `json:"description"`
	} `json:"cause"`
}

func (e apiError) detail() string {
	switch {
	case e.Message != "" && len(e.Cause) > 0 && e.Cause[0].Description != "":
		return e.Message + ": " + e.Cause[0].Description
	case e.Message != "":
		return e.Message
	default:
		return e.Error
	}
}
