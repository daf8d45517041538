// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/olegiv/tribute-go/internal/payment"
)

// HeaderIdempotencyKey lets a client retry a payment creation safely.
const HeaderIdempotencyKey = "X-Idempotency-Key"

// CreatePaymentRequest is the body of both payment creation endpoints.
// Amount is accepted for compatibility and never used as the charge.
type CreatePaymentRequest struct {
	payment.CreateRequest
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

func (req CreatePaymentRequest) toCreateRequest(r *http.Request) payment.CreateRequest {
	cr := req.CreateRequest
	cr.Amount = req.Amount
	cr.IdempotencyKey = r.Header.Get(HeaderIdempotencyKey)
	return cr
}

// PixResponse carries the QR artifacts of a direct payment.
type PixResponse struct {
	ProviderID  string `json:"providerId"`
	Status      string `json:"status"`
	QRCode      string `json:"qrCode"`
	QRCodeImage string `json:"qrCodeImage"`
	Amount      string `json:"amount"`
}

// CheckoutResponse carries the hosted checkout redirect.
type CheckoutResponse struct {
	RedirectURL  string `json:"redirectUrl"`
	PreferenceID string `json:"preferenceId"`
	Amount       string `json:"amount"`
}

// CreatePixPayment handles POST /api/payments/pix.
func (h *Handler) CreatePixPayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pix, err := h.creator.CreatePix(r.Context(), req.toCreateRequest(r))
	if err != nil {
		h.writePaymentError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, PixResponse{
		ProviderID:  pix.ProviderID,
		Status:      pix.Status,
		QRCode:      pix.QRCode,
		QRCodeImage: pix.QRCodeBase64,
		Amount:      pix.Amount.StringFixed(2),
	})
}

// CreateCheckout handles POST /api/payments/checkout.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	co, err := h.creator.CreateCheckout(r.Context(), req.toCreateRequest(r))
	if err != nil {
		h.writePaymentError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, CheckoutResponse{
		RedirectURL:  co.RedirectURL,
		PreferenceID: co.PreferenceID,
		Amount:       co.Amount.StringFixed(2),
	})
}

// StatusRequest identifies the page to check. PageID wins over Slug.
type StatusRequest struct {
	PageID string `json:"pageId"`
	Slug   string `json:"slug"`
}

// StatusResponse is the normalized reconciliation outcome.
type StatusResponse struct {
	Paid      bool   `json:"paid"`
	Status    string `json:"status"`
	PaymentID string `json:"paymentId,omitempty"`
	Slug      string `json:"slug,omitempty"`
}

func statusFromResult(res payment.Result) StatusResponse {
	return StatusResponse{
		Paid:      res.Paid,
		Status:    res.Status,
		PaymentID: res.PaymentID,
		Slug:      res.Slug,
	}
}

// PaymentStatus handles POST and GET /api/payments/status. GET reads pageId
// or slug from the query string.
func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req.PageID = q.Get("pageId")
		req.Slug = q.Get("slug")
	} else if !decodeJSON(w, r, &req) {
		return
	}

	key := payment.PageKey{ID: strings.TrimSpace(req.PageID)}
	if key.ID == "" {
		key.Slug = strings.TrimSpace(req.Slug)
	}

	res, err := h.reconciler.ReconcilePage(r.Context(), key, payment.TriggerPoll)
	if err != nil {
		h.writePaymentError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, statusFromResult(res))
}

// ConfirmRequest is sent by the browser when it returns from the hosted
// checkout. PaymentID and Status are whatever the redirect carried.
type ConfirmRequest struct {
	PageID    string `json:"pageId"`
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

// ConfirmPayment handles POST /api/payments/confirm. The client-reported
// payment id and status are never trusted; the page is reconciled against
// the provider.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pageID := strings.TrimSpace(req.PageID)
	if pageID == "" {
		WriteValidationError(w, map[string]string{"pageId": "is required"})
		return
	}

	res, err := h.reconciler.ReconcilePage(r.Context(), payment.PageKey{ID: pageID}, payment.TriggerReturn)
	if err != nil {
		h.writePaymentError(w, r, err)
		return
	}

	if req.Status != "" && !strings.EqualFold(req.Status, res.Status) {
		h.logger.Debug("client-reported status differs from provider",
			"page_id", pageID, "client_status", req.Status, "status", res.Status)
	}

	WriteJSON(w, http.StatusOK, statusFromResult(res))
}
