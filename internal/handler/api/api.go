// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api provides the JSON API handlers for pages and payments.
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/olegiv/tribute-go/internal/handler"
	"github.com/olegiv/tribute-go/internal/model"
	"github.com/olegiv/tribute-go/internal/payment"
	"github.com/olegiv/tribute-go/internal/store"
	"github.com/olegiv/tribute-go/internal/util"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// providerRetryAfter is the Retry-After hint, in seconds, sent when the
// provider is unavailable.
const providerRetryAfter = "5"

// Options holds optional handler settings.
type Options struct {
	// WebhookSecret enables x-signature verification on provider webhooks.
	WebhookSecret string
	Logger        *slog.Logger
}

// Handler holds shared dependencies for all API handlers.
type Handler struct {
	queries       *store.Queries
	creator       *payment.Creator
	reconciler    *payment.Reconciler
	webhookSecret string
	validate      *validator.Validate
	logger        *slog.Logger

	now     func() time.Time
	newSlug func(title string) (string, error)
}

// NewHandler creates a new API handler.
func NewHandler(db *sql.DB, creator *payment.Creator, reconciler *payment.Reconciler, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		queries:       store.New(db),
		creator:       creator,
		reconciler:    reconciler,
		webhookSecret: opts.WebhookSecret,
		validate:      payment.NewValidator(),
		logger:        logger.With("category", model.EventCategoryPayment),
		now:           time.Now,
		newSlug:       util.GeneratePageSlug,
	}
}

// Routes returns the API router. limit wraps the public endpoints that
// create records or hit the provider on the caller's behalf; the webhook is
// never limited because it must always be acknowledged.
func (h *Handler) Routes(limit func(http.Handler) http.Handler) chi.Router {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	r := chi.NewRouter()

	r.Get(handler.RoutePageSlug, h.GetPageBySlug)
	r.Get(handler.RoutePageIDSlug, h.GetPageSlug)
	r.Put(handler.RoutePageCustomer, h.UpdateCustomer)
	r.Get(handler.RouteInfluencerSales, h.InfluencerSales)
	r.Post(handler.RouteWebhookMercadoPago, h.MercadoPagoWebhook)

	r.Group(func(r chi.Router) {
		r.Use(limit)
		r.Post(handler.RoutePages, h.CreatePage)
		r.Post(handler.RoutePaymentsPix, h.CreatePixPayment)
		r.Post(handler.RoutePaymentsCheckout, h.CreateCheckout)
		r.Post(handler.RoutePaymentsStatus, h.PaymentStatus)
		r.Get(handler.RoutePaymentsStatus, h.PaymentStatus)
		r.Post(handler.RoutePaymentsConfirm, h.ConfirmPayment)
	})

	return r
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, code, message string, details map[string]string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message, nil)
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message, nil)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message, nil)
}

// WriteValidationError writes a 422 Unprocessable Entity response with field errors.
func WriteValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	WriteError(w, http.StatusUnprocessableEntity, "validation_error", "Validation failed", fieldErrors)
}

// writePaymentError maps a classified payment error to a response. Provider
// failures are 503 with Retry-After so clients can tell "try again" apart
// from "this page does not exist".
func (h *Handler) writePaymentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, payment.ErrValidation):
		WriteValidationError(w, payment.FieldErrors(err))
	case errors.Is(err, payment.ErrNotFound):
		WriteNotFound(w, "Page not found")
	case errors.Is(err, payment.ErrAlreadyPaid):
		WriteError(w, http.StatusConflict, "already_paid", "Page is already paid", nil)
	case errors.Is(err, payment.ErrProvider):
		retryable := payment.Retryable(err)
		h.logger.Warn("payment provider unavailable", "path", r.URL.Path, "retryable", retryable, "error", err)
		if !retryable {
			WriteError(w, http.StatusBadGateway, "provider_rejected", "Payment provider rejected the request", nil)
			return
		}
		w.Header().Set("Retry-After", providerRetryAfter)
		WriteJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: ErrorDetail{
			Code:      "provider_unavailable",
			Message:   "Payment provider is temporarily unavailable, try again shortly",
			Retryable: true,
		}})
	case errors.Is(err, payment.ErrPersistence):
		h.logger.Error("payment persistence failed", "path", r.URL.Path, "error", err)
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: ErrorDetail{
			Code:      "persistence_error",
			Message:   "Could not save payment state, try again shortly",
			Retryable: true,
		}})
	default:
		h.logger.Error("unexpected payment error", "path", r.URL.Path, "error", err)
		WriteInternalError(w, "Internal error")
	}
}

// decodeJSON reads a JSON body into dst. It writes a 400 and returns false on
// malformed input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "Request body too large", nil)
		case errors.Is(err, io.EOF):
			WriteBadRequest(w, "Request body is required")
		default:
			WriteBadRequest(w, "Invalid JSON body")
		}
		return false
	}
	return true
}
