// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/olegiv/tribute-go/internal/payment"
	"github.com/olegiv/tribute-go/internal/provider"
	"github.com/olegiv/tribute-go/internal/webhook"
)

// maxWebhookBody caps provider notification bodies.
const maxWebhookBody = 64 << 10

// Provider webhook headers.
const (
	HeaderSignature = "X-Signature"
	HeaderRequestID = "X-Request-Id"
)

// notification is a provider push. Only the event kind and payment id are
// read; everything else in the body is untrusted and ignored.
type notification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Topic  string `json:"topic"`
	Data   struct {
		ID provider.ID `json:"id"`
	} `json:"data"`
}

// kind returns the first non-empty event category.
func (n notification) kind() string {
	for _, k := range []string{n.Type, n.Action, n.Topic} {
		if k = strings.TrimSpace(k); k != "" {
			return strings.ToLower(k)
		}
	}
	return ""
}

func isPaymentEvent(kind string) bool {
	return kind == "payment" || strings.HasPrefix(kind, "payment.")
}

// parseNotification reads the kind and payment id from the body, falling
// back to the query string for either value.
func parseNotification(r *http.Request, body []byte) (kind, id string) {
	var n notification
	if len(body) > 0 {
		// A malformed body still leaves the query string to try.
		_ = json.Unmarshal(body, &n)
	}

	q := r.URL.Query()
	kind = n.kind()
	if kind == "" {
		kind = notification{Type: q.Get("type"), Topic: q.Get("topic")}.kind()
	}

	id = strings.TrimSpace(string(n.Data.ID))
	if id == "" {
		id = strings.TrimSpace(q.Get("data.id"))
	}
	if id == "" {
		id = strings.TrimSpace(q.Get("id"))
	}
	return kind, id
}

// MercadoPagoWebhook handles POST /api/webhooks/mercadopago. It always
// answers 200: the provider retries anything else indefinitely, and the
// poll path or a later delivery heals whatever failed here.
func (h *Handler) MercadoPagoWebhook(w http.ResponseWriter, r *http.Request) {
	defer WriteJSON(w, http.StatusOK, map[string]bool{"received": true})

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("failed to read webhook body", "error", err)
	}

	kind, id := parseNotification(r, body)
	log := h.logger.With("trigger", string(payment.TriggerWebhook), "event", kind, "payment_id", id)

	if !isPaymentEvent(kind) {
		log.Debug("ignoring non-payment webhook")
		return
	}
	if id == "" {
		log.Warn("payment webhook without payment id")
		return
	}

	if h.webhookSecret != "" {
		err := webhook.VerifyProviderSignature(h.webhookSecret,
			r.Header.Get(HeaderSignature), r.Header.Get(HeaderRequestID), id)
		if err != nil {
			log.Warn("rejected webhook signature", "error", err)
			return
		}
	}

	res, err := h.reconciler.ReconcilePayment(r.Context(), id, payment.TriggerWebhook)
	if err != nil {
		log.Error("webhook reconciliation failed", "retryable", payment.Retryable(err), "error", err)
		return
	}

	log.Info("webhook reconciled",
		"page_id", res.PageID,
		"paid", res.Paid,
		"status", res.Status,
		"already_paid", res.AlreadyPaid)
}
