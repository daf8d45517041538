// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package webhook verifies inbound payment provider notifications and
// delivers outbound page events to a configured endpoint.
package webhook

import (
	"time"

	"github.com/olegiv/tribute-go/internal/model"
)

// Event types.
const (
	EventPagePaid = "page.paid"
)

// Event represents a webhook event to be dispatched.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// NewEvent creates a new webhook event.
func NewEvent(eventType string, data any) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// PagePaidData contains data for the page.paid event.
type PagePaidData struct {
	PageID        string     `json:"page_id"`
	Slug          string     `json:"slug"`
	Title         string     `json:"title"`
	PaymentID     string     `json:"payment_id"`
	PaymentStatus string     `json:"payment_status"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	InfluencerRef string     `json:"influencer_ref,omitempty"`
}

// NewPagePaidData builds the event payload for a page that just became paid.
func NewPagePaidData(page model.Page) PagePaidData {
	data := PagePaidData{
		PageID:        page.ID,
		Slug:          page.Slug,
		Title:         page.Title,
		PaymentID:     page.PaymentID.String,
		PaymentStatus: page.PaymentStatus.String,
		InfluencerRef: page.InfluencerRef.String,
	}
	if page.PaidAt.Valid {
		paidAt := page.PaidAt.Time.UTC()
		data.PaidAt = &paidAt
	}
	return data
}
