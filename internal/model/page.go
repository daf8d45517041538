// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"database/sql"
	"strings"
	"time"
)

// Provider-reported payment statuses. Only the ones this service reacts to are
// listed; any other value is kept as an advisory string.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusInProcess  = "in_process"
	PaymentStatusApproved   = "approved"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusRejected   = "rejected"
	PaymentStatusCancelled  = "cancelled"
	PaymentStatusRefunded   = "refunded"
)

// IsPaidStatus reports whether a provider status unlocks a page.
// Unknown or future statuses are treated as not paid.
func IsPaidStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case PaymentStatusApproved, PaymentStatusAuthorized:
		return true
	default:
		return false
	}
}

// Page is a commemorative page together with its payment state.
// The page id doubles as the provider external reference.
type Page struct {
	ID            string         `json:"id"`
	Slug          string         `json:"slug"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	SelectedFont  sql.NullString `json:"-"`
	SelectedTheme sql.NullString `json:"-"`
	GalleryLayout string         `json:"gallery_layout"`
	SelectedFrame string         `json:"selected_frame"`
	PhotoURLs     []string       `json:"photo_urls"`
	AudioURL      sql.NullString `json:"-"`
	HasAudio      bool           `json:"has_audio"`
	AudioSkipped  bool           `json:"audio_skipped"`
	InfluencerRef sql.NullString `json:"-"`

	CustomerName  sql.NullString `json:"-"`
	CustomerEmail sql.NullString `json:"-"`
	CustomerPhone sql.NullString `json:"-"`

	IsPaid        bool           `json:"is_paid"`
	PaymentID     sql.NullString `json:"-"`
	PaymentStatus sql.NullString `json:"-"`
	PaidAt        sql.NullTime   `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExternalReference returns the value the provider stores to correlate
// payments back to this page.
func (p *Page) ExternalReference() string {
	return p.ID
}

// HasPayment returns true if a provider payment id is known for the page.
func (p *Page) HasPayment() bool {
	return p.PaymentID.Valid && p.PaymentID.String != ""
}
