// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"encoding/json"
	"time"
)

// Event levels
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// Event categories
const (
	EventCategoryPayment = "payment"
	EventCategoryWebhook = "webhook"
	EventCategoryPage    = "page"
	EventCategoryCache   = "cache"
	EventCategorySystem  = "system"
)

// Event is an audit log entry. WARN and ERROR log records end up here so that
// payment anomalies can be reconciled by hand.
type Event struct {
	ID        int64
	Level     string
	Category  string
	Message   string
	Metadata  string // JSON string
	CreatedAt time.Time
}

// Fields decodes Metadata. Empty or malformed metadata yields an empty map.
func (e Event) Fields() map[string]string {
	fields := map[string]string{}
	if e.Metadata == "" {
		return fields
	}
	if err := json.Unmarshal([]byte(e.Metadata), &fields); err != nil {
		return map[string]string{}
	}
	return fields
}

// IsProblem reports whether the event was recorded at warning level or above.
func (e Event) IsProblem() bool {
	return e.Level == EventLevelWarning || e.Level == EventLevelError
}
