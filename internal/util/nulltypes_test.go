// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"database/sql"
	"testing"
	"time"
)

func ptr[T any](v T) *T {
	return &v
}

func TestNullStringFromValue(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected sql.NullString
	}{
		{"non-empty", "hello", sql.NullString{String: "hello", Valid: true}},
		{"empty", "", sql.NullString{}},
		{"whitespace only", "   ", sql.NullString{}},
		{"trimmed", "  pix  ", sql.NullString{String: "pix", Valid: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NullStringFromValue(tt.input); got != tt.expected {
				t.Errorf("NullStringFromValue(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNullStringFromPtr(t *testing.T) {
	tests := []struct {
		name     string
		input    *string
		expected sql.NullString
	}{
		{"nil pointer", nil, sql.NullString{}},
		{"value", ptr("theme-1"), sql.NullString{String: "theme-1", Valid: true}},
		{"blank value", ptr(""), sql.NullString{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NullStringFromPtr(tt.input); got != tt.expected {
				t.Errorf("NullStringFromPtr() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestStringPtrFromNull(t *testing.T) {
	if got := StringPtrFromNull(sql.NullString{}); got != nil {
		t.Errorf("StringPtrFromNull(invalid) = %v, want nil", *got)
	}
	got := StringPtrFromNull(sql.NullString{String: "x", Valid: true})
	if got == nil || *got != "x" {
		t.Errorf("StringPtrFromNull(valid) = %v, want x", got)
	}
}

func TestTimePtrFromNull(t *testing.T) {
	if got := TimePtrFromNull(sql.NullTime{}); got != nil {
		t.Errorf("TimePtrFromNull(invalid) = %v, want nil", *got)
	}
	now := time.Now()
	got := TimePtrFromNull(sql.NullTime{Time: now, Valid: true})
	if got == nil || !got.Equal(now) {
		t.Errorf("TimePtrFromNull(valid) = %v, want %v", got, now)
	}
}
