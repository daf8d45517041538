// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package provider

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the provider has no object with the given id.
var ErrNotFound = errors.New("provider: not found")

// Error is a failed provider call: a transport failure, a non-2xx response or
// an unreadable body. It never carries credentials.
type Error struct {
	Op         string
	StatusCode int // 0 for transport failures
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Detail != "":
		return fmt.Sprintf("provider %s: status %d: %s", e.Op, e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("provider %s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("provider %s: %s", e.Op, e.Detail)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same call may succeed. A 2xx
// answer with an unusable body counts as temporary.
func (e *Error) Temporary() bool {
	switch {
	case e.StatusCode == 0, e.StatusCode >= 500:
		return true
	case e.StatusCode >= 200 && e.StatusCode < 300:
		return true
	case e.StatusCode == 408, e.StatusCode == 429:
		return true
	default:
		return false
	}
}
