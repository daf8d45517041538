// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package payment

import (
	"errors"
	"strings"

	"github.com/olegiv/tribute-go/internal/provider"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrProvider      = errors.New("payment provider unavailable")
	ErrPersistence   = errors.New("persistence failed")
	ErrConfiguration = errors.New("configuration error")
	ErrAlreadyPaid   = errors.New("page already paid")
)

// Error is a classified failure of a payment operation.
type Error struct {
	Kind    error
	Op      string
	Message string
	// Fields holds per-field validation messages.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Kind != nil:
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind error, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: cause}
}

func validationError(op string, fields map[string]string) *Error {
	return &Error{Kind: ErrValidation, Op: op, Message: "invalid input", Fields: fields}
}

func notFound(op, what string) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Message: what + " not found"}
}

// fromProvider classifies a provider client error. Provider not-found maps to
// ErrNotFound; everything else is an ErrProvider. The provider's diagnostic
// detail stays in the wrapped error.
func fromProvider(op string, err error) *Error {
	if provider.IsNotFound(err) {
		return &Error{Kind: ErrNotFound, Op: op, Message: "provider payment not found", Err: err}
	}
	return &Error{Kind: ErrProvider, Op: op, Message: "payment provider request failed", Err: err}
}

// Retryable reports whether the caller may retry the same request later. A
// provider rejection such as a 400 is not retryable.
func Retryable(err error) bool {
	if errors.Is(err, ErrPersistence) {
		return true
	}
	if !errors.Is(err, ErrProvider) {
		return false
	}
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr.Temporary()
	}
	return true
}

// FieldErrors returns per-field validation messages, if any.
func FieldErrors(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
