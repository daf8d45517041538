// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package payment turns provider state into page state. The Creator starts
// payment attempts; the Reconciler is the only code path that marks a page
// paid, whatever triggered it.
package payment

import (
	"context"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/olegiv/tribute-go/internal/model"
	"github.com/olegiv/tribute-go/internal/provider"
	"github.com/olegiv/tribute-go/internal/store"
)

// Provider is the subset of the provider client used here.
type Provider interface {
	CreatePayment(ctx context.Context, req provider.CreatePaymentRequest) (*provider.Payment, error)
	GetPayment(ctx context.Context, id string) (*provider.Payment, error)
	SearchPayments(ctx context.Context, externalReference string) ([]provider.Payment, error)
	CreatePreference(ctx context.Context, req provider.CreatePreferenceRequest) (*provider.Preference, error)
}

// Store is the page record store as seen by payment code. *store.Queries
// satisfies it.
type Store interface {
	GetPageByID(ctx context.Context, id string) (model.Page, error)
	GetPageBySlug(ctx context.Context, slug string) (model.Page, error)
	MarkPagePaid(ctx context.Context, arg store.MarkPagePaidParams) (int64, error)
	UpdatePaymentStatus(ctx context.Context, arg store.UpdatePaymentStatusParams) (int64, error)
	SetPendingPayment(ctx context.Context, arg store.SetPendingPaymentParams) (int64, error)
}

// Notifier is told about a page's first transition to paid, exactly once
// per page across all reconciliations that observe the payment.
type Notifier interface {
	PagePaid(ctx context.Context, page model.Page)
}

// NewValidator returns a validator that reports fields by their json name.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateStruct runs v over s and returns an ErrValidation *Error with
// per-field messages keyed by json name.
func ValidateStruct(v *validator.Validate, op string, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return newError(ErrValidation, op, "invalid input", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describeTag(fe)
	}
	return validationError(op, fields)
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "uuid4":
		return "must be a UUID"
	default:
		return "is invalid"
	}
}
