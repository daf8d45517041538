// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/olegiv/tribute-go/internal/model"
	"github.com/olegiv/tribute-go/internal/provider"
	"github.com/olegiv/tribute-go/internal/store"
)

// PaymentMethodPix is the QR-style provider payment method.
const PaymentMethodPix = "pix"

// CreatorConfig holds the server-side pricing and callback URLs.
type CreatorConfig struct {
	Price           decimal.Decimal
	Currency        string
	ItemTitle       string
	NotificationURL string
	BackURLs        provider.BackURLs
}

// CreateRequest starts a payment attempt for a page.
type CreateRequest struct {
	PageID     string `json:"pageId" validate:"required,max=64"`
	PayerEmail string `json:"payerEmail" validate:"required,email,max=254"`
	PayerName  string `json:"payerName" validate:"max=200"`
	PayerPhone string `json:"payerPhone" validate:"max=32"`

	// Amount is whatever the client sent. It is only compared against the
	// canonical price for logging and never reaches the provider.
	Amount *decimal.Decimal `json:"-"`

	// IdempotencyKey is reused when it is a valid UUID, so a client retrying
	// the same submission cannot create a second charge.
	IdempotencyKey string `json:"-"`
}

// PixPayment is the client-facing artifact of a QR-style payment.
type PixPayment struct {
	ProviderID   string
	Status       string
	QRCode       string
	QRCodeBase64 string
	Amount       decimal.Decimal
}

// Checkout is the client-facing artifact of a redirect-style payment.
type Checkout struct {
	PreferenceID string
	RedirectURL  string
	Amount       decimal.Decimal
}

// Creator builds provider payment requests for pages.
type Creator struct {
	provider Provider
	store    Store
	cfg      CreatorConfig
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewCreator returns ErrConfiguration when the price is not positive.
func NewCreator(p Provider, s Store, cfg CreatorConfig, logger *slog.Logger) (*Creator, error) {
	if !cfg.Price.IsPositive() {
		return nil, newError(ErrConfiguration, "new creator", "price must be positive", nil)
	}
	if cfg.Currency == "" {
		cfg.Currency = "BRL"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Creator{
		provider: p,
		store:    s,
		cfg:      cfg,
		validate: NewValidator(),
		logger:   logger.With("category", model.EventCategoryPayment),
		now:      time.Now,
	}, nil
}

// Price returns the canonical price.
func (c *Creator) Price() decimal.Decimal {
	return c.cfg.Price
}

// CreatePix creates a QR-style payment. On provider failure the page is left
// untouched. On success the new payment id is recorded as pending.
func (c *Creator) CreatePix(ctx context.Context, req CreateRequest) (*PixPayment, error) {
	const op = "create pix payment"

	page, err := c.preparePage(ctx, op, &req)
	if err != nil {
		return nil, err
	}

	firstName, lastName := payerNames(req.PayerName, req.PayerEmail)
	payer := provider.Payer{
		Email:     req.PayerEmail,
		FirstName: firstName,
		LastName:  lastName,
	}
	if req.PayerPhone != "" {
		if phone, ok := ParsePhone(req.PayerPhone); ok {
			payer.Phone = phone
		} else {
			c.logger.Info("dropping unparseable payer phone", "page_id", page.ID)
		}
	}

	p, err := c.provider.CreatePayment(ctx, provider.CreatePaymentRequest{
		Amount:            c.cfg.Price,
		Description:       c.description(page),
		PaymentMethodID:   PaymentMethodPix,
		Payer:             payer,
		ExternalReference: page.ExternalReference(),
		NotificationURL:   c.cfg.NotificationURL,
		IdempotencyKey:    idempotencyKey(req.IdempotencyKey),
	})
	if err != nil {
		c.logger.Warn("provider payment creation failed", "page_id", page.ID, "error", err)
		return nil, fromProvider(op, err)
	}

	c.recordPending(ctx, page.ID, sql.NullString{String: string(p.ID), Valid: true})

	status := p.Status
	if status == "" {
		status = model.PaymentStatusPending
	}
	return &PixPayment{
		ProviderID:   string(p.ID),
		Status:       status,
		QRCode:       p.QRCode(),
		QRCodeBase64: p.QRCodeBase64(),
		Amount:       c.cfg.Price,
	}, nil
}

// CreateCheckout creates a hosted checkout. No provider payment exists yet,
// so only the pending status is recorded; reconciliation later finds the
// payment by external reference.
func (c *Creator) CreateCheckout(ctx context.Context, req CreateRequest) (*Checkout, error) {
	const op = "create checkout"

	page, err := c.preparePage(ctx, op, &req)
	if err != nil {
		return nil, err
	}

	firstName, _ := payerNames(req.PayerName, req.PayerEmail)
	pref, err := c.provider.CreatePreference(ctx, provider.CreatePreferenceRequest{
		Title:             c.description(page),
		Amount:            c.cfg.Price,
		CurrencyID:        c.cfg.Currency,
		Payer:             provider.Payer{Email: req.PayerEmail, FirstName: firstName},
		ExternalReference: page.ExternalReference(),
		NotificationURL:   c.cfg.NotificationURL,
		BackURLs:          c.cfg.BackURLs,
		IdempotencyKey:    idempotencyKey(req.IdempotencyKey),
	})
	if err != nil {
		c.logger.Warn("provider preference creation failed", "page_id", page.ID, "error", err)
		return nil, fromProvider(op, err)
	}

	c.recordPending(ctx, page.ID, sql.NullString{})

	return &Checkout{
		PreferenceID: string(pref.ID),
		RedirectURL:  pref.InitPoint,
		Amount:       c.cfg.Price,
	}, nil
}

// preparePage validates the request and loads the unpaid page it targets.
func (c *Creator) preparePage(ctx context.Context, op string, req *CreateRequest) (model.Page, error) {
	req.PageID = strings.TrimSpace(req.PageID)
	req.PayerEmail = strings.TrimSpace(req.PayerEmail)
	req.PayerName = strings.TrimSpace(req.PayerName)
	req.PayerPhone = strings.TrimSpace(req.PayerPhone)

	if err := ValidateStruct(c.validate, op, req); err != nil {
		return model.Page{}, err
	}

	if req.Amount != nil && !req.Amount.Equal(c.cfg.Price) {
		c.logger.Warn("ignoring client-supplied payment amount",
			"page_id", req.PageID,
			"client_amount", req.Amount.String(),
			"price", c.cfg.Price.String())
	}

	page, err := c.store.GetPageByID(ctx, req.PageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Page{}, notFound(op, "page")
		}
		return model.Page{}, newError(ErrPersistence, op, "loading page", err)
	}
	if page.IsPaid {
		return model.Page{}, newError(ErrAlreadyPaid, op, "", nil)
	}
	return page, nil
}

// recordPending stores the new attempt. A failed write is logged and not
// returned: the provider payment exists and the client still needs its
// artifacts. Reconciliation finds the payment by external reference.
func (c *Creator) recordPending(ctx context.Context, pageID string, paymentID sql.NullString) {
	n, err := c.store.SetPendingPayment(ctx, store.SetPendingPaymentParams{
		ID:        pageID,
		PaymentID: paymentID,
		UpdatedAt: c.now().UTC(),
	})
	if err != nil {
		c.logger.Error("recording pending payment failed",
			"page_id", pageID, "payment_id", paymentID.String, "error", err)
		return
	}
	if n == 0 {
		c.logger.Info("page was paid while creating a new attempt", "page_id", pageID)
	}
}

func (c *Creator) description(page model.Page) string {
	title := c.cfg.ItemTitle
	if title == "" {
		title = "Tribute page"
	}
	if page.Title == "" {
		return title
	}
	return fmt.Sprintf("%s - %s", title, page.Title)
}

func idempotencyKey(clientKey string) string {
	if id, err := uuid.Parse(strings.TrimSpace(clientKey)); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// payerNames splits a full name. Without a name the email's local part is
// used as first name.
func payerNames(name, email string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		local, _, _ := strings.Cut(email, "@")
		return local, ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
