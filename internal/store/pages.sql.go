// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/olegiv/tribute-go/internal/model"
)

const pageColumns = `id, slug, title, message, selected_font, selected_theme, gallery_layout,
selected_frame, photo_urls, audio_url, has_audio, audio_skipped, influencer_ref,
customer_name, customer_email, customer_phone, is_paid, payment_id, payment_status,
paid_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPage(row rowScanner) (model.Page, error) {
	var (
		p      model.Page
		photos string
	)
	err := row.Scan(
		&p.ID,
		&p.Slug,
		&p.Title,
		&p.Message,
		&p.SelectedFont,
		&p.SelectedTheme,
		&p.GalleryLayout,
		&p.SelectedFrame,
		&photos,
		&p.AudioURL,
		&p.HasAudio,
		&p.AudioSkipped,
		&p.InfluencerRef,
		&p.CustomerName,
		&p.CustomerEmail,
		&p.CustomerPhone,
		&p.IsPaid,
		&p.PaymentID,
		&p.PaymentStatus,
		&p.PaidAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	if photos != "" {
		if err := json.Unmarshal([]byte(photos), &p.PhotoURLs); err != nil {
			return p, fmt.Errorf("decoding photo_urls for page %s: %w", p.ID, err)
		}
	}
	if p.PhotoURLs == nil {
		p.PhotoURLs = []string{}
	}
	return p, nil
}

const createPage = `INSERT INTO pages (
    id, slug, title, message, selected_font, selected_theme, gallery_layout,
    selected_frame, photo_urls, audio_url, has_audio, audio_skipped, influencer_ref,
    is_paid, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`

// CreatePageParams holds the fields set when a page is first saved.
type CreatePageParams struct {
	ID            string
	Slug          string
	Title         string
	Message       string
	SelectedFont  sql.NullString
	SelectedTheme sql.NullString
	GalleryLayout string
	SelectedFrame string
	PhotoURLs     []string
	AudioURL      sql.NullString
	HasAudio      bool
	AudioSkipped  bool
	InfluencerRef sql.NullString
	CreatedAt     time.Time
}

// CreatePage inserts a new unpaid page. A duplicate slug surfaces as an error
// for which IsUniqueViolation returns true.
func (q *Queries) CreatePage(ctx context.Context, arg CreatePageParams) (model.Page, error) {
	photos := arg.PhotoURLs
	if photos == nil {
		photos = []string{}
	}
	encoded, err := json.Marshal(photos)
	if err != nil {
		return model.Page{}, fmt.Errorf("encoding photo_urls: %w", err)
	}

	_, err = q.db.ExecContext(ctx, createPage,
		arg.ID,
		arg.Slug,
		arg.Title,
		arg.Message,
		arg.SelectedFont,
		arg.SelectedTheme,
		arg.GalleryLayout,
		arg.SelectedFrame,
		string(encoded),
		arg.AudioURL,
		arg.HasAudio,
		arg.AudioSkipped,
		arg.InfluencerRef,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	if err != nil {
		return model.Page{}, err
	}
	return q.GetPageByID(ctx, arg.ID)
}

const getPageByID = `SELECT ` + pageColumns + ` FROM pages WHERE id = ?`

// GetPageByID returns sql.ErrNoRows when the page does not exist.
func (q *Queries) GetPageByID(ctx context.Context, id string) (model.Page, error) {
	return scanPage(q.db.QueryRowContext(ctx, getPageByID, id))
}

const getPageBySlug = `SELECT ` + pageColumns + ` FROM pages WHERE slug = ?`

// GetPageBySlug returns sql.ErrNoRows when the page does not exist.
func (q *Queries) GetPageBySlug(ctx context.Context, slug string) (model.Page, error) {
	return scanPage(q.db.QueryRowContext(ctx, getPageBySlug, slug))
}

const slugExists = `SELECT COUNT(*) FROM pages WHERE slug = ?`

func (q *Queries) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, slugExists, slug).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

const markPagePaid = `UPDATE pages
SET is_paid = 1, payment_id = ?, payment_status = ?, paid_at = ?, updated_at = ?
WHERE id = ? AND is_paid = 0`

// MarkPagePaidParams holds the values written on the first paid transition.
type MarkPagePaidParams struct {
	ID            string
	PaymentID     string
	PaymentStatus string
	PaidAt        time.Time
}

// MarkPagePaid flips is_paid in a single conditional statement. It returns the
// number of rows changed: 1 for the caller that won the transition, 0 when the
// page was already paid (or does not exist).
func (q *Queries) MarkPagePaid(ctx context.Context, arg MarkPagePaidParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, markPagePaid,
		arg.PaymentID,
		arg.PaymentStatus,
		arg.PaidAt,
		arg.PaidAt,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updatePaymentStatus = `UPDATE pages
SET payment_status = ?, payment_id = COALESCE(payment_id, ?), updated_at = ?
WHERE id = ? AND is_paid = 0`

// UpdatePaymentStatusParams records an advisory status for an unpaid page.
type UpdatePaymentStatusParams struct {
	ID            string
	PaymentStatus string
	// PaymentID fills payment_id only when none is stored yet.
	PaymentID sql.NullString
	UpdatedAt time.Time
}

// UpdatePaymentStatus never touches is_paid or paid_at and is a no-op on paid
// pages.
func (q *Queries) UpdatePaymentStatus(ctx context.Context, arg UpdatePaymentStatusParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updatePaymentStatus,
		arg.PaymentStatus,
		arg.PaymentID,
		arg.UpdatedAt,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const setPendingPayment = `UPDATE pages
SET payment_id = ?, payment_status = ?, updated_at = ?
WHERE id = ? AND is_paid = 0`

// SetPendingPaymentParams records a freshly created provider payment.
type SetPendingPaymentParams struct {
	ID        string
	PaymentID sql.NullString
	UpdatedAt time.Time
}

// SetPendingPayment stores a new attempt with status pending. A null
// PaymentID keeps the stored one (checkout preferences have no payment yet).
func (q *Queries) SetPendingPayment(ctx context.Context, arg SetPendingPaymentParams) (int64, error) {
	query := setPendingPayment
	args := []interface{}{arg.PaymentID, model.PaymentStatusPending, arg.UpdatedAt, arg.ID}
	if !arg.PaymentID.Valid {
		query = `UPDATE pages SET payment_status = ?, updated_at = ? WHERE id = ? AND is_paid = 0`
		args = []interface{}{model.PaymentStatusPending, arg.UpdatedAt, arg.ID}
	}
	result, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updateCustomer = `UPDATE pages
SET customer_name = ?, customer_email = ?, customer_phone = ?, updated_at = ?
WHERE id = ?`

// UpdateCustomerParams holds the buyer contact details.
type UpdateCustomerParams struct {
	ID            string
	CustomerName  string
	CustomerEmail string
	CustomerPhone sql.NullString
	UpdatedAt     time.Time
}

func (q *Queries) UpdateCustomer(ctx context.Context, arg UpdateCustomerParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateCustomer,
		arg.CustomerName,
		arg.CustomerEmail,
		arg.CustomerPhone,
		arg.UpdatedAt,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listPaidPagesByInfluencer = `SELECT ` + pageColumns + ` FROM pages
WHERE influencer_ref = ? AND is_paid = 1
ORDER BY paid_at DESC`

func (q *Queries) ListPaidPagesByInfluencer(ctx context.Context, ref string) ([]model.Page, error) {
	rows, err := q.db.QueryContext(ctx, listPaidPagesByInfluencer, ref)
	if err != nil {
		return nil, err
	}
	return collectPages(rows)
}

const listStalePendingPages = `SELECT ` + pageColumns + ` FROM pages
WHERE is_paid = 0 AND payment_status = ? AND updated_at >= ?
ORDER BY updated_at ASC
LIMIT ?`

// ListStalePendingPagesParams selects unpaid pages awaiting confirmation.
type ListStalePendingPagesParams struct {
	Since time.Time
	Limit int64
}

// ListStalePendingPages returns unpaid pending pages touched after Since,
// oldest first.
func (q *Queries) ListStalePendingPages(ctx context.Context, arg ListStalePendingPagesParams) ([]model.Page, error) {
	rows, err := q.db.QueryContext(ctx, listStalePendingPages, model.PaymentStatusPending, arg.Since, arg.Limit)
	if err != nil {
		return nil, err
	}
	return collectPages(rows)
}

func collectPages(rows *sql.Rows) ([]model.Page, error) {
	defer func() { _ = rows.Close() }()
	items := []model.Page{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
