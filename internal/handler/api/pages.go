// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"database/sql"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/olegiv/tribute-go/internal/model"
	"github.com/olegiv/tribute-go/internal/payment"
	"github.com/olegiv/tribute-go/internal/store"
	"github.com/olegiv/tribute-go/internal/util"
)

// maxSlugAttempts bounds insert retries on slug collisions.
const maxSlugAttempts = 3

// Page defaults applied when the client leaves them empty.
const (
	defaultGalleryLayout = "grid"
	defaultFrame         = "none"
)

// textPolicy strips all markup from page text. Pages are rendered by the
// client, never as HTML.
var textPolicy = bluemonday.StrictPolicy()

// plainText removes tags and decodes the entities the policy escapes.
func plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// CreatePageRequest represents the request body for creating a page.
type CreatePageRequest struct {
	Title         string   `json:"title" validate:"required,max=200"`
	Message       string   `json:"message" validate:"max=5000"`
	SelectedFont  string   `json:"selectedFont" validate:"max=64"`
	SelectedTheme string   `json:"selectedTheme" validate:"max=64"`
	GalleryLayout string   `json:"galleryLayout" validate:"max=32"`
	SelectedFrame string   `json:"selectedFrame" validate:"max=32"`
	PhotoURLs     []string `json:"photoUrls" validate:"max=20,dive,url,max=2048"`
	AudioURL      string   `json:"audioUrl" validate:"omitempty,url,max=2048"`
	HasAudio      bool     `json:"hasAudio"`
	AudioSkipped  bool     `json:"audioSkipped"`
	InfluencerRef string   `json:"influencerRef" validate:"max=64"`
}

// CreatePageResponse is returned after a page is saved.
type CreatePageResponse struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
}

// PageResponse is the public view of a page.
type PageResponse struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	SelectedFont  string    `json:"selectedFont,omitempty"`
	SelectedTheme string    `json:"selectedTheme,omitempty"`
	GalleryLayout string    `json:"galleryLayout"`
	SelectedFrame string    `json:"selectedFrame"`
	PhotoURLs     []string  `json:"photoUrls"`
	AudioURL      *string   `json:"audioUrl,omitempty"`
	HasAudio      bool      `json:"hasAudio"`
	AudioSkipped  bool      `json:"audioSkipped"`
	IsPaid        bool      `json:"isPaid"`
	CreatedAt     time.Time `json:"createdAt"`
}

func pageToResponse(p model.Page) PageResponse {
	photos := p.PhotoURLs
	if photos == nil {
		photos = []string{}
	}
	return PageResponse{
		ID:            p.ID,
		Slug:          p.Slug,
		Title:         p.Title,
		Message:       p.Message,
		SelectedFont:  p.SelectedFont.String,
		SelectedTheme: p.SelectedTheme.String,
		GalleryLayout: p.GalleryLayout,
		SelectedFrame: p.SelectedFrame,
		PhotoURLs:     photos,
		AudioURL:      util.StringPtrFromNull(p.AudioURL),
		HasAudio:      p.HasAudio,
		AudioSkipped:  p.AudioSkipped,
		IsPaid:        p.IsPaid,
		CreatedAt:     p.CreatedAt,
	}
}

// CreatePage handles POST /api/pages.
func (h *Handler) CreatePage(w http.ResponseWriter, r *http.Request) {
	var req CreatePageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Title = plainText(req.Title)
	req.Message = plainText(req.Message)
	req.InfluencerRef = strings.TrimSpace(req.InfluencerRef)
	if err := payment.ValidateStruct(h.validate, "create page", req); err != nil {
		WriteValidationError(w, payment.FieldErrors(err))
		return
	}

	if req.GalleryLayout == "" {
		req.GalleryLayout = defaultGalleryLayout
	}
	if req.SelectedFrame == "" {
		req.SelectedFrame = defaultFrame
	}

	slug, err := h.newSlug(req.Title)
	if err != nil {
		h.logger.Error("failed to generate slug", "error", err)
		WriteInternalError(w, "Failed to create page")
		return
	}

	now := h.now().UTC()
	params := store.CreatePageParams{
		ID:            uuid.NewString(),
		Slug:          slug,
		Title:         req.Title,
		Message:       req.Message,
		SelectedFont:  util.NullStringFromValue(req.SelectedFont),
		SelectedTheme: util.NullStringFromValue(req.SelectedTheme),
		GalleryLayout: req.GalleryLayout,
		SelectedFrame: req.SelectedFrame,
		PhotoURLs:     req.PhotoURLs,
		AudioURL:      util.NullStringFromValue(req.AudioURL),
		HasAudio:      req.HasAudio,
		AudioSkipped:  req.AudioSkipped,
		InfluencerRef: util.NullStringFromValue(req.InfluencerRef),
		CreatedAt:     now,
	}

	if taken, err := h.queries.SlugExists(r.Context(), slug); err == nil && taken {
		params.Slug = h.fallbackSlug(slug, 0)
	}

	var page model.Page
	for attempt := 1; ; attempt++ {
		page, err = h.queries.CreatePage(r.Context(), params)
		if err == nil {
			break
		}
		if !store.IsUniqueViolation(err) || attempt == maxSlugAttempts {
			h.logger.Error("failed to create page", "slug", params.Slug, "attempt", attempt, "error", err)
			WriteInternalError(w, "Failed to create page")
			return
		}
		params.Slug = h.fallbackSlug(slug, attempt)
	}

	h.logger.Info("page created", "page_id", page.ID, "slug", page.Slug)

	WriteJSON(w, http.StatusCreated, CreatePageResponse{
		ID:        page.ID,
		Slug:      page.Slug,
		CreatedAt: page.CreatedAt,
	})
}

// fallbackSlug suffixes a taken slug with a millisecond timestamp.
func (h *Handler) fallbackSlug(slug string, attempt int) string {
	return fmt.Sprintf("%s-%d", slug, h.now().UnixMilli()+int64(attempt))
}

// GetPageBySlug handles GET /api/pages/{slug}. Lookup is by slug only.
func (h *Handler) GetPageBySlug(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if !util.IsValidSlug(slug) {
		WriteNotFound(w, "Page not found")
		return
	}

	page, err := h.queries.GetPageBySlug(r.Context(), slug)
	if err != nil {
		h.writeLookupError(w, err, "slug", slug)
		return
	}

	WriteJSON(w, http.StatusOK, pageToResponse(page))
}

// GetPageSlug handles GET /api/pages/{id}/slug.
func (h *Handler) GetPageSlug(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	page, err := h.queries.GetPageByID(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err, "page_id", id)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"slug": page.Slug})
}

// UpdateCustomerRequest holds buyer contact details.
type UpdateCustomerRequest struct {
	Name  string  `json:"name" validate:"required,max=200"`
	Email string  `json:"email" validate:"required,email,max=254"`
	Phone *string `json:"phone" validate:"omitempty,max=32"`
}

// UpdateCustomer handles PUT /api/pages/{id}/customer. Payment fields are
// never touched.
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)

	if err := payment.ValidateStruct(h.validate, "update customer", req); err != nil {
		WriteValidationError(w, payment.FieldErrors(err))
		return
	}

	n, err := h.queries.UpdateCustomer(r.Context(), store.UpdateCustomerParams{
		ID:            id,
		CustomerName:  req.Name,
		CustomerEmail: req.Email,
		CustomerPhone: util.NullStringFromPtr(req.Phone),
		UpdatedAt:     h.now().UTC(),
	})
	if err != nil {
		h.logger.Error("failed to update customer", "page_id", id, "error", err)
		WriteInternalError(w, "Failed to update customer")
		return
	}
	if n == 0 {
		WriteNotFound(w, "Page not found")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"id": id})
}

// SaleResponse is one paid page attributed to an influencer.
type SaleResponse struct {
	ID     string     `json:"id"`
	Slug   string     `json:"slug"`
	Title  string     `json:"title"`
	PaidAt *time.Time `json:"paidAt,omitempty"`
}

// InfluencerSalesResponse lists paid pages for one influencer reference.
type InfluencerSalesResponse struct {
	Ref   string         `json:"ref"`
	Count int            `json:"count"`
	Sales []SaleResponse `json:"sales"`
}

// InfluencerSales handles GET /api/influencer-sales?ref=.
func (h *Handler) InfluencerSales(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(r.URL.Query().Get("ref"))
	if ref == "" {
		WriteValidationError(w, map[string]string{"ref": "is required"})
		return
	}

	pages, err := h.queries.ListPaidPagesByInfluencer(r.Context(), ref)
	if err != nil {
		h.logger.Error("failed to list influencer sales", "ref", ref, "error", err)
		WriteInternalError(w, "Failed to list sales")
		return
	}

	sales := make([]SaleResponse, 0, len(pages))
	for _, p := range pages {
		sales = append(sales, SaleResponse{
			ID:     p.ID,
			Slug:   p.Slug,
			Title:  p.Title,
			PaidAt: util.TimePtrFromNull(p.PaidAt),
		})
	}

	WriteJSON(w, http.StatusOK, InfluencerSalesResponse{
		Ref:   ref,
		Count: len(sales),
		Sales: sales,
	})
}

func (h *Handler) writeLookupError(w http.ResponseWriter, err error, key, value string) {
	if errors.Is(err, sql.ErrNoRows) {
		WriteNotFound(w, "Page not found")
		return
	}
	h.logger.Error("failed to load page", key, value, "error", err)
	WriteInternalError(w, "Failed to load page")
}
