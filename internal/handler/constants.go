// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handler holds route constants and the health endpoint. JSON API
// handlers live in the api subpackage.
package handler

// Route pattern constants for chi router registration.
const (
	// RouteHealth is the health check route.
	RouteHealth = "/health"
	// RouteHealthLive is the liveness probe route.
	RouteHealthLive = "/health/live"

	// RouteAPI is the prefix for all JSON API routes.
	RouteAPI = "/api"

	// RoutePages is the pages collection route.
	RoutePages = "/pages"
	// RoutePageSlug is the public page view route.
	RoutePageSlug = "/pages/{slug}"
	// RoutePageIDSlug resolves a page id to its slug.
	RoutePageIDSlug = "/pages/{id}/slug"
	// RoutePageCustomer updates buyer contact details.
	RoutePageCustomer = "/pages/{id}/customer"

	// RoutePaymentsPix creates a QR-style payment.
	RoutePaymentsPix = "/payments/pix"
	// RoutePaymentsCheckout creates a redirect-style checkout.
	RoutePaymentsCheckout = "/payments/checkout"
	// RoutePaymentsStatus is the status polling route.
	RoutePaymentsStatus = "/payments/status"
	// RoutePaymentsConfirm handles the return from the provider checkout.
	RoutePaymentsConfirm = "/payments/confirm"

	// RouteWebhookMercadoPago receives provider notifications.
	RouteWebhookMercadoPago = "/webhooks/mercadopago"

	// RouteInfluencerSales lists paid pages by influencer reference.
	RouteInfluencerSales = "/influencer-sales"
)

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// Log message constants for consistent logging.
const (
	LogCacheInit = "paid-result cache initialized"
)
