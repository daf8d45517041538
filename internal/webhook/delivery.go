// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package webhook

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"
)

// Delivery configuration constants
const (
	MaxAttempts    = 5                // Maximum number of delivery attempts
	InitialBackoff = 2 * time.Second  // Initial backoff delay
	MaxBackoff     = 2 * time.Minute  // Maximum backoff delay
	RequestTimeout = 10 * time.Second // HTTP request timeout
	MaxResponseLen = 1024             // Maximum response body kept for logs
	UserAgent      = "tribute/1.0"    // User-Agent header value
)

// DeliveryResult represents the result of a delivery attempt.
type DeliveryResult struct {
	Success      bool
	StatusCode   int
	ResponseBody string
	Error        error
	ShouldRetry  bool
}

type backoffPolicy struct {
	initial time.Duration
	max     time.Duration
}

// processDelivery sends one queued event, retrying with exponential backoff
// until it succeeds, fails permanently, or runs out of attempts.
func (d *Dispatcher) processDelivery(ctx context.Context, delivery *QueuedDelivery) {
	for {
		result := d.attemptDelivery(ctx, delivery)
		delivery.Attempts++

		if result.Success {
			d.logger.Info("webhook delivered successfully",
				"delivery_id", delivery.DeliveryID,
				"event", delivery.Event,
				"status_code", result.StatusCode,
				"attempts", delivery.Attempts)
			return
		}

		errMsg := ""
		if result.Error != nil {
			errMsg = result.Error.Error()
		}

		if !result.ShouldRetry || delivery.Attempts >= MaxAttempts {
			d.logger.Warn("webhook delivery marked as dead",
				"delivery_id", delivery.DeliveryID,
				"event", delivery.Event,
				"attempts", delivery.Attempts,
				"reason", errMsg)
			return
		}

		backoff := d.backoff.next(delivery.Attempts)
		d.logger.Info("webhook delivery scheduled for retry",
			"delivery_id", delivery.DeliveryID,
			"attempt", delivery.Attempts,
			"backoff", backoff.String(),
			"reason", errMsg)

		timer := time.NewTimer(backoff)
		select {
		case <-d.done:
			timer.Stop()
			d.logger.Warn("webhook delivery abandoned on shutdown",
				"delivery_id", delivery.DeliveryID, "attempts", delivery.Attempts)
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// attemptDelivery performs the actual HTTP POST request.
func (d *Dispatcher) attemptDelivery(ctx context.Context, delivery *QueuedDelivery) DeliveryResult {
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("X-Webhook-Signature", GenerateSignature(delivery.Payload, d.secret)).
		SetHeader("X-Webhook-Event", delivery.Event).
		SetHeader("X-Webhook-Delivery-ID", delivery.DeliveryID).
		SetBody(delivery.Payload).
		Post(d.url)
	if err != nil {
		return DeliveryResult{
			Error:       fmt.Errorf("request failed: %w", err),
			ShouldRetry: true,
		}
	}

	body := resp.Body()
	if len(body) > MaxResponseLen {
		body = body[:MaxResponseLen]
	}
	status := resp.StatusCode()

	if status >= 200 && status < 300 {
		return DeliveryResult{
			Success:      true,
			StatusCode:   status,
			ResponseBody: string(body),
		}
	}

	shouldRetry := status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
	return DeliveryResult{
		StatusCode:   status,
		ResponseBody: string(body),
		Error:        fmt.Errorf("HTTP %d: %s", status, http.StatusText(status)),
		ShouldRetry:  shouldRetry,
	}
}

// next returns the delay after the given attempt: initial * 2^(attempt-1),
// capped at max.
func (b backoffPolicy) next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	backoff := time.Duration(float64(b.initial) * math.Pow(2, float64(attempt-1)))
	if backoff > b.max || backoff <= 0 {
		backoff = b.max
	}
	return backoff
}
