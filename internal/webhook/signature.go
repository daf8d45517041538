// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Inbound signature errors.
var (
	ErrMissingSignature   = errors.New("webhook: missing signature header")
	ErrMalformedSignature = errors.New("webhook: malformed signature header")
	ErrSignatureMismatch  = errors.New("webhook: signature mismatch")
)

// GenerateSignature generates an HMAC-SHA256 signature for the payload.
func GenerateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature verifies an HMAC-SHA256 signature.
func VerifySignature(payload []byte, signature, secret string) bool {
	expectedSig := GenerateSignature(payload, secret)
	return hmac.Equal([]byte(signature), []byte(expectedSig))
}

// ParseSignatureHeader splits a Mercado Pago x-signature header of the form
// "ts=1704908010,v1=618c8534...".
func ParseSignatureHeader(header string) (ts, v1 string, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", "", ErrMissingSignature
	}
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	if ts == "" || v1 == "" {
		return "", "", ErrMalformedSignature
	}
	return ts, v1, nil
}

// SignatureManifest builds the string Mercado Pago signs. Parts whose value
// is absent are left out, and alphanumeric data ids are lowercased.
func SignatureManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:")
		b.WriteString(strings.ToLower(dataID))
		b.WriteString(";")
	}
	if requestID != "" {
		b.WriteString("request-id:")
		b.WriteString(requestID)
		b.WriteString(";")
	}
	b.WriteString("ts:")
	b.WriteString(ts)
	b.WriteString(";")
	return b.String()
}

// VerifyProviderSignature checks an inbound provider notification against the
// shared secret.
func VerifyProviderSignature(secret, header, requestID, dataID string) error {
	ts, v1, err := ParseSignatureHeader(header)
	if err != nil {
		return err
	}
	manifest := SignatureManifest(dataID, requestID, ts)
	if !VerifySignature([]byte(manifest), strings.ToLower(v1), secret) {
		return ErrSignatureMismatch
	}
	return nil
}
