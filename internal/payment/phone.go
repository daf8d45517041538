// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package payment

import (
	"strings"
	"unicode"

	"github.com/olegiv/tribute-go/internal/provider"
)

// ParsePhone splits a Brazilian phone number into area code and number.
// Accepted shapes include "(11) 98765-4321", "11987654321" and
// "+55 11 98765-4321". It returns false when the input cannot be a valid
// number; callers drop the phone instead of rejecting the payment.
func ParsePhone(raw string) (*provider.Phone, bool) {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if (len(digits) == 12 || len(digits) == 13) && strings.HasPrefix(digits, "55") {
		digits = digits[2:]
	}
	if len(digits) != 10 && len(digits) != 11 {
		return nil, false
	}

	area, number := digits[:2], digits[2:]
	if area[0] == '0' || area == "10" {
		return nil, false
	}
	// Mobile numbers have nine digits and start with 9.
	if len(number) == 9 && number[0] != '9' {
		return nil, false
	}

	return &provider.Phone{AreaCode: area, Number: number}, true
}
