// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package util provides general-purpose utility functions including
// URL slug generation and validation with Unicode normalization support.
package util

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxSlugBaseLength caps the title-derived part of a page slug.
	MaxSlugBaseLength = 50
	// SlugSuffixLength is the number of random base36 characters appended to a page slug.
	SlugSuffixLength = 6
	// DefaultSlugBase is used when a title has no sluggable characters.
	DefaultSlugBase = "tribute"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

var (
	// slugRegex matches non-alphanumeric characters (except hyphens)
	slugRegex = regexp.MustCompile(`[^a-z0-9-]+`)
	// multipleHyphens matches multiple consecutive hyphens
	multipleHyphens = regexp.MustCompile(`-{2,}`)
)

// Slugify converts a string to a URL-friendly slug.
// It converts to lowercase, removes accents, replaces spaces with hyphens,
// and removes all non-alphanumeric characters except hyphens.
func Slugify(s string) string {
	// Normalize unicode characters (decompose accents)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)

	result = strings.ToLower(result)
	result = strings.ReplaceAll(result, " ", "-")
	result = slugRegex.ReplaceAllString(result, "")
	result = multipleHyphens.ReplaceAllString(result, "-")

	return strings.Trim(result, "-")
}

// PageSlugBase returns the title-derived part of a page slug. Non-Latin
// titles are transliterated first so they still produce a readable slug.
func PageSlugBase(title string) string {
	base := Slugify(unidecode.Unidecode(title))
	if len(base) > MaxSlugBaseLength {
		base = strings.Trim(base[:MaxSlugBaseLength], "-")
	}
	if base == "" {
		return DefaultSlugBase
	}
	return base
}

// GeneratePageSlug builds "<title-slug>-<random suffix>" for a new page.
func GeneratePageSlug(title string) (string, error) {
	suffix, err := RandomBase36(SlugSuffixLength)
	if err != nil {
		return "", err
	}
	return PageSlugBase(title) + "-" + suffix, nil
}

// RandomBase36 returns n cryptographically random base36 characters.
func RandomBase36(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	limit := big.NewInt(int64(len(base36Alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		sb.WriteByte(base36Alphabet[idx.Int64()])
	}
	return sb.String(), nil
}

// IsValidSlug checks if a string is a valid slug format.
func IsValidSlug(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return false
		}
	}

	if s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}

	return !strings.Contains(s, "--")
}
