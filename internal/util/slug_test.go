// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple title", "Hello World", "hello-world"},
		{"with special characters", "Feliz Natal, Mãe!", "feliz-natal-mae"},
		{"with numbers", "Natal 2025", "natal-2025"},
		{"with accents", "Coração de avó", "coracao-de-avo"},
		{"with multiple spaces", "Hello   World", "hello-world"},
		{"with hyphens", "Hello - World", "hello-world"},
		{"with leading/trailing spaces", "  Hello World  ", "hello-world"},
		{"all special characters", "!@#$%^&*()", ""},
		{"unicode characters", "日本語タイトル", ""},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Slugify(tt.input)
			if result != tt.expected {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPageSlugBase(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain title", "Para Minha Mãe", "para-minha-mae"},
		{"no sluggable characters", "!!!", DefaultSlugBase},
		{"empty", "", DefaultSlugBase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PageSlugBase(tt.input); got != tt.expected {
				t.Errorf("PageSlugBase(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPageSlugBaseTransliterates(t *testing.T) {
	got := PageSlugBase("日本語")
	if got == DefaultSlugBase || !IsValidSlug(got) {
		t.Errorf("PageSlugBase(日本語) = %q, want a transliterated slug", got)
	}
}

func TestPageSlugBaseTruncates(t *testing.T) {
	got := PageSlugBase(strings.Repeat("abc ", 40))
	if len(got) > MaxSlugBaseLength {
		t.Errorf("len = %d, want <= %d", len(got), MaxSlugBaseLength)
	}
	if !IsValidSlug(got) {
		t.Errorf("truncated slug %q is not valid", got)
	}
}

func TestGeneratePageSlug(t *testing.T) {
	slug, err := GeneratePageSlug("Feliz Natal")
	if err != nil {
		t.Fatalf("GeneratePageSlug: %v", err)
	}
	if !strings.HasPrefix(slug, "feliz-natal-") {
		t.Errorf("slug = %q, want prefix %q", slug, "feliz-natal-")
	}
	if got := len(slug) - len("feliz-natal-"); got != SlugSuffixLength {
		t.Errorf("suffix length = %d, want %d", got, SlugSuffixLength)
	}
	if !IsValidSlug(slug) {
		t.Errorf("slug %q is not valid", slug)
	}

	other, err := GeneratePageSlug("Feliz Natal")
	if err != nil {
		t.Fatalf("GeneratePageSlug: %v", err)
	}
	if other == slug {
		t.Errorf("two generated slugs collided: %q", slug)
	}
}

func TestRandomBase36(t *testing.T) {
	s, err := RandomBase36(32)
	if err != nil {
		t.Fatalf("RandomBase36: %v", err)
	}
	if len(s) != 32 {
		t.Fatalf("len = %d, want 32", len(s))
	}
	for _, r := range s {
		if !strings.ContainsRune(base36Alphabet, r) {
			t.Errorf("unexpected rune %q", r)
		}
	}
}

func TestIsValidSlug(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"valid simple slug", "hello-world", true},
		{"valid slug with numbers", "page-123", true},
		{"valid numbers only", "123", true},
		{"invalid - empty", "", false},
		{"invalid - uppercase", "Hello-World", false},
		{"invalid - spaces", "hello world", false},
		{"invalid - special chars", "hello!world", false},
		{"invalid - starts with hyphen", "-hello", false},
		{"invalid - ends with hyphen", "hello-", false},
		{"invalid - consecutive hyphens", "hello--world", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidSlug(tt.input)
			if result != tt.expected {
				t.Errorf("IsValidSlug(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}
