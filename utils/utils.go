// Package utils provides utility functions for the application.
package utils

import (
	"strings"
	"unicode"
)

func ToPtr[T any](v T) *T {
	return &v
}

// Slugify lowercases s and joins its whitespace-separated words with hyphens.
func Slugify(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), unicode.IsSpace), "-")
}

// GroupDigits formats an 11+ digit phone number as "0812 3456 7890" style groups of
// four, leaving anything shorter untouched.
func GroupDigits(phone string) string {
	if len(phone) < 11 {
		return phone
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return phone
		}
	}
	return phone[:4] + " " + phone[4:8] + " " + phone[8:]
}
