// Package utils provides utility functions for the application.
package utils

import (
	"net/mail"
	"strings"
)

func ToPtr[T any](v T) *T {
	return &v
}

func IsTrue(b *bool) bool {
	return b != nil && *b
}

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailDomain returns the lower-cased part after the last '@', or "" when the
// address does not parse.
func EmailDomain(email string) string {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return ""
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 0 || at == len(addr.Address)-1 {
		return ""
	}
	return strings.ToLower(addr.Address[at+1:])
}

// IsDigits reports whether s is non-empty and made only of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MaskEmail hides most of the local part: "rambahadur@gmail.com" -> "ra********@gmail.com".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local := email[:at]
	keep := 2
	if len(local) <= keep {
		keep = 1
	}
	return local[:keep] + strings.Repeat("*", len(local)-keep) + email[at:]
}
