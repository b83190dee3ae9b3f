// Copyright (c) 2024 Bryan Frimin <bryan@frimin.fr>.
//
// Permission to use, copy, modify, and/or distribute this software
// for any purpose with or without fee is hereby granted, provided
// that the above copyright notice and this permission notice appear
// in all copies.
//
// THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL
// WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED
// WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE
// AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR
// CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS
// OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT,
// NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN
// CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.

// Package sanitize normalizes and validates untrusted request strings
// before they reach business logic or storage queries. Every function
// is pure and total: invalid input yields a false second return,
// never a panic or an error value.
package sanitize

import (
	"strings"
	"unicode"
)

const (
	// MaxEmailLength caps emails at the practical RFC 5321 limit.
	MaxEmailLength = 254

	// MaxIdentifierLength caps order numbers and tokens used as
	// lookup keys.
	MaxIdentifierLength = 64
)

// Email trims, lowercases and validates a minimal local@domain.tld
// shape. It rejects rather than truncates, emails are lookup keys.
func Email(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || len(s) > MaxEmailLength {
		return "", false
	}

	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return "", false
	}

	local, domain := s[:at], s[at+1:]
	if strings.ContainsAny(local, " \t@") {
		return "", false
	}

	dot := strings.LastIndexByte(domain, '.')
	if dot <= 0 || dot == len(domain)-1 {
		return "", false
	}

	for _, r := range domain {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '-' {
			return "", false
		}
	}

	return strings.ToLower(s), true
}

// Text trims whitespace and truncates free form text to maxLen runes,
// stripping control characters. Free text is truncated, not rejected.
func Text(raw string, maxLen int) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	var b strings.Builder
	n := 0
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		if n >= maxLen {
			break
		}
		b.WriteRune(r)
		n++
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", false
	}

	return out, true
}

// OrderNumber validates an order number or opaque token identifier:
// alphanumeric plus hyphen, bounded length. Identifiers used in
// lookups are rejected on any violation, never truncated.
func OrderNumber(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || len(s) > MaxIdentifierLength {
		return "", false
	}

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return "", false
		}
	}

	return s, true
}

// Token validates an opaque credential string, same grammar as order
// numbers but longer: hex tokens are 64 characters.
func Token(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || len(s) > 128 {
		return "", false
	}

	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return "", false
		}
	}

	return s, true
}

// Digits validates a string of exactly n ASCII digits, the shape of a
// phone number fragment.
func Digits(raw string, n int) (string, bool) {
	s := strings.TrimSpace(raw)
	if len(s) != n {
		return "", false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}

	return s, true
}

// PaymentReference normalizes a payment or promo reference: uppercase
// alphanumeric plus hyphen, everything else stripped, bounded length.
func PaymentReference(raw string) string {
	s := strings.TrimSpace(raw)

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(unicode.ToUpper(r))
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-':
			b.WriteRune(r)
		}
	}

	out := b.String()
	if len(out) > MaxIdentifierLength {
		out = out[:MaxIdentifierLength]
	}

	return out
}

// DigitsOnly strips every non digit rune, used to normalize stored
// phone numbers before suffix comparison.
func DigitsOnly(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	return b.String()
}
