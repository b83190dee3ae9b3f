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

package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"alice@example.com", "alice@example.com", true},
		{"  Alice@Example.COM  ", "alice@example.com", true},
		{"a@b.co", "a@b.co", true},
		{"", "", false},
		{"no-at-sign", "", false},
		{"@example.com", "", false},
		{"alice@", "", false},
		{"alice@nodot", "", false},
		{"alice@example.", "", false},
		{"alice@exa mple.com", "", false},
		{"al ice@example.com", "", false},
		{strings.Repeat("a", 250) + "@b.co", "", false},
	}

	for _, tt := range tests {
		got, ok := Email(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestText(t *testing.T) {
	got, ok := Text("  hello world  ", 64)
	assert.True(t, ok)
	assert.Equal(t, "hello world", got)

	// Truncation, not rejection.
	got, ok = Text(strings.Repeat("x", 100), 10)
	assert.True(t, ok)
	assert.Equal(t, strings.Repeat("x", 10), got)

	// Control characters are stripped.
	got, ok = Text("a\x00b\x1fc", 64)
	assert.True(t, ok)
	assert.Equal(t, "abc", got)

	_, ok = Text("   ", 64)
	assert.False(t, ok)

	_, ok = Text("\x00\x01", 64)
	assert.False(t, ok)
}

func TestOrderNumber(t *testing.T) {
	got, ok := OrderNumber(" TVX-1001 ")
	assert.True(t, ok)
	assert.Equal(t, "TVX-1001", got)

	for _, bad := range []string{
		"",
		"TVX 1001",
		"TVX_1001",
		"TVX-1001; DROP TABLE orders",
		strings.Repeat("A", MaxIdentifierLength+1),
	} {
		_, ok := OrderNumber(bad)
		assert.False(t, ok, "input %q", bad)
	}
}

func TestDigits(t *testing.T) {
	got, ok := Digits("4321", 4)
	assert.True(t, ok)
	assert.Equal(t, "4321", got)

	for _, bad := range []string{"432", "43210", "43a1", "", "４３２１"} {
		_, ok := Digits(bad, 4)
		assert.False(t, ok, "input %q", bad)
	}
}

func TestPaymentReference(t *testing.T) {
	assert.Equal(t, "SUMMER-10", PaymentReference(" summer-10 "))
	assert.Equal(t, "ABC123", PaymentReference("a b/c#1$2%3"))
	assert.Equal(t, "", PaymentReference("!!!"))
	assert.Len(t, PaymentReference(strings.Repeat("A", 100)), MaxIdentifierLength)
}

func TestDigitsOnly(t *testing.T) {
	assert.Equal(t, "15551234321", DigitsOnly("+1 (555) 123-4321"))
	assert.Equal(t, "", DigitsOnly("no digits"))
}
