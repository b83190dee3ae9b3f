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

package otelutils

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToValidUTF8(t *testing.T) {
	invalid := string([]byte{0xff, 0xfe, 'a'})
	require.False(t, utf8.ValidString(invalid))

	assert.True(t, utf8.ValidString(ToValidUTF8(invalid)))
	assert.Equal(t, "plain", ToValidUTF8("plain"))
}

func TestSanitizeError(t *testing.T) {
	invalid := string([]byte{0xff, 0xfe, 'a'})
	bad := errors.New(invalid)
	require.False(t, utf8.ValidString(bad.Error()))

	serr := SanitizeError(bad)
	require.Error(t, serr)
	assert.True(t, utf8.ValidString(serr.Error()))
	assert.ErrorIs(t, serr, bad)

	// Valid errors pass through untouched.
	good := errors.New("cannot reach upstream")
	assert.Same(t, good, SanitizeError(good))
	assert.Nil(t, SanitizeError(nil))
}
