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

// Package token implements the credential state machine: tracking
// sessions obtained by proving knowledge of an order's phone digits,
// and one-time tokens consumed exactly once.
//
// Every rejection within one credential family is deliberately
// indistinguishable from the outside. A caller cannot tell a missing
// order from wrong digits, nor an unknown token from one already
// consumed; that is a security property, not a shortcut.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

type (
	// Kind discriminates the one-time token families.
	Kind string

	// TrackingSession is a short lived, multi-use credential
	// bound to exactly one order.
	TrackingSession struct {
		Token       string
		OrderNumber string
		ExpiresAt   time.Time
	}

	// OneTimeToken permits exactly one successful consumption.
	OneTimeToken struct {
		Token       string
		OrderNumber string
		Kind        Kind
		Used        bool
		CreatedAt   time.Time
	}

	// Store persists credentials in the external data store. The
	// store is the sole owner of credential state; nothing is
	// cached in-process.
	Store interface {
		CreateSession(ctx context.Context, s TrackingSession) error

		// GetSession fetches a session by token. The bool is
		// false when no such session exists; expiry is the
		// caller's concern.
		GetSession(ctx context.Context, tok string) (TrackingSession, bool, error)

		CreateToken(ctx context.Context, t OneTimeToken) error

		// ConsumeToken atomically marks the token used and
		// returns its order number. The bool is false when the
		// token is unknown, of another kind, or already used;
		// the three cases are not distinguished. Exactly one
		// concurrent caller may ever see true for a given token.
		ConsumeToken(ctx context.Context, tok string, kind Kind) (string, bool, error)
	}
)

const (
	KindConfirmation Kind = "confirmation"
	KindInvoice      Kind = "invoice"
	KindReceipt      Kind = "receipt"

	// SessionTTL is how long a tracking session stays valid.
	SessionTTL = 30 * time.Minute
)

var (
	// ErrVerificationFailed is returned for any failed tracking
	// verification: unknown order, wrong digits, or a storage
	// fault. One message for all of them.
	ErrVerificationFailed = errors.New("order number or verification digits do not match")

	// ErrSessionInvalid is returned for a missing, expired, or
	// wrong-order tracking session.
	ErrSessionInvalid = errors.New("missing or invalid tracking session")

	// ErrTokenInvalid is returned for any unusable one-time
	// token: unknown, expired, or already consumed.
	ErrTokenInvalid = errors.New("token is expired or invalid")
)

// Generate returns a fresh opaque credential: 32 bytes from the
// system CSPRNG, hex encoded. 256 bits keeps guessing infeasible even
// without the store's single-use enforcement.
func Generate() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("cannot read random bytes: %w", err)
	}

	return hex.EncodeToString(b), nil
}
