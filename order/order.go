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

// Package order defines the contract with the external order store.
// The storefront never owns order state beyond the scope of one
// request; everything here is a read or a single-row atomic write
// against the relational store.
package order

import (
	"context"
	"time"
)

type (
	// Order is the snapshot returned to a customer who proved
	// ownership. The phone number never serializes, it exists
	// only for last-four verification.
	Order struct {
		Number        string    `json:"order_number"`
		CustomerName  string    `json:"customer_name"`
		CustomerEmail string    `json:"customer_email"`
		CustomerPhone string    `json:"-"`
		Status        string    `json:"status"`
		TotalCents    int64     `json:"total_cents"`
		CreatedAt     time.Time `json:"created_at"`
	}

	// Patch is a partial order update; nil fields are untouched.
	Patch struct {
		Status     *string
		TotalCents *int64
	}

	// PromoCode is a discount code looked up during price
	// calculation.
	PromoCode struct {
		Code       string `json:"code"`
		PercentOff int    `json:"percent_off"`
		Active     bool   `json:"active"`
	}

	// Store is the order side of the external data store.
	Store interface {
		// Lookup fetches an order by number. The second return is
		// false when no such order exists.
		Lookup(ctx context.Context, number string) (Order, bool, error)

		// Create persists a new order, assigning its number and
		// creation time on o.
		Create(ctx context.Context, o *Order) error

		// Update applies patch to the order as one atomic
		// single-row write. The bool reports whether a row matched.
		Update(ctx context.Context, number string, patch Patch) (bool, error)

		// LookupPromoCode fetches a promo code by its normalized
		// form.
		LookupPromoCode(ctx context.Context, code string) (PromoCode, bool, error)
	}
)
