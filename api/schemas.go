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

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.tevex.dev/storefront/apperr"
	"go.tevex.dev/storefront/order"
	"go.tevex.dev/storefront/token"
)

type (
	verifyTrackingRequest struct {
		OrderNumber    string `json:"order_number"`
		LastFourDigits string `json:"last_four_digits"`
	}

	verifyTrackingResponse struct {
		Order order.Order `json:"order"`

		// SessionToken duplicates the tracking_session cookie for
		// clients that pass the session explicitly.
		SessionToken string `json:"session_token"`
	}

	generateTokenRequest struct {
		OrderNumber string `json:"order_number"`
	}

	createOrderRequest struct {
		CustomerName  string `json:"customer_name"`
		CustomerEmail string `json:"customer_email"`
		CustomerPhone string `json:"customer_phone"`
		TotalCents    int64  `json:"total_cents"`
	}

	calculatePriceRequest struct {
		TotalCents int64  `json:"total_cents"`
		PromoCode  string `json:"promo_code"`
	}

	updateOrderRequest struct {
		Status     *string `json:"status"`
		TotalCents *int64  `json:"total_cents"`
	}

	orderResponse struct {
		Order order.Order `json:"order"`
	}

	createOrderResponse struct {
		Order             order.Order `json:"order"`
		ConfirmationToken string      `json:"confirmation_token"`
	}

	tokenResponse struct {
		Token string `json:"token"`
	}

	priceResponse struct {
		TotalCents      int64  `json:"total_cents"`
		DiscountPercent int    `json:"discount_percent"`
		PromoCode       string `json:"promo_code,omitempty"`
	}
)

// decodeJSON parses the request body into v. Overflowing the route's
// body ceiling surfaces as a 413; anything else wrong with the
// payload is a 400.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return apperr.New(apperr.KindPayloadTooLarge, "request body too large")
		}

		return apperr.New(apperr.KindUser, "invalid request body")
	}

	return nil
}

// credentialError maps the token package sentinels onto the error
// taxonomy. Every rejection of one family shares a single sentinel,
// so responses stay byte-identical regardless of the internal cause.
func credentialError(err error) error {
	switch {
	case errors.Is(err, token.ErrVerificationFailed),
		errors.Is(err, token.ErrSessionInvalid):
		return apperr.Wrap(apperr.KindAuth, err.Error(), err)
	case errors.Is(err, token.ErrTokenInvalid):
		return apperr.Wrap(apperr.KindNotFound, err.Error(), err)
	default:
		return err
	}
}
