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
	"net/http"

	"github.com/go-chi/chi/v5"

	"go.tevex.dev/storefront/apperr"
	"go.tevex.dev/storefront/httpserver"
	"go.tevex.dev/storefront/log"
	"go.tevex.dev/storefront/order"
	"go.tevex.dev/storefront/sanitize"
	"go.tevex.dev/storefront/token"
)

var validStatuses = map[string]struct{}{
	"pending":   {},
	"paid":      {},
	"shipped":   {},
	"delivered": {},
	"cancelled": {},
}

func (h *Handler) verifyTracking(w http.ResponseWriter, r *http.Request) {
	var req verifyTrackingRequest
	if err := decodeJSON(r, &req); err != nil {
		httpserver.RenderError(w, err)
		return
	}

	number, ok := sanitize.OrderNumber(req.OrderNumber)
	if !ok {
		httpserver.RenderError(w, apperr.New(apperr.KindUser, "invalid order number"))
		return
	}

	digits, ok := sanitize.Digits(req.LastFourDigits, 4)
	if !ok {
		httpserver.RenderError(w, apperr.New(apperr.KindUser, "invalid verification digits"))
		return
	}

	o, sessionToken, err := h.tokens.VerifyTrackingAccess(r.Context(), number, digits)
	if err != nil {
		httpserver.RenderError(w, credentialError(err))
		return
	}

	h.setSessionCookie(w, sessionToken)
	httpserver.RenderJSON(w, http.StatusOK, verifyTrackingResponse{
		Order:        o,
		SessionToken: sessionToken,
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	number, ok := sanitize.OrderNumber(r.URL.Query().Get("order_number"))
	if !ok {
		httpserver.RenderError(w, apperr.New(apperr.KindUser, "invalid order number"))
		return
	}

	sessionToken, err := h.sessionToken(r)
	if err != nil {
		httpserver.RenderError(w, credentialError(err))
		return
	}

	o, err := h.tokens.ValidateTrackingSession(r.Context(), sessionToken, number)
	if err != nil {
		httpserver.RenderError(w, credentialError(err))
		return
	}

	httpserver.RenderJSON(w, http.StatusOK, orderResponse{Order: o})
}

func (h *Handler) issueDownloadToken(kind token.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateTokenRequest
		if err := decodeJSON(r, &req); err != nil {
			httpserver.RenderError(w, err)
			return
		}

		number, ok := sanitize.OrderNumber(req.OrderNumber)
		if !ok {
			httpserver.RenderError(w, apperr.New(apperr.KindUser, "invalid order number"))
			return
		}

		sessionToken, err := h.sessionToken(r)
		if err != nil {
			httpserver.RenderError(w, credentialError(err))
			return
		}

		tok, err := h.tokens.IssueDownloadToken(r.Context(), sessionToken, number, kind)
		if err != nil {
			httpserver.RenderError(w, credentialError(err))
			return
		}

		httpserver.RenderJSON(w, http.StatusCreated, tokenResponse{Token: tok})
	}
}

func (h *Handler) confirmation(w http.ResponseWriter, r *http.Request) {
	o, ok := h.consume(w, r, token.KindConfirmation)
	if !ok {
		return
	}

	httpserver.RenderJSON(w, http.StatusOK, orderResponse{Order: o})
}

func (h *Handler) invoice(w http.ResponseWriter, r *http.Request) {
	o, ok := h.consume(w, r, token.KindInvoice)
	if !ok {
		return
	}

	httpserver.RenderJSON(w, http.StatusOK, orderResponse{Order: o})
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	// The consume comes first because it is the only source of the
	// order snapshot. A renderer failure after it has burned the
	// token: the 500 leaves no retry path and the customer needs a
	// freshly issued token.
	o, ok := h.consume(w, r, token.KindReceipt)
	if !ok {
		return
	}

	pdf, err := h.renderer.RenderReceipt(r.Context(), o)
	if err != nil {
		h.logger.ErrorCtx(r.Context(), "cannot render receipt", log.Error(err))
		httpserver.RenderError(w, apperr.Wrap(apperr.KindServer, "cannot render receipt", err))
		return
	}

	httpserver.RenderPDF(w, http.StatusOK, pdf)
}

// consume redeems the URL token for the given kind. A malformed
// token takes the same rejection path as an unknown one.
func (h *Handler) consume(w http.ResponseWriter, r *http.Request, kind token.Kind) (order.Order, bool) {
	tok, ok := sanitize.Token(chi.URLParam(r, "token"))
	if !ok {
		httpserver.RenderError(w, credentialError(token.ErrTokenInvalid))
		return order.Order{}, false
	}

	o, err := h.tokens.Consume(r.Context(), tok, kind)
	if err != nil {
		httpserver.RenderError(w, credentialError(err))
		return order.Order{}, false
	}

	return o, true
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		httpserver.RenderError(w, err)
		return
	}

	name, ok := sanitize.Text(req.CustomerName, 200)
	if !ok || name == "" {
		httpserver.RenderError(w, apperr.New(apperr.KindUser, "invalid customer name"))
		return
	}

	email, ok := sanitize.Email(req.CustomerEmail)
	if !ok {
		httpserver.RenderError(w, apperr.New(apperr.KindUser, "invalid customer email"))
		return
	}

	phone, ok := sanitize.Text(req.CustomerPhone, 32)
	if !ok || len(sanitize.DigitsOnly(phone)) < 4 {
		httpserver.RenderError(w, apperr.New(apperr.KindUser, "invalid customer phone"))
		return
	}

	if req.TotalCents < 0 {
		httpserver.RenderError(w, apperr.New(apperr.KindUser, "invalid order total"))
		return
	}

	o := order.Order{
		CustomerName:  name,
		CustomerEmail: email,
		CustomerPhone: phone,
		Status:        "pending",
		TotalCents:    req.TotalCents,
	}
	if err := h.orders.Create(r.Context(), &o); err != nil {
		h.logger.ErrorCtx(r.Context(), "cannot create order", log.Error(err))
		httpserver.RenderError(w, apperr.Wrap(apperr.KindServer, "cannot create order", err))
		return
	}

	confirmationToken, err := h.tokens.IssueConfirmationToken(r.Context(), o.Number)
	if err != nil {
		httpserver.RenderError(w, credentialError(err))
		return
	}

	httpserver.RenderJSON(w, http.StatusCreated, createOrderResponse{
		Order:             o,
		ConfirmationToken: confirmationToken,
	})
}

func (h *Handler) calculatePrice(w http.ResponseWriter, r *http.Request) {
	var req calculatePriceRequest
	if err := decodeJSON(r, &req); err != nil {
		httpserver.RenderError(w, err)
		return
	}

	if req.TotalCents < 0 {
		httpserver.RenderError(w, apperr.New(apperr.KindUser, "invalid order total"))
		return
	}

	resp := priceResponse{TotalCents: req.TotalCents}

	if req.PromoCode != "" {
		code := sanitize.PaymentReference(req.PromoCode)

		promo, found, err := h.orders.LookupPromoCode(r.Context(), code)
		if err != nil {
			h.logger.ErrorCtx(r.Context(), "cannot lookup promo code", log.Error(err))
			httpserver.RenderError(w, apperr.Wrap(apperr.KindServer, "cannot lookup promo code", err))
			return
		}

		if !found || !promo.Active {
			httpserver.RenderError(w, apperr.New(apperr.KindUser, "invalid promo code"))
			return
		}

		resp.PromoCode = promo.Code
		resp.DiscountPercent = promo.PercentOff
		resp.TotalCents = req.TotalCents - req.TotalCents*int64(promo.PercentOff)/100
	}

	httpserver.RenderJSON(w, http.StatusOK, resp)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	number, ok := sanitize.OrderNumber(chi.URLParam(r, "number"))
	if !ok {
		httpserver.RenderError(w, apperr.New(apperr.KindUser, "invalid order number"))
		return
	}

	var req updateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		httpserver.RenderError(w, err)
		return
	}

	if req.Status == nil && req.TotalCents == nil {
		httpserver.RenderError(w, apperr.New(apperr.KindUser, "nothing to update"))
		return
	}

	if req.Status != nil {
		if _, ok := validStatuses[*req.Status]; !ok {
			httpserver.RenderError(w, apperr.New(apperr.KindUser, "invalid order status"))
			return
		}
	}

	if req.TotalCents != nil && *req.TotalCents < 0 {
		httpserver.RenderError(w, apperr.New(apperr.KindUser, "invalid order total"))
		return
	}

	found, err := h.orders.Update(r.Context(), number, order.Patch{
		Status:     req.Status,
		TotalCents: req.TotalCents,
	})
	if err != nil {
		h.logger.ErrorCtx(r.Context(), "cannot update order", log.Error(err))
		httpserver.RenderError(w, apperr.Wrap(apperr.KindServer, "cannot update order", err))
		return
	}
	if !found {
		httpserver.RenderError(w, errNotFound)
		return
	}

	o, found, err := h.orders.Lookup(r.Context(), number)
	if err != nil || !found {
		httpserver.RenderError(w, errNotFound)
		return
	}

	httpserver.RenderJSON(w, http.StatusOK, orderResponse{Order: o})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, tok string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    tok,
		Path:     "/",
		MaxAge:   sessionCookieAge,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// sessionToken extracts the tracking session from the cookie, or
// from the session_token query parameter for clients that pass it
// explicitly.
func (h *Handler) sessionToken(r *http.Request) (string, error) {
	raw := r.URL.Query().Get("session_token")
	if c, err := r.Cookie(sessionCookieName); err == nil {
		raw = c.Value
	}

	tok, ok := sanitize.Token(raw)
	if !ok {
		return "", token.ErrSessionInvalid
	}

	return tok, nil
}
