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

// Package api exposes the storefront HTTP surface. Route
// registration owns the admission pipeline per route: CORS, the body
// size ceiling, the rate-limit category, and the credential check all
// hang off the router so a handler can never be reached without
// passing them.
package api

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"go.tevex.dev/storefront/httpserver"
	"go.tevex.dev/storefront/log"
	"go.tevex.dev/storefront/order"
	"go.tevex.dev/storefront/ratelimit"
	"go.tevex.dev/storefront/token"
)

type (
	Option func(o *Options)

	Options struct {
		logger         *log.Logger
		allowedOrigins []string
		adminToken     string
		secureCookies  bool
		trustProxy     bool
	}

	// ReceiptRenderer produces the PDF body for a receipt
	// download.
	ReceiptRenderer interface {
		RenderReceipt(ctx context.Context, o order.Order) ([]byte, error)
	}

	// Handler holds the service dependencies behind the HTTP
	// surface.
	Handler struct {
		orders   order.Store
		tokens   *token.Service
		limiter  *ratelimit.Limiter
		renderer ReceiptRenderer

		logger         *log.Logger
		allowedOrigins []string
		adminToken     string
		secureCookies  bool
		trustProxy     bool
	}
)

const (
	sessionCookieName = "tracking_session"
	sessionCookieAge  = 1800
)

// WithLogger is an option setter for specifying a logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Options) {
		o.logger = l.Named("api")
	}
}

// WithAllowedOrigins sets the CORS allow-list. Origins not on the
// list receive no Access-Control-Allow-Origin header at all.
func WithAllowedOrigins(origins []string) Option {
	return func(o *Options) {
		o.allowedOrigins = origins
	}
}

// WithAdminToken sets the bearer token admin routes require.
func WithAdminToken(tok string) Option {
	return func(o *Options) {
		o.adminToken = tok
	}
}

// WithSecureCookies marks issued cookies Secure. On in production.
func WithSecureCookies(secure bool) Option {
	return func(o *Options) {
		o.secureCookies = secure
	}
}

// WithTrustProxy derives the client identity from X-Forwarded-For
// instead of the socket peer. Only enable behind a proxy that strips
// the header from inbound traffic.
func WithTrustProxy(trust bool) Option {
	return func(o *Options) {
		o.trustProxy = trust
	}
}

func NewHandler(
	orders order.Store,
	tokens *token.Service,
	limiter *ratelimit.Limiter,
	renderer ReceiptRenderer,
	options ...Option,
) *Handler {
	opts := &Options{
		logger: log.NewLogger(log.WithOutput(io.Discard)),
	}

	for _, o := range options {
		o(opts)
	}

	return &Handler{
		orders:         orders,
		tokens:         tokens,
		limiter:        limiter,
		renderer:       renderer,
		logger:         opts.logger,
		allowedOrigins: opts.allowedOrigins,
		adminToken:     opts.adminToken,
		secureCookies:  opts.secureCookies,
		trustProxy:     opts.trustProxy,
	}
}

// Router builds the chi router with the full admission pipeline.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	if h.trustProxy {
		r.Use(chimw.RealIP)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit(ratelimit.CategoryPublic))

		r.With(httpserver.BodyLimit(16<<10)).Post("/orders", h.createOrder)
		r.With(httpserver.BodyLimit(4<<10)).Post("/calculate-price", h.calculatePrice)
		r.Get("/confirmation/{token}", h.confirmation)
		r.Get("/invoice/{token}", h.invoice)
		r.Get("/receipt/{token}", h.receipt)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit(ratelimit.CategoryLogin))

		r.With(httpserver.BodyLimit(1<<10)).Post("/verify-tracking", h.verifyTracking)
		r.Get("/get-order", h.getOrder)
		r.With(httpserver.BodyLimit(1<<10)).Post("/generate-invoice-token", h.issueDownloadToken(token.KindInvoice))
		r.With(httpserver.BodyLimit(1<<10)).Post("/generate-receipt-token", h.issueDownloadToken(token.KindReceipt))
	})

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit(ratelimit.CategoryAdmin))
		r.Use(h.requireAdmin)

		r.With(httpserver.BodyLimit(8<<10)).Patch("/admin/orders/{number}", h.updateOrder)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpserver.RenderError(w, errNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpserver.RenderError(w, errNotFound)
	})

	return r
}
