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
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.tevex.dev/storefront/apperr"
	"go.tevex.dev/storefront/httpserver"
	"go.tevex.dev/storefront/ratelimit"
)

var (
	errNotFound       = apperr.New(apperr.KindNotFound, "not found")
	errRateLimited    = apperr.New(apperr.KindRateLimited, "too many requests")
	errBadCredentials = apperr.New(apperr.KindAuth, "missing or invalid credentials")
)

// rateLimit checks the category quota for the client identity and
// stamps the quota headers on every response, allowed or not.
func (h *Handler) rateLimit(category ratelimit.Category) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := h.limiter.Check(r.Context(), clientIdentity(r), category)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
				httpserver.RenderError(w, errRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requireAdmin gates a route on the configured bearer token. An
// unconfigured token locks the routes rather than opening them.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || h.adminToken == "" {
			httpserver.RenderError(w, errBadCredentials)
			return
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(h.adminToken)) != 1 {
			httpserver.RenderError(w, errBadCredentials)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIdentity is the rate-limit key for the peer. RealIP has
// already rewritten RemoteAddr when the proxy is trusted.
func clientIdentity(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
