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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.tevex.dev/storefront/order"
	"go.tevex.dev/storefront/ratelimit"
	"go.tevex.dev/storefront/token"
)

type (
	memOrders struct {
		mu     sync.Mutex
		orders map[string]order.Order
		promos map[string]order.PromoCode
		nextID int
	}

	memTokens struct {
		mu       sync.Mutex
		sessions map[string]token.TrackingSession
		tokens   map[string]token.OneTimeToken
	}

	fakeRenderer struct {
		pdf []byte
		err error
	}
)

func newMemOrders() *memOrders {
	return &memOrders{
		orders: map[string]order.Order{},
		promos: map[string]order.PromoCode{},
		nextID: 1000,
	}
}

func (m *memOrders) Lookup(_ context.Context, number string) (order.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, found := m.orders[number]
	return o, found, nil
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	o.Number = fmt.Sprintf("TVX-%d", m.nextID)
	o.CreatedAt = time.Now()
	m.orders[o.Number] = *o

	return nil
}

func (m *memOrders) Update(_ context.Context, number string, patch order.Patch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, found := m.orders[number]
	if !found {
		return false, nil
	}

	if patch.Status != nil {
		o.Status = *patch.Status
	}
	if patch.TotalCents != nil {
		o.TotalCents = *patch.TotalCents
	}
	m.orders[number] = o

	return true, nil
}

func (m *memOrders) LookupPromoCode(_ context.Context, code string) (order.PromoCode, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, found := m.promos[code]
	return p, found, nil
}

func newMemTokens() *memTokens {
	return &memTokens{
		sessions: map[string]token.TrackingSession{},
		tokens:   map[string]token.OneTimeToken{},
	}
}

func (m *memTokens) CreateSession(_ context.Context, s token.TrackingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.Token] = s
	return nil
}

func (m *memTokens) GetSession(_ context.Context, tok string) (token.TrackingSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, found := m.sessions[tok]
	return s, found, nil
}

func (m *memTokens) CreateToken(_ context.Context, t token.OneTimeToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[t.Token] = t
	return nil
}

func (m *memTokens) ConsumeToken(_ context.Context, tok string, kind token.Kind) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, found := m.tokens[tok]
	if !found || t.Used || t.Kind != kind {
		return "", false, nil
	}

	t.Used = true
	m.tokens[tok] = t

	return t.OrderNumber, true, nil
}

func (f *fakeRenderer) RenderReceipt(context.Context, order.Order) ([]byte, error) {
	return f.pdf, f.err
}

type testEnv struct {
	handler *Handler
	orders  *memOrders
	server  *httptest.Server
}

func newTestEnv(t *testing.T, options ...Option) *testEnv {
	t.Helper()

	orders := newMemOrders()
	orders.orders["TVX-1001"] = order.Order{
		Number:        "TVX-1001",
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.com",
		CustomerPhone: "+1 (555) 123-4321",
		Status:        "paid",
		TotalCents:    12900,
		CreatedAt:     time.Now(),
	}
	orders.promos["SUMMER10"] = order.PromoCode{Code: "SUMMER10", PercentOff: 10, Active: true}

	tokens := token.NewService(
		newMemTokens(),
		orders,
		token.WithRegisterer(prometheus.NewRegistry()),
	)

	limiter := ratelimit.NewLimiter(
		ratelimit.NewMemoryStore(),
		ratelimit.DefaultPolicy(),
		ratelimit.WithRegisterer(prometheus.NewRegistry()),
	)

	opts := append([]Option{
		WithAllowedOrigins([]string{"https://shop.tevex.dev"}),
		WithAdminToken("test-admin-token"),
	}, options...)

	handler := NewHandler(orders, tokens, limiter, &fakeRenderer{pdf: []byte("%PDF-1.7 receipt")}, opts...)

	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)

	return &testEnv{handler: handler, orders: orders, server: server}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any, cookie *http.Cookie) *http.Response {
	t.Helper()

	blob, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, bytes.NewReader(blob))
	require.NoError(t, err)
	req.Header.Set("content-type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	defer resp.Body.Close()
	blob, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(blob)
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()

	for _, c := range resp.Cookies() {
		if c.Name == "tracking_session" {
			return c
		}
	}

	t.Fatal("no tracking_session cookie set")
	return nil
}

func TestVerifyTrackingFlow(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/verify-tracking", map[string]string{
		"order_number":     "TVX-1001",
		"last_four_digits": "4321",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookie := sessionCookie(t, resp)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, 1800, cookie.MaxAge)
	assert.Len(t, cookie.Value, 64)

	var verified verifyTrackingResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&verified))
	resp.Body.Close()

	assert.Equal(t, "TVX-1001", verified.Order.Number)
	// The body carries the session for clients that pass it
	// explicitly; it matches the cookie.
	assert.Equal(t, cookie.Value, verified.SessionToken)
	// The phone number must never serialize.
	assert.Empty(t, verified.Order.CustomerPhone)

	// The session is multi-use.
	for range 3 {
		req, err := http.NewRequest(http.MethodGet, env.server.URL+"/get-order?order_number=TVX-1001", nil)
		require.NoError(t, err)
		req.AddCookie(cookie)

		getResp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, getResp.StatusCode)
		getResp.Body.Close()
	}

	// Cookieless clients can present the session as a query
	// parameter instead.
	explicit, err := http.Get(env.server.URL + "/get-order?order_number=TVX-1001&session_token=" + verified.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, explicit.StatusCode)
	assert.Contains(t, readBody(t, explicit), `"TVX-1001"`)
}

func TestVerifyTrackingRejectionsAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)

	wrongDigits := env.postJSON(t, "/verify-tracking", map[string]string{
		"order_number":     "TVX-1001",
		"last_four_digits": "0000",
	}, nil)
	unknownOrder := env.postJSON(t, "/verify-tracking", map[string]string{
		"order_number":     "TVX-9999",
		"last_four_digits": "4321",
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, wrongDigits.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, unknownOrder.StatusCode)
	assert.Equal(t, readBody(t, wrongDigits), readBody(t, unknownOrder))
	assert.Empty(t, wrongDigits.Cookies())
}

func TestGetOrderWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/get-order?order_number=TVX-1001")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "unauthorized")
}

func TestDownloadTokenSingleUse(t *testing.T) {
	env := newTestEnv(t)

	verify := env.postJSON(t, "/verify-tracking", map[string]string{
		"order_number":     "TVX-1001",
		"last_four_digits": "4321",
	}, nil)
	require.Equal(t, http.StatusOK, verify.StatusCode)
	cookie := sessionCookie(t, verify)
	verify.Body.Close()

	issue := env.postJSON(t, "/generate-invoice-token", map[string]string{
		"order_number": "TVX-1001",
	}, cookie)
	require.Equal(t, http.StatusCreated, issue.StatusCode)

	var issued tokenResponse
	require.NoError(t, json.NewDecoder(issue.Body).Decode(&issued))
	issue.Body.Close()
	require.Len(t, issued.Token, 64)

	first, err := http.Get(env.server.URL + "/invoice/" + issued.Token)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Contains(t, readBody(t, first), `"TVX-1001"`)

	// Second consumption, a wrong-kind attempt, and a made-up token
	// must all produce the same 404.
	second, err := http.Get(env.server.URL + "/invoice/" + issued.Token)
	require.NoError(t, err)
	bogus, err := http.Get(env.server.URL + "/invoice/" + strings.Repeat("ab", 32))
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, second.StatusCode)
	assert.Equal(t, http.StatusNotFound, bogus.StatusCode)
	assert.Equal(t, readBody(t, second), readBody(t, bogus))
}

func TestDownloadTokenRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/generate-invoice-token", map[string]string{
		"order_number": "TVX-1001",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestReceiptRendersPDF(t *testing.T) {
	env := newTestEnv(t)

	verify := env.postJSON(t, "/verify-tracking", map[string]string{
		"order_number":     "TVX-1001",
		"last_four_digits": "4321",
	}, nil)
	require.Equal(t, http.StatusOK, verify.StatusCode)
	cookie := sessionCookie(t, verify)
	verify.Body.Close()

	issue := env.postJSON(t, "/generate-receipt-token", map[string]string{
		"order_number": "TVX-1001",
	}, cookie)
	require.Equal(t, http.StatusCreated, issue.StatusCode)

	var issued tokenResponse
	require.NoError(t, json.NewDecoder(issue.Body).Decode(&issued))
	issue.Body.Close()

	resp, err := http.Get(env.server.URL + "/receipt/" + issued.Token)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("content-type"))
	assert.Equal(t, "%PDF-1.7 receipt", readBody(t, resp))
}

func TestReceiptRenderFailureBurnsToken(t *testing.T) {
	env := newTestEnv(t)

	verify := env.postJSON(t, "/verify-tracking", map[string]string{
		"order_number":     "TVX-1001",
		"last_four_digits": "4321",
	}, nil)
	require.Equal(t, http.StatusOK, verify.StatusCode)
	cookie := sessionCookie(t, verify)
	verify.Body.Close()

	issue := env.postJSON(t, "/generate-receipt-token", map[string]string{
		"order_number": "TVX-1001",
	}, cookie)
	require.Equal(t, http.StatusCreated, issue.StatusCode)

	var issued tokenResponse
	require.NoError(t, json.NewDecoder(issue.Body).Decode(&issued))
	issue.Body.Close()

	env.handler.renderer = &fakeRenderer{err: errors.New("render backend down")}

	resp, err := http.Get(env.server.URL + "/receipt/" + issued.Token)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "internal_error")

	// Delivery is gated on the consume, so the failed render has
	// spent the token; a retry needs a fresh one.
	again, err := http.Get(env.server.URL + "/receipt/" + issued.Token)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
	again.Body.Close()
}

func TestCreateOrderMintsConfirmationToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/orders", map[string]any{
		"customer_name":  "Grace Hopper",
		"customer_email": "Grace@Example.com",
		"customer_phone": "555-987-6543",
		"total_cents":    4500,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created createOrderResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	assert.True(t, strings.HasPrefix(created.Order.Number, "TVX-"))
	assert.Equal(t, "grace@example.com", created.Order.CustomerEmail)
	require.Len(t, created.ConfirmationToken, 64)

	confirm, err := http.Get(env.server.URL + "/confirmation/" + created.ConfirmationToken)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, confirm.StatusCode)
	assert.Contains(t, readBody(t, confirm), created.Order.Number)

	again, err := http.Get(env.server.URL + "/confirmation/" + created.ConfirmationToken)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
	again.Body.Close()
}

func TestCalculatePriceAppliesPromo(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/calculate-price", map[string]any{
		"total_cents": 10000,
		"promo_code":  "summer10",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))

	var price priceResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&price))
	resp.Body.Close()

	assert.Equal(t, int64(9000), price.TotalCents)
	assert.Equal(t, 10, price.DiscountPercent)

	bad := env.postJSON(t, "/calculate-price", map[string]any{
		"total_cents": 10000,
		"promo_code":  "NOPE",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	bad.Body.Close()
}

func TestRateLimitDeniesWithHeaders(t *testing.T) {
	env := newTestEnv(t)

	var last *http.Response
	for range 11 {
		if last != nil {
			last.Body.Close()
		}

		last = env.postJSON(t, "/verify-tracking", map[string]string{
			"order_number":     "TVX-1001",
			"last_four_digits": "0000",
		}, nil)
	}

	// Login category allows 10 per window; the 11th is denied even
	// though every attempt failed verification.
	assert.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	assert.Equal(t, "10", last.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", last.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, last.Header.Get("X-RateLimit-Reset"))
	assert.NotEmpty(t, last.Header.Get("Retry-After"))
	assert.Contains(t, readBody(t, last), "rate_limited")
}

func TestAdminUpdateOrder(t *testing.T) {
	env := newTestEnv(t)

	patch := func(number, bearer string) *http.Response {
		blob, err := json.Marshal(map[string]any{"status": "shipped"})
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodPatch, env.server.URL+"/admin/orders/"+number, bytes.NewReader(blob))
		require.NoError(t, err)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	missing := patch("TVX-1001", "")
	wrong := patch("TVX-1001", "wrong-token")
	assert.Equal(t, http.StatusUnauthorized, missing.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, wrong.StatusCode)
	assert.Equal(t, readBody(t, missing), readBody(t, wrong))

	ok := patch("TVX-1001", "test-admin-token")
	require.Equal(t, http.StatusOK, ok.StatusCode)
	assert.Contains(t, readBody(t, ok), `"shipped"`)

	gone := patch("TVX-9999", "test-admin-token")
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
	gone.Body.Close()
}

func TestCORSAllowList(t *testing.T) {
	env := newTestEnv(t)

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/verify-tracking", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", "POST")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	allowed := preflight("https://shop.tevex.dev")
	assert.Equal(t, "https://shop.tevex.dev", allowed.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", allowed.Header.Get("Access-Control-Allow-Credentials"))

	denied := preflight("https://evil.example.com")
	assert.Empty(t, denied.Header.Get("Access-Control-Allow-Origin"))
}

func TestBodyLimitOnVerifyTracking(t *testing.T) {
	env := newTestEnv(t)

	// 1 KiB ceiling on the login routes; this payload is past it.
	huge := fmt.Sprintf(`{"order_number":"TVX-1001","last_four_digits":"4321","padding":%q}`, strings.Repeat("x", 2048))

	resp, err := http.Post(env.server.URL+"/verify-tracking", "application/json", strings.NewReader(huge))
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "payload_too_large")
}

func TestMalformedJSONWithinLimitIsBadRequest(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.server.URL+"/verify-tracking", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "bad_request")
}
