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

package token

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.tevex.dev/storefront/order"
)

// memStore is an in-memory Store whose ConsumeToken is a mutex
// guarded compare-and-set, mirroring the database's single-row
// atomic update.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]TrackingSession
	tokens   map[string]*OneTimeToken

	failAll bool
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]TrackingSession),
		tokens:   make(map[string]*OneTimeToken),
	}
}

func (m *memStore) CreateSession(_ context.Context, s TrackingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errors.New("store unavailable")
	}
	m.sessions[s.Token] = s
	return nil
}

func (m *memStore) GetSession(_ context.Context, tok string) (TrackingSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return TrackingSession{}, false, errors.New("store unavailable")
	}
	s, ok := m.sessions[tok]
	return s, ok, nil
}

func (m *memStore) CreateToken(_ context.Context, t OneTimeToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errors.New("store unavailable")
	}
	m.tokens[t.Token] = &t
	return nil
}

func (m *memStore) ConsumeToken(_ context.Context, tok string, kind Kind) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return "", false, errors.New("store unavailable")
	}
	t, ok := m.tokens[tok]
	if !ok || t.Kind != kind || t.Used {
		return "", false, nil
	}
	t.Used = true
	return t.OrderNumber, true, nil
}

// memOrders is a fixed in-memory order.Store.
type memOrders struct {
	orders  map[string]order.Order
	failAll bool
}

func (m *memOrders) Lookup(_ context.Context, number string) (order.Order, bool, error) {
	if m.failAll {
		return order.Order{}, false, errors.New("store unavailable")
	}
	o, ok := m.orders[number]
	return o, ok, nil
}

func (m *memOrders) Create(context.Context, *order.Order) error { return nil }

func (m *memOrders) Update(context.Context, string, order.Patch) (bool, error) {
	return false, nil
}

func (m *memOrders) LookupPromoCode(context.Context, string) (order.PromoCode, bool, error) {
	return order.PromoCode{}, false, nil
}

func newTestService(t *testing.T, tokens Store, orders order.Store, options ...Option) *Service {
	t.Helper()

	options = append(options, WithRegisterer(prometheus.NewRegistry()))
	return NewService(tokens, orders, options...)
}

func fixtureOrders() *memOrders {
	return &memOrders{orders: map[string]order.Order{
		"TVX-1001": {
			Number:        "TVX-1001",
			CustomerName:  "Ada Byron",
			CustomerEmail: "ada@example.com",
			CustomerPhone: "+1 (555) 123-4321",
			Status:        "shipped",
			TotalCents:    12900,
		},
	}}
}

func TestVerifyTrackingAccess(t *testing.T) {
	svc := newTestService(t, newMemStore(), fixtureOrders())
	ctx := context.Background()

	o, tok, err := svc.VerifyTrackingAccess(ctx, "TVX-1001", "4321")
	require.NoError(t, err)
	assert.Equal(t, "TVX-1001", o.Number)
	assert.Len(t, tok, 64)

	// Two sessions for the same order are distinct credentials.
	_, tok2, err := svc.VerifyTrackingAccess(ctx, "TVX-1001", "4321")
	require.NoError(t, err)
	assert.NotEqual(t, tok, tok2)
}

func TestVerifyTrackingAccessRejectionsAreIndistinguishable(t *testing.T) {
	svc := newTestService(t, newMemStore(), fixtureOrders())
	ctx := context.Background()

	_, _, errWrongDigits := svc.VerifyTrackingAccess(ctx, "TVX-1001", "0000")
	_, _, errUnknownOrder := svc.VerifyTrackingAccess(ctx, "TVX-9999", "4321")

	require.Error(t, errWrongDigits)
	require.Error(t, errUnknownOrder)
	assert.ErrorIs(t, errWrongDigits, ErrVerificationFailed)
	assert.ErrorIs(t, errUnknownOrder, ErrVerificationFailed)
	assert.Equal(t, errWrongDigits.Error(), errUnknownOrder.Error())
}

func TestVerifyTrackingAccessFailsClosedOnStorageFault(t *testing.T) {
	orders := fixtureOrders()
	orders.failAll = true

	svc := newTestService(t, newMemStore(), orders)

	_, _, err := svc.VerifyTrackingAccess(context.Background(), "TVX-1001", "4321")
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestValidateTrackingSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	store := newMemStore()
	svc := newTestService(t, store, fixtureOrders(), WithClock(clock))
	ctx := context.Background()

	_, tok, err := svc.VerifyTrackingAccess(ctx, "TVX-1001", "4321")
	require.NoError(t, err)

	// The session is multi-use within its lifetime.
	for i := 0; i < 3; i++ {
		o, err := svc.ValidateTrackingSession(ctx, tok, "TVX-1001")
		require.NoError(t, err)
		assert.Equal(t, "TVX-1001", o.Number)
	}

	// Structurally valid token, wrong order.
	_, err = svc.ValidateTrackingSession(ctx, tok, "TVX-2002")
	assert.ErrorIs(t, err, ErrSessionInvalid)

	// Unknown token.
	_, err = svc.ValidateTrackingSession(ctx, "deadbeef", "TVX-1001")
	assert.ErrorIs(t, err, ErrSessionInvalid)

	// Expiry: one second past the TTL the session is dead, and it
	// is not deleted, just rejected.
	mu.Lock()
	now = now.Add(SessionTTL + time.Second)
	mu.Unlock()

	_, err = svc.ValidateTrackingSession(ctx, tok, "TVX-1001")
	assert.ErrorIs(t, err, ErrSessionInvalid)

	_, found, getErr := store.GetSession(ctx, tok)
	require.NoError(t, getErr)
	assert.True(t, found)
}

func TestIssueDownloadTokenRequiresSession(t *testing.T) {
	svc := newTestService(t, newMemStore(), fixtureOrders())
	ctx := context.Background()

	_, err := svc.IssueDownloadToken(ctx, "not-a-session", "TVX-1001", KindInvoice)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	_, sessionTok, err := svc.VerifyTrackingAccess(ctx, "TVX-1001", "4321")
	require.NoError(t, err)

	tokA, err := svc.IssueDownloadToken(ctx, sessionTok, "TVX-1001", KindInvoice)
	require.NoError(t, err)

	// Issuing twice yields two distinct tokens.
	tokB, err := svc.IssueDownloadToken(ctx, sessionTok, "TVX-1001", KindInvoice)
	require.NoError(t, err)
	assert.NotEqual(t, tokA, tokB)

	// Confirmation tokens cannot be minted through a session.
	_, err = svc.IssueDownloadToken(ctx, sessionTok, "TVX-1001", KindConfirmation)
	assert.Error(t, err)
}

func TestConsumeIsSingleUse(t *testing.T) {
	svc := newTestService(t, newMemStore(), fixtureOrders())
	ctx := context.Background()

	_, sessionTok, err := svc.VerifyTrackingAccess(ctx, "TVX-1001", "4321")
	require.NoError(t, err)

	tok, err := svc.IssueDownloadToken(ctx, sessionTok, "TVX-1001", KindInvoice)
	require.NoError(t, err)

	o, err := svc.Consume(ctx, tok, KindInvoice)
	require.NoError(t, err)
	assert.Equal(t, "TVX-1001", o.Number)

	// Second use, unknown token, and wrong kind all reject the
	// same way.
	_, errUsed := svc.Consume(ctx, tok, KindInvoice)
	_, errUnknown := svc.Consume(ctx, "deadbeef", KindInvoice)

	assert.ErrorIs(t, errUsed, ErrTokenInvalid)
	assert.ErrorIs(t, errUnknown, ErrTokenInvalid)
	assert.Equal(t, errUsed.Error(), errUnknown.Error())

	tok2, err := svc.IssueDownloadToken(ctx, sessionTok, "TVX-1001", KindReceipt)
	require.NoError(t, err)
	_, err = svc.Consume(ctx, tok2, KindInvoice)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestConsumeConcurrentHasExactlyOneWinner(t *testing.T) {
	const attempts = 50

	svc := newTestService(t, newMemStore(), fixtureOrders())
	ctx := context.Background()

	tok, err := svc.IssueConfirmationToken(ctx, "TVX-1001")
	require.NoError(t, err)

	var (
		wins   atomic.Int64
		losses atomic.Int64
		wg     sync.WaitGroup
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Consume(ctx, tok, KindConfirmation); err == nil {
				wins.Add(1)
			} else {
				losses.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
	assert.Equal(t, int64(attempts-1), losses.Load())
}

func TestConsumeFailsClosedOnStorageFault(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, fixtureOrders())
	ctx := context.Background()

	tok, err := svc.IssueConfirmationToken(ctx, "TVX-1001")
	require.NoError(t, err)

	store.mu.Lock()
	store.failAll = true
	store.mu.Unlock()

	_, err = svc.Consume(ctx, tok, KindConfirmation)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestGenerate(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
