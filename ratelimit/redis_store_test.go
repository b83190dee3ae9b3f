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

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client), mr
}

func TestRedisStoreIncr(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	w, err := store.Incr(ctx, "login:10.0.0.1", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Count)

	w, err = store.Incr(ctx, "login:10.0.0.1", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 2, w.Count)

	// Distinct keys do not share counters.
	w, err = store.Incr(ctx, "login:10.0.0.2", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Count)
}

func TestRedisStoreWindowExpires(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Incr(ctx, "k", time.Minute, time.Now())
		require.NoError(t, err)
	}

	mr.FastForward(61 * time.Second)

	w, err := store.Incr(ctx, "k", time.Minute, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, w.Count, "expired window must restart from one")
}

func TestRedisStoreFailureSurfacesError(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Incr(context.Background(), "k", time.Minute, time.Now())
	assert.Error(t, err)
}

func TestLimiterOverRedisStore(t *testing.T) {
	store, _ := newRedisStore(t)
	limiter := newTestLimiter(t, store, Policy{
		CategoryLogin: {Limit: 2, Window: time.Minute},
	})

	ctx := context.Background()
	assert.True(t, limiter.Check(ctx, "c", CategoryLogin).Allowed)
	assert.True(t, limiter.Check(ctx, "c", CategoryLogin).Allowed)

	result := limiter.Check(ctx, "c", CategoryLogin)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}
