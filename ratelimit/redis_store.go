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
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type (
	// RedisStore backs the limiter with Redis, for deployments
	// running more than one process. The counter is a plain INCR
	// whose TTL bounds the window; Redis expiry makes the reset
	// atomic across processes.
	RedisStore struct {
		client redis.UniversalClient
		prefix string
	}
)

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store over an existing Redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "ratelimit:",
	}
}

// Incr implements Store. INCR is atomic server side; the TTL is set
// when the key is created, so the window start is recoverable from
// the remaining TTL.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration, now time.Time) (Window, error) {
	k := s.prefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return Window{}, fmt.Errorf("cannot increment rate counter: %w", err)
	}

	count := int(incr.Val())
	ttl := pttl.Val()

	// A fresh key (count 1) or a key that lost its TTL gets the
	// full window.
	if count == 1 || ttl < 0 {
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return Window{}, fmt.Errorf("cannot set rate counter expiry: %w", err)
		}
		ttl = window
	}

	start := now.Add(ttl).Add(-window)

	return Window{Count: count, Start: start}, nil
}
