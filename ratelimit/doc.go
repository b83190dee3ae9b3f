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

// Package ratelimit provides a fixed window request limiter keyed by
// client identity and route category.
//
// # Algorithm
//
// Each (identity, category) pair owns a counter window. The first
// request opens the window with count 1; subsequent requests
// increment it. Once the count exceeds the category limit the request
// is denied, and the increment is kept: a denied attempt still counts
// against the client. When the window age reaches the category's
// window duration, the next check resets it atomically.
//
// Increments are race free per key. Under contention the count may
// overshoot by one, never undershoot; undercounting would defeat the
// control.
//
// # Stores
//
// The counter state lives behind the Store interface:
//
//   - MemoryStore: sharded in-process map, the single-process
//     default. Counters reset on restart, which merely grants a fresh
//     quota window.
//   - RedisStore: atomic INCR with a window TTL, for horizontal
//     deployments.
//   - PGStore: UNLOGGED PostgreSQL table updated with a single
//     INSERT ... ON CONFLICT round-trip, clock-aligned windows.
//
// # Failure policy
//
// A store failure fails closed (deny) for the login and admin
// categories and open (allow) for public routes, so that a storage
// outage does not amplify into a full denial of service while
// brute-force sensitive paths stay protected.
//
// # Usage
//
//	limiter := ratelimit.NewLimiter(
//	    ratelimit.NewMemoryStore(),
//	    ratelimit.DefaultPolicy(),
//	    ratelimit.WithLogger(logger),
//	)
//
//	result := limiter.Check(ctx, clientIP, ratelimit.CategoryLogin)
//	if !result.Allowed {
//	    w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
//	    w.WriteHeader(http.StatusTooManyRequests)
//	    return
//	}
package ratelimit
