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
	"hash/fnv"
	"sync"
	"time"
)

type (
	// Window is the state of one fixed counter window.
	Window struct {
		// Count is the number of requests recorded in the window,
		// including the one just added.
		Count int

		// Start is when the window opened.
		Start time.Time
	}

	// Store holds the counter windows. Incr must be atomic per
	// key: concurrent calls may overcount by one under contention
	// but must never undercount.
	Store interface {
		// Incr records one request for key. If no window is open,
		// or the open window is older than window, a fresh window
		// starts at now with count 1.
		Incr(ctx context.Context, key string, window time.Duration, now time.Time) (Window, error)
	}

	// Cleaner is implemented by stores that accumulate dead
	// windows and need periodic housekeeping.
	Cleaner interface {
		Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
	}

	// MemoryStore is the in-process default Store. State is
	// sharded so unrelated clients never contend on one lock, and
	// resets on restart.
	MemoryStore struct {
		shards [shardCount]memoryShard
	}

	memoryShard struct {
		mu      sync.Mutex
		windows map[string]*memoryWindow
	}

	memoryWindow struct {
		count int
		start time.Time
	}
)

const shardCount = 64

var _ Store = (*MemoryStore)(nil)
var _ Cleaner = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i].windows = make(map[string]*memoryWindow)
	}

	return s
}

// Incr implements Store. The whole read-check-increment runs under
// the shard lock, so counts are exact per key.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration, now time.Time) (Window, error) {
	sh := s.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[key]
	if !ok || now.Sub(w.start) >= window {
		w = &memoryWindow{count: 1, start: now}
		sh.windows[key] = w
		return Window{Count: 1, Start: now}, nil
	}

	w.count++

	return Window{Count: w.count, Start: w.start}, nil
}

// Cleanup removes windows whose start is older than olderThan,
// bounding memory for long running processes. Correctness does not
// depend on it: Incr resets stale windows lazily.
func (s *MemoryStore) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	var removed int64
	for i := range s.shards {
		sh := &s.shards[i]

		sh.mu.Lock()
		for key, w := range sh.windows {
			if w.start.Before(cutoff) {
				delete(sh.windows, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	return removed, nil
}

func (s *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))

	return &s.shards[h.Sum32()%shardCount]
}
