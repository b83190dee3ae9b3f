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
	"time"

	"go.tevex.dev/storefront/log"
)

// StartCleanup starts a background goroutine that periodically asks
// the store to drop expired windows, when the store supports it. The
// goroutine stops when the provided context is cancelled.
func (l *Limiter) StartCleanup(ctx context.Context, interval time.Duration) {
	cleaner, ok := l.store.(Cleaner)
	if !ok {
		return
	}

	go l.runCleanupLoop(ctx, cleaner, interval)
}

func (l *Limiter) runCleanupLoop(ctx context.Context, cleaner Cleaner, interval time.Duration) {
	l.logger.InfoCtx(ctx, "starting rate limit cleanup loop",
		log.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.InfoCtx(ctx, "stopping rate limit cleanup loop")
			return
		case <-ticker.C:
			// Windows older than twice the longest policy window
			// cannot influence any further check.
			olderThan := interval
			for _, rate := range l.policy {
				if rate.Window*2 > olderThan {
					olderThan = rate.Window * 2
				}
			}

			removed, err := cleaner.Cleanup(ctx, olderThan)
			if err != nil {
				l.logger.ErrorCtx(ctx, "rate limit cleanup failed", log.Error(err))
				continue
			}

			l.logger.DebugCtx(ctx, "rate limit cleanup completed",
				log.Int64("windows_removed", removed),
			)
		}
	}
}
