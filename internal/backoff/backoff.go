// Package backoff holds the delay helpers shared by reconnect and retry loops.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Next doubles cur, capped at max.
func Next(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		return max
	}
	return cur
}

// Jitter spreads d by +/-20%.
func Jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	j := d / 5
	if j <= 0 {
		return d
	}
	return d - j + time.Duration(rand.Int63n(int64(j*2)+1))
}

// Sleep waits for d or until ctx ends, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
