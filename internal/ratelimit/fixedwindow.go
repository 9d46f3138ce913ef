package ratelimit

import "time"

// checkFixedWindow implements the fixed-window algorithm: one counter per
// window, reset to {window_start: now, count: 1} once the window has
// elapsed, otherwise incremented and compared against the limit.
func (l *Limiter) checkFixedWindow(key string) Decision {
	now := time.Now()
	var decision Decision

	l.buckets.withLock(key, func(v *bucketState, ok bool) *bucketState {
		if !ok || now.Sub(v.windowStart) >= l.window {
			v = &bucketState{windowStart: now, count: 0}
		}

		if v.count < l.burst {
			v.count++
			decision = Decision{Admit: true, Remaining: l.burst - v.count}
		} else {
			decision = Decision{Admit: false, RetryAfter: l.window - now.Sub(v.windowStart)}
		}
		return v
	})

	return decision
}
