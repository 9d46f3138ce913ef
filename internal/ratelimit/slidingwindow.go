package ratelimit

import "time"

// checkSlidingWindow implements the sliding-window-log algorithm: a
// time-ordered log of request timestamps within the window. Entries older
// than now-window are dropped, then admission is allowed iff the
// remaining count is under the limit. The log is truncated at burst
// entries to bound memory.
func (l *Limiter) checkSlidingWindow(key string) Decision {
	now := time.Now()
	cutoff := now.Add(-l.window)
	var decision Decision

	l.buckets.withLock(key, func(v *bucketState, ok bool) *bucketState {
		if !ok {
			v = &bucketState{}
		}

		live := v.log[:0]
		for _, ts := range v.log {
			if ts.After(cutoff) {
				live = append(live, ts)
			}
		}
		v.log = live

		if len(v.log) < l.burst {
			v.log = append(v.log, now)
			decision = Decision{Admit: true, Remaining: l.burst - len(v.log)}
		} else {
			oldest := v.log[0]
			decision = Decision{Admit: false, RetryAfter: oldest.Add(l.window).Sub(now)}
		}

		if len(v.log) > l.burst {
			v.log = v.log[len(v.log)-l.burst:]
		}
		return v
	})

	return decision
}
