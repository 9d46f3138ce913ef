// Package ratelimit admits or rejects requests under one of three
// admission algorithms, each keyed by (routeID, client key) in a sharded
// concurrent map.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/wudi/kairos/internal/gwerrors"
	"github.com/wudi/kairos/internal/middleware"
	"github.com/wudi/kairos/internal/middleware/realip"
)

// Algorithm is the closed set of admission strategies a Limiter can run.
type Algorithm string

const (
	FixedWindow   Algorithm = "fixed_window"
	SlidingWindow Algorithm = "sliding_window"
	TokenBucket   Algorithm = "token_bucket"
)

// Config configures a single Limiter, built from a route's rate_limit
// block (or the gateway-wide default).
type Config struct {
	Algorithm         Algorithm
	RequestsPerSecond int
	BurstSize         int
	Window            time.Duration
}

// Decision is the outcome of a single admission check.
type Decision struct {
	Admit      bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects requests for one route under one algorithm,
// dispatching to the algorithm's check at the call site.
type Limiter struct {
	algorithm Algorithm
	rate      float64 // tokens or requests per second
	burst     int
	window    time.Duration
	buckets   *shardedMap[*bucketState]
}

// bucketState holds the mutable admission state for one key, shaped to
// serve whichever algorithm the owning Limiter runs.
type bucketState struct {
	// token_bucket
	tokens     float64
	lastRefill time.Time

	// fixed_window
	windowStart time.Time
	count       int

	// sliding_window: time-ordered log of admitted request timestamps
	// within the window, truncated at burst entries.
	log []time.Time
}

// NewLimiter creates a Limiter for the given algorithm and limits.
func NewLimiter(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = cfg.RequestsPerSecond
	}
	return &Limiter{
		algorithm: cfg.Algorithm,
		rate:      float64(cfg.RequestsPerSecond),
		burst:     cfg.BurstSize,
		window:    cfg.Window,
		buckets:   newShardedMap[*bucketState](),
	}
}

// Check runs the admission algorithm for key and returns the decision.
func (l *Limiter) Check(key string) Decision {
	switch l.algorithm {
	case FixedWindow:
		return l.checkFixedWindow(key)
	case SlidingWindow:
		return l.checkSlidingWindow(key)
	default:
		return l.checkTokenBucket(key)
	}
}

func (l *Limiter) checkTokenBucket(key string) Decision {
	now := time.Now()
	var decision Decision

	l.buckets.withLock(key, func(v *bucketState, ok bool) *bucketState {
		if !ok {
			v = &bucketState{tokens: float64(l.burst), lastRefill: now}
		}

		elapsed := now.Sub(v.lastRefill).Seconds()
		v.tokens += elapsed * l.rate
		if v.tokens > float64(l.burst) {
			v.tokens = float64(l.burst)
		}
		v.lastRefill = now

		if v.tokens >= 1 {
			v.tokens--
			decision = Decision{Admit: true, Remaining: int(v.tokens)}
		} else {
			wait := time.Duration((1 - v.tokens) / l.rate * float64(time.Second))
			decision = Decision{Admit: false, RetryAfter: wait}
		}
		return v
	})

	return decision
}

// Middleware wraps a handler, admitting requests per Check and writing a
// RateLimited response for rejections. key is client IP unless a selector
// is configured; Kairos has none configured, so it is always the client IP.
func (l *Limiter) Middleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := l.Check(clientKey(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.burst))
			if decision.Admit {
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := int(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			gwerrors.ErrRateLimited.WithRequestID(middleware.GetRequestID(r)).WriteJSON(w)
		})
	}
}

// clientKey returns the rate-limit key for r: the client IP, preferring the
// value the real-IP middleware already resolved.
func clientKey(r *http.Request) string {
	if ip := realip.FromContext(r.Context()); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Registry tracks one Limiter per route, swept when routes are removed on
// config reload.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewRegistry creates an empty rate-limit registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*Limiter)}
}

// Set installs or replaces the Limiter for routeID.
func (reg *Registry) Set(routeID string, cfg Config) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.limiters[routeID] = NewLimiter(cfg)
}

// Get returns the Limiter for routeID, or nil if the route has no limit.
func (reg *Registry) Get(routeID string) *Limiter {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.limiters[routeID]
}

// Sweep deletes limiters for routes no longer present in liveRouteIDs.
func (reg *Registry) Sweep(liveRouteIDs map[string]bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for routeID := range reg.limiters {
		if !liveRouteIDs[routeID] {
			delete(reg.limiters, routeID)
		}
	}
}
