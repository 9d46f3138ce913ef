// Package retry wraps a single forwarding attempt with backoff and
// retry-on-transient-failure, pulling a (possibly different) backend from
// the load balancer on each attempt and gating dispatch through that
// backend's circuit breaker.
package retry

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wudi/kairos/internal/circuitbreaker"
	"github.com/wudi/kairos/internal/config"
	"github.com/wudi/kairos/internal/gwerrors"
	"github.com/wudi/kairos/internal/loadbalancer"
)

// DefaultRetryableStatuses are upstream status codes treated as transient.
var DefaultRetryableStatuses = []int{502, 503, 504}

// Policy is a route's retry/backoff configuration.
type Policy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	Multiplier        float64
	RetryableStatuses map[int]bool
}

// NewPolicy builds a Policy from a route's config, applying defaults for
// zero-valued fields per §4.1's validation bounds.
func NewPolicy(cfg config.RetryConfig) *Policy {
	p := &Policy{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: time.Duration(cfg.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.MaxBackoffMS) * time.Millisecond,
		Multiplier:     cfg.Multiplier,
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 100 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 10 * time.Second
	}
	if p.Multiplier <= 1.0 {
		p.Multiplier = 2.0
	}

	statuses := cfg.RetryableStatuses
	if len(statuses) == 0 {
		statuses = DefaultRetryableStatuses
	}
	p.RetryableStatuses = make(map[int]bool, len(statuses))
	for _, s := range statuses {
		p.RetryableStatuses[s] = true
	}
	return p
}

// newBackOff builds a per-Execute exponential backoff sequence from the
// policy's bounds. Randomization is disabled: attempt N always waits the
// same computed interval, matching the spec's deterministic formula.
func (p *Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// IsRetryable reports whether a dispatch outcome should be retried: any
// transport-level error is retryable; otherwise the outcome is retryable
// only if the status code is in the route's retryable set.
func (p *Policy) IsRetryable(statusCode int, err error) bool {
	if err != nil {
		return true
	}
	return p.RetryableStatuses[statusCode]
}

// Dispatch performs one forward attempt against backend.
type Dispatch func(ctx context.Context, backend *loadbalancer.Backend) (*http.Response, error)

// BreakerFor resolves the circuit breaker guarding dispatch to one backend.
type BreakerFor func(backendURL string) *circuitbreaker.Breaker

// Execute runs dispatch with retry per §4.8: ask the balancer for a
// backend, gate the call through its breaker, dispatch. A transport
// error, timeout, or retryable status reports failure to the breaker and,
// if attempts remain, sleeps the backoff interval before trying again.
// Total attempts are capped at MaxRetries+1.
//
// Select excludes any backend the balancer was told is Unhealthy, which
// Execute itself maintains from each call's resulting breaker state
// (markFromOutcome) — the balancer never consults the breaker registry
// directly. If every backend is currently excluded this way, Execute
// falls back to the one nearest its open-duration expiry (selectByEarliestExpiry),
// so a backend that may now be eligible for a half-open probe still gets
// tried instead of failing the request outright.
func (p *Policy) Execute(ctx context.Context, bal loadbalancer.Balancer, breakerFor BreakerFor, clientIP string, dispatch Dispatch) (*http.Response, error) {
	bo := p.newBackOff()
	maxAttempts := p.MaxRetries + 1

	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		backend := bal.Select(clientIP)
		if backend == nil {
			backend = selectByEarliestExpiry(bal, breakerFor)
		}
		if backend == nil {
			return nil, gwerrors.ErrUpstreamConnectionError.Wrap(errNoHealthyBackend)
		}

		breaker := breakerFor(backend.URL)
		resp, err := breaker.Call(
			func() (*http.Response, error) { return dispatch(ctx, backend) },
			func(r *http.Response, e error) bool { return p.IsRetryable(statusOf(r), e) },
		)
		markFromOutcome(bal, backend.URL, breaker, err)

		if err == nil {
			return resp, nil
		}

		lastResp, lastErr = resp, err
		if attempt == maxAttempts-1 {
			break
		}

		wait := bo.NextBackOff()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	if lastResp != nil {
		return lastResp, nil
	}
	return nil, lastErr
}

// markFromOutcome reflects a breaker's post-call state back onto the
// balancer: Open excludes the backend from Select, and a successful call
// readmits it. A failed call that leaves the breaker short of Open does
// not change the mark.
func markFromOutcome(bal loadbalancer.Balancer, backendURL string, breaker *circuitbreaker.Breaker, callErr error) {
	if breaker.State() == circuitbreaker.StateOpen {
		bal.MarkUnhealthy(backendURL)
		return
	}
	if callErr == nil {
		bal.MarkHealthy(backendURL)
	}
}

// selectByEarliestExpiry is the fallback when Select reports every backend
// excluded: it picks the live backend whose breaker is closest to (or
// past) its open-duration expiry, so the next half-open probe is attempted
// against the soonest-eligible backend rather than failing the request.
// Returns nil if the route has no backends at all.
func selectByEarliestExpiry(bal loadbalancer.Balancer, breakerFor BreakerFor) *loadbalancer.Backend {
	var best *loadbalancer.Backend
	var bestExpiry time.Time

	for _, backend := range bal.LiveBackends() {
		expiry := breakerFor(backend.URL).OpenExpiry()
		if best == nil || expiry.Before(bestExpiry) {
			best = backend
			bestExpiry = expiry
		}
	}
	return best
}

func statusOf(r *http.Response) int {
	if r == nil {
		return 0
	}
	return r.StatusCode
}

var errNoHealthyBackend = noHealthyBackendError{}

type noHealthyBackendError struct{}

func (noHealthyBackendError) Error() string { return "retry: no healthy backend available" }
