// Package circuitbreaker gates dispatch per (route, backend) pair using
// sony/gobreaker's generic state machine, wrapped to fit the gateway's
// retry-driver flow: a failure is any transport error, timeout, or
// retryable status, classified by the caller and reported back through
// the closure's return error.
package circuitbreaker

import (
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// State mirrors gobreaker's three states under the gateway's own naming.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

func fromGobreakerState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// ErrOpen is returned by Call when the breaker is Open and the dispatch
// closure was never invoked. A HalfOpen breaker with its probe already in
// flight rejects with gobreaker.ErrTooManyRequests instead; IsOpen
// recognizes both.
var ErrOpen = gobreaker.ErrOpenState

// Config is a (route, backend) pair's breaker policy.
type Config struct {
	FailureThreshold uint32        // consecutive failures before Open (default 5)
	OpenDuration     time.Duration // time spent Open before a probe is allowed (default 30s)
}

// Breaker wraps gobreaker.CircuitBreaker[*http.Response] for one
// (route, backend) pair.
type Breaker struct {
	inner        *gobreaker.CircuitBreaker[*http.Response]
	openedAt     func() time.Time
	openDuration time.Duration
}

// NewBreaker builds a breaker for one (route, backend) pair. MaxRequests
// is fixed at 1: exactly one half-open probe is permitted at a time.
func NewBreaker(cfg Config) *Breaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openDuration := cfg.OpenDuration
	if openDuration <= 0 {
		openDuration = 30 * time.Second
	}

	var lastOpenedAt time.Time
	settings := gobreaker.Settings{
		MaxRequests: 1,
		Timeout:     openDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				lastOpenedAt = time.Now()
			}
		},
	}

	return &Breaker{
		inner:        gobreaker.NewCircuitBreaker[*http.Response](settings),
		openedAt:     func() time.Time { return lastOpenedAt },
		openDuration: openDuration,
	}
}

// Call admits or rejects a dispatch attempt. classify receives the
// transport's (response, error) and reports whether it counts as a
// backend failure per the retryable-status rules (§4.7): a transport
// error, a timeout, or a retryable status code. Non-retryable 4xx
// responses must return false.
func (b *Breaker) Call(dispatch func() (*http.Response, error), classify func(*http.Response, error) bool) (*http.Response, error) {
	return b.inner.Execute(func() (*http.Response, error) {
		resp, err := dispatch()
		if classify(resp, err) {
			if err != nil {
				return resp, err
			}
			return resp, errBackendFailure
		}
		return resp, nil
	})
}

// errBackendFailure is returned from the Execute closure to force
// gobreaker to count a non-transport failure (e.g. a 503) against the
// breaker, without masking the original nil transport error to callers
// that inspect resp directly.
var errBackendFailure = errors.New("circuitbreaker: classified backend failure")

// IsOpen reports whether err is the breaker's own rejection: Open, or
// HalfOpen with its probe already in flight.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// State returns the breaker's current state without side effects.
func (b *Breaker) State() State {
	return fromGobreakerState(b.inner.State())
}

// OpenExpiry returns the time the breaker is eligible for its next
// half-open probe. Zero if the breaker was never Open.
func (b *Breaker) OpenExpiry() time.Time {
	opened := b.openedAt()
	if opened.IsZero() {
		return time.Time{}
	}
	return opened.Add(b.openDuration)
}
