package circuitbreaker

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func alwaysFail(*http.Response, error) bool { return true }
func neverFail(*http.Response, error) bool  { return false }

func ok200() (*http.Response, error) {
	return &http.Response{StatusCode: 200}, nil
}

func fail503() (*http.Response, error) {
	return &http.Response{StatusCode: 503}, nil
}

func TestNewBreakerDefaults(t *testing.T) {
	b := NewBreaker(Config{})
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreakerClosedToOpen(t *testing.T) {
	b := NewBreaker(Config{FailureThreshold: 3, OpenDuration: time.Second})

	for i := 0; i < 2; i++ {
		if _, err := b.Call(fail503, alwaysFail); err == nil {
			t.Fatal("expected classified failure to surface as an error")
		}
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed after 2 failures, got %s", b.State())
	}

	b.Call(fail503, alwaysFail)
	if b.State() != StateOpen {
		t.Errorf("expected open after 3 consecutive failures, got %s", b.State())
	}
}

func TestBreakerOpenRejectsRequests(t *testing.T) {
	b := NewBreaker(Config{FailureThreshold: 1, OpenDuration: time.Hour})

	b.Call(fail503, alwaysFail)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	called := false
	_, err := b.Call(func() (*http.Response, error) {
		called = true
		return ok200()
	}, neverFail)

	if called {
		t.Error("dispatch closure must not run while the breaker is open")
	}
	if !IsOpen(err) {
		t.Errorf("expected an open-state error, got %v", err)
	}
}

func TestBreakerHalfOpenProbeRecovers(t *testing.T) {
	b := NewBreaker(Config{FailureThreshold: 1, OpenDuration: 10 * time.Millisecond})

	b.Call(fail503, alwaysFail)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	if _, err := b.Call(ok200, neverFail); err != nil {
		t.Fatalf("expected the probe to be admitted, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed after a successful probe, got %s", b.State())
	}
}

func TestBreakerNonRetryableStatusIsNotAFailure(t *testing.T) {
	b := NewBreaker(Config{FailureThreshold: 1})

	notFound := func() (*http.Response, error) {
		return &http.Response{StatusCode: 404}, nil
	}

	for i := 0; i < 5; i++ {
		if _, err := b.Call(notFound, neverFail); err != nil {
			t.Fatalf("unexpected error on non-retryable status: %v", err)
		}
	}
	if b.State() != StateClosed {
		t.Errorf("404s must never trip the breaker, got %s", b.State())
	}
}

func TestBreakerTransportErrorCountsAsFailure(t *testing.T) {
	b := NewBreaker(Config{FailureThreshold: 1})

	transportErr := errors.New("connection refused")
	dispatch := func() (*http.Response, error) { return nil, transportErr }

	_, err := b.Call(dispatch, alwaysFail)
	if !errors.Is(err, transportErr) {
		t.Errorf("expected the transport error to propagate, got %v", err)
	}
	if b.State() != StateOpen {
		t.Errorf("expected open after one failure at threshold 1, got %s", b.State())
	}
}
