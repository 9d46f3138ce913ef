package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/wudi/kairos/internal/config"
)

// requestTimeout resolves the deadline a single request is given: a route's
// own TimeoutMS wins when set, otherwise the gateway-wide
// ActiveConfig.RequestTimeoutMS, otherwise config.DefaultRequestTimeout.
// Websocket routes never reach this: their session runs for the life of the
// connection instead of a fixed deadline.
func requestTimeout(cfg *config.ActiveConfig, route *config.Route) time.Duration {
	if route.TimeoutMS > 0 {
		return time.Duration(route.TimeoutMS) * time.Millisecond
	}
	if cfg.RequestTimeoutMS > 0 {
		return time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	}
	return config.DefaultRequestTimeout
}

// retryAfterWriter injects a Retry-After header, computed from the route's
// timeout, on a 504 response — so a client that hit the deadline knows how
// long the gateway waited before giving up.
type retryAfterWriter struct {
	http.ResponseWriter
	retryAfter    string
	headerWritten bool
}

func newRetryAfterWriter(w http.ResponseWriter, timeout time.Duration) *retryAfterWriter {
	seconds := int(timeout.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return &retryAfterWriter{ResponseWriter: w, retryAfter: fmt.Sprintf("%d", seconds)}
}

func (w *retryAfterWriter) WriteHeader(code int) {
	if !w.headerWritten {
		w.headerWritten = true
		if code == http.StatusGatewayTimeout {
			w.Header().Set("Retry-After", w.retryAfter)
		}
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *retryAfterWriter) Write(b []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *retryAfterWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
