package gateway

import "net/http"

// StatusCapture is implemented by ResponseWriter wrappers that capture the status code.
type StatusCapture interface {
	StatusCode() int
}

// responseRecorder wraps http.ResponseWriter to capture the status written,
// for the per-route metrics the middleware chain's own logging writer has
// no route to attach to (it runs before routing resolves).
type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rr *responseRecorder) WriteHeader(status int) {
	if rr.wroteHeader {
		return
	}
	rr.status = status
	rr.wroteHeader = true
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(http.StatusOK)
	}
	return rr.ResponseWriter.Write(b)
}

// StatusCode returns the status recorded so far, defaulting to 200 if the
// handler never called WriteHeader.
func (rr *responseRecorder) StatusCode() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

var _ StatusCapture = (*responseRecorder)(nil)
