package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/wudi/kairos/internal/gwerrors"
	"github.com/wudi/kairos/internal/loadbalancer"
	"github.com/wudi/kairos/internal/obsv"
	"github.com/wudi/kairos/internal/transform"
)

// maxRetryBufferBytes bounds how much of a request body the forwarder
// buffers for replay across retry attempts (§9 Open Question, default
// 1 MiB).
const maxRetryBufferBytes = 1 << 20

// PreparedRequest snapshots an inbound request's method, header, and
// (size permitting) body so the retry driver can replay it against a
// different backend on each attempt.
type PreparedRequest struct {
	method    string
	path      string
	query     string
	header    http.Header
	body      []byte
	stream    io.Reader // set instead of body when the body exceeds the buffer limit
	scheme    string
	host      string
	retryable bool
}

// Prepare buffers r's body up to maxRetryBufferBytes and snapshots the
// header and method. path is the route's internal path after placeholder
// substitution and transformation. When the body exceeds the buffer
// limit, Retryable reports false and the caller must cap retries at a
// single attempt.
func Prepare(r *http.Request, path string) (*PreparedRequest, error) {
	pr := &PreparedRequest{
		method:    r.Method,
		path:      path,
		query:     r.URL.RawQuery,
		header:    r.Header.Clone(),
		host:      r.Host,
		scheme:    schemeOf(r),
		retryable: true,
	}

	if r.Body == nil || r.Body == http.NoBody {
		return pr, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRetryBufferBytes+1))
	if err != nil {
		return nil, gwerrors.ErrUpstreamTransportError.Wrap(err)
	}
	if len(body) > maxRetryBufferBytes {
		obsv.Warn("request body exceeds retry buffer, disabling retry",
			zap.Int("limit_bytes", maxRetryBufferBytes), zap.String("path", path))
		pr.retryable = false
		pr.stream = io.MultiReader(bytes.NewReader(body), r.Body)
		return pr, nil
	}
	pr.body = body
	return pr, nil
}

// Retryable reports whether pr's body was small enough to buffer and
// replay more than once.
func (pr *PreparedRequest) Retryable() bool { return pr.retryable }

func schemeOf(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}

// Forwarder performs the outbound call to a chosen backend and returns
// its response unread; the caller streams the body and closes it.
type Forwarder struct {
	transports *TransportPool
}

// New builds a Forwarder backed by a default TransportPool.
func New() *Forwarder {
	return &Forwarder{transports: NewTransportPool()}
}

// NewWithTransports builds a Forwarder backed by a caller-supplied pool.
func NewWithTransports(tp *TransportPool) *Forwarder {
	return &Forwarder{transports: tp}
}

// CloseIdleConnections releases idle connections on every pooled transport,
// called on gateway shutdown.
func (f *Forwarder) CloseIdleConnections() {
	f.transports.CloseIdleConnections()
}

// Dispatch builds a request against backend from pr and round-trips it.
// Hop-by-hop headers are stripped and X-Forwarded-* appended before the
// call; the response is returned unread for the caller to stream.
func (f *Forwarder) Dispatch(ctx context.Context, backend *loadbalancer.Backend, pr *PreparedRequest, clientIP string) (*http.Response, error) {
	target, err := buildUpstreamURL(backend, pr.path, pr.query)
	if err != nil {
		return nil, gwerrors.ErrUpstreamConnectionError.Wrap(err)
	}

	var bodyReader io.Reader
	if pr.stream != nil {
		bodyReader = pr.stream
	} else if pr.body != nil {
		bodyReader = bytes.NewReader(pr.body)
	}

	req, err := http.NewRequestWithContext(ctx, pr.method, target.String(), bodyReader)
	if err != nil {
		return nil, gwerrors.ErrUpstreamConnectionError.Wrap(err)
	}
	req.Header = pr.header.Clone()
	appendForwardedHeaders(req, clientIP, pr.scheme, pr.host)
	transform.StripHopByHop(req.Header)

	backend.IncrActive()
	defer backend.DecrActive()

	resp, err := f.transports.Get(target.Scheme).RoundTrip(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, gwerrors.ErrUpstreamTimeout.Wrap(err)
		}
		return nil, gwerrors.ErrUpstreamConnectionError.Wrap(err)
	}
	return resp, nil
}

// buildUpstreamURL joins backend's base URL with path, preserving any
// base path prefix the backend URL itself carries.
func buildUpstreamURL(backend *loadbalancer.Backend, path, rawQuery string) (*url.URL, error) {
	base := backend.ParsedURL
	if base == nil {
		var err error
		base, err = url.Parse(backend.URL)
		if err != nil {
			return nil, err
		}
	}
	u := *base
	u.Path = joinPath(u.Path, path)
	u.RawQuery = rawQuery
	return &u, nil
}

func joinPath(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		if !strings.HasPrefix(path, "/") {
			return "/" + path
		}
		return path
	}
	return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(path, "/")
}

// appendForwardedHeaders appends to (rather than overwrites) an existing
// X-Forwarded-For chain, and sets Proto/Host from the original inbound
// request captured at Prepare time.
func appendForwardedHeaders(req *http.Request, clientIP, scheme, host string) {
	if clientIP != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+clientIP)
		} else {
			req.Header.Set("X-Forwarded-For", clientIP)
		}
	}
	req.Header.Set("X-Forwarded-Proto", scheme)
	if host != "" {
		req.Header.Set("X-Forwarded-Host", host)
	}
}
