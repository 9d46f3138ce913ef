// Package gateway wires the route matcher, authenticator, rate limiter,
// transformer, retry driver, forwarder, and WebSocket proxy into a single
// http.Handler, re-derived lazily whenever the config store publishes a new
// snapshot.
package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wudi/kairos/internal/circuitbreaker"
	"github.com/wudi/kairos/internal/config"
	"github.com/wudi/kairos/internal/dns"
	"github.com/wudi/kairos/internal/forwarder"
	"github.com/wudi/kairos/internal/ftp"
	"github.com/wudi/kairos/internal/gwerrors"
	"github.com/wudi/kairos/internal/health"
	"github.com/wudi/kairos/internal/loadbalancer"
	"github.com/wudi/kairos/internal/middleware"
	"github.com/wudi/kairos/internal/middleware/realip"
	"github.com/wudi/kairos/internal/obsv"
	"github.com/wudi/kairos/internal/ratelimit"
	"github.com/wudi/kairos/internal/retry"
	"github.com/wudi/kairos/internal/router"
	"github.com/wudi/kairos/internal/transform"
	"github.com/wudi/kairos/internal/wsproxy"
)

// Gateway is the gateway's core request handler. It holds no route-level
// state directly; everything route-derived is rebuilt by buildState and
// compared against the config store's current snapshot on (effectively)
// every request.
type Gateway struct {
	store         *config.Store
	forwarder     *proxy.Forwarder
	wsProxy       *wsproxy.Proxy
	ftpProxy      *ftp.Proxy
	dnsProxy      *dns.Proxy
	breakers      *circuitbreaker.Registry
	limiters      *ratelimit.Registry
	healthChecker *health.Checker
	metrics       *obsv.Metrics

	mu    sync.RWMutex
	state *builtState
}

// New builds a Gateway bound to store. metrics may be nil to disable
// per-request metric recording (tests typically pass nil).
func New(store *config.Store, metrics *obsv.Metrics) (*Gateway, error) {
	initial := store.Snapshot()
	state, err := buildState(initial)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		store:     store,
		forwarder: proxy.New(),
		wsProxy:   wsproxy.New(),
		ftpProxy:  ftp.New(),
		dnsProxy:  dns.New(),
		limiters:  ratelimit.NewRegistry(),
		metrics:   metrics,
		state:     state,
	}
	g.breakers = circuitbreaker.NewRegistry(func(routeID string) circuitbreaker.Config {
		return circuitbreaker.Config{}
	})
	g.healthChecker = health.NewChecker(health.Config{OnChange: g.onBackendHealthChange})
	g.seedRateLimiters(initial)
	g.syncHealthChecks(state)
	return g, nil
}

// Close releases pooled upstream connections and stops active health
// checking on shutdown.
func (g *Gateway) Close() error {
	g.healthChecker.Stop()
	g.forwarder.CloseIdleConnections()
	return nil
}

// syncHealthChecks registers or updates active health checks for every
// backend that declares a HealthCheckPath. Backends without one are never
// probed; their eligibility changes only through the retry driver's
// breaker-outcome marking.
func (g *Gateway) syncHealthChecks(state *builtState) {
	for _, route := range state.cfg.Routers {
		for _, b := range route.Backends {
			if b.HealthCheckPath == "" {
				continue
			}
			g.healthChecker.UpdateBackend(health.Backend{
				URL:        backendURL(&route, b),
				HealthPath: b.HealthCheckPath,
			})
		}
	}
}

// onBackendHealthChange applies an active health check's verdict to every
// route's balancer that currently carries this backend URL.
func (g *Gateway) onBackendHealthChange(url string, status health.Status) {
	g.mu.RLock()
	state := g.state
	g.mu.RUnlock()

	for _, bal := range state.balancers {
		if bal.GetBackendByURL(url) == nil {
			continue
		}
		if status == health.StatusHealthy {
			bal.MarkHealthy(url)
		} else if status == health.StatusUnhealthy {
			bal.MarkUnhealthy(url)
		}
	}
}

// currentState returns the builtState for the store's current snapshot,
// rebuilding it under lock if the snapshot has changed since the last
// request. Rebuilding is lazy rather than push-driven: Store carries no
// subscribe hook, so this is the point where a reload actually takes
// effect.
func (g *Gateway) currentState() *builtState {
	cfg := g.store.Snapshot()

	g.mu.RLock()
	state := g.state
	g.mu.RUnlock()
	if state.cfg == cfg {
		return state
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.cfg == cfg {
		return g.state
	}

	newState, err := buildState(cfg)
	if err != nil {
		obsv.Error("config rebuild failed, keeping previous route table", zap.Error(err))
		return g.state
	}

	g.state = newState
	live := liveRouteIDs(cfg)
	g.breakers.Sweep(live)
	g.limiters.Sweep(live)
	g.seedRateLimiters(cfg)
	g.syncHealthChecks(newState)
	return newState
}

// seedRateLimiters installs a Limiter for every route, falling back to the
// gateway-wide rate-limit default when a route carries no override.
func (g *Gateway) seedRateLimiters(cfg *config.ActiveConfig) {
	for _, route := range cfg.Routers {
		rlCfg := cfg.RateLimit
		if route.RateLimit != nil {
			rlCfg = *route.RateLimit
		}
		g.limiters.Set(route.ExternalPath, ratelimit.Config{
			Algorithm:         ratelimit.Algorithm(rlCfg.Algorithm),
			RequestsPerSecond: rlCfg.RequestsPerSecond,
			BurstSize:         rlCfg.BurstSize,
			Window:            rlCfg.Window(),
		})
	}
}

// ServeHTTP matches the request to a route and runs it through
// authentication, rate limiting, request transformation, and either the
// HTTP retry+forward path or the WebSocket proxy, in that order.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	state := g.currentState()

	match, err := state.routerTbl.MatchRequest(r)
	if err != nil {
		g.writeRouteError(w, r, err)
		return
	}

	route := match.Route
	r = r.WithContext(middleware.WithRouteID(r.Context(), route.ExternalPath))

	if route.AuthRequired || state.jwtAuth.IsEnabled() {
		identity, err := state.jwtAuth.Authenticate(r)
		if err != nil {
			if route.AuthRequired {
				g.writeAuthError(w, r, err)
				return
			}
		} else {
			r = r.WithContext(middleware.WithIdentity(r.Context(), identity))
		}
	}

	if lim := g.limiters.Get(route.ExternalPath); lim != nil {
		decision := lim.Check(clientIP(r))
		if !decision.Admit {
			if g.metrics != nil {
				g.metrics.RateLimitRejected.WithLabelValues(route.ExternalPath).Inc()
			}
			retryAfter := int(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			gwerrors.ErrRateLimited.WithRequestID(middleware.GetRequestID(r)).WriteJSON(w)
			return
		}
	}

	internalPath := transform.Request(r, match.InternalPath(), route.RequestTransformation)

	rec := &responseRecorder{ResponseWriter: w}
	start := time.Now()
	defer g.recordMetrics(route, r, rec, start)

	if route.Protocol == "websocket" || wsproxy.IsUpgradeRequest(r) {
		g.serveWebSocket(rec, r, state, route, internalPath)
		return
	}

	// Every non-WebSocket protocol gets a deadline: a WebSocket session
	// runs for the life of the connection instead of a fixed timeout.
	timeout := requestTimeout(state.cfg, route)
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	r = r.WithContext(ctx)
	rw := newRetryAfterWriter(rec, timeout)

	switch route.Protocol {
	case "ftp":
		g.serveFTP(rw, r, state, route, internalPath)
	case "dns":
		g.serveDNS(rw, r, state, route)
	default:
		g.serveHTTP(rw, r, state, route, internalPath)
	}
}

func (g *Gateway) recordMetrics(route *config.Route, r *http.Request, rec *responseRecorder, start time.Time) {
	if g.metrics == nil {
		return
	}
	status := rec.StatusCode()
	g.metrics.RequestsTotal.WithLabelValues(route.ExternalPath, r.Method, strconv.Itoa(status)).Inc()
	g.metrics.RequestDuration.WithLabelValues(route.ExternalPath).Observe(time.Since(start).Seconds())
}

// serveHTTP runs the retry-driver/forwarder path for a non-WebSocket route.
func (g *Gateway) serveHTTP(w http.ResponseWriter, r *http.Request, state *builtState, route *config.Route, internalPath string) {
	pr, err := proxy.Prepare(r, internalPath)
	if err != nil {
		g.writeUpstreamError(w, r, err)
		return
	}

	bal := state.balancers[route.ExternalPath]
	if bal == nil {
		gwerrors.ErrCircuitOpen.WithRequestID(middleware.GetRequestID(r)).WriteJSON(w)
		return
	}

	retryCfg := config.RetryConfig{}
	if route.Retry != nil {
		retryCfg = *route.Retry
	}
	policy := retry.NewPolicy(retryCfg)
	if !pr.Retryable() {
		policy.MaxRetries = 0
	}

	breakerFor := func(backendURL string) *circuitbreaker.Breaker {
		return g.breakers.Get(route.ExternalPath, backendURL)
	}

	ip := clientIP(r)
	resp, err := policy.Execute(r.Context(), bal, breakerFor, ip, func(ctx context.Context, backend *loadbalancer.Backend) (*http.Response, error) {
		return g.forwarder.Dispatch(ctx, backend, pr, ip)
	})
	if err != nil {
		g.writeUpstreamError(w, r, err)
		return
	}
	defer resp.Body.Close()

	transform.Response(resp, route.ResponseTransformation)
	writeResponse(w, resp)
}

// serveWebSocket selects a single backend (no retry: a dropped handshake
// is not safely replayable mid-upgrade) and bridges frames for the
// session's lifetime.
func (g *Gateway) serveWebSocket(w http.ResponseWriter, r *http.Request, state *builtState, route *config.Route, internalPath string) {
	reqID := middleware.GetRequestID(r)
	bal := state.balancers[route.ExternalPath]
	if bal == nil {
		gwerrors.ErrCircuitOpen.WithRequestID(reqID).WriteJSON(w)
		return
	}

	backend := bal.Select(clientIP(r))
	if backend == nil {
		gwerrors.ErrCircuitOpen.WithRequestID(reqID).WriteJSON(w)
		return
	}

	if err := g.wsProxy.Proxy(w, r, backend, internalPath); err != nil {
		obsv.Debug("websocket session ended", zap.Error(err), zap.String("route", route.ExternalPath))
	}
}

// serveFTP selects a single backend and streams one RETR'd file back as the
// response body. Like the WebSocket path, a dropped connection mid-transfer
// is not retried against another backend.
func (g *Gateway) serveFTP(w http.ResponseWriter, r *http.Request, state *builtState, route *config.Route, internalPath string) {
	reqID := middleware.GetRequestID(r)
	backend := selectBackend(state, route, r)
	if backend == nil {
		gwerrors.ErrCircuitOpen.WithRequestID(reqID).WriteJSON(w)
		return
	}

	if err := g.ftpProxy.ServeFTP(w, r, backendDialAddr(backend), internalPath); err != nil {
		obsv.Debug("ftp transfer failed", zap.Error(err), zap.String("route", route.ExternalPath))
		gwerrors.ErrInternal.Wrap(err).WithRequestID(reqID).WriteJSON(w)
	}
}

// serveDNS selects a single backend and exchanges one query against it,
// rendering the answer as JSON.
func (g *Gateway) serveDNS(w http.ResponseWriter, r *http.Request, state *builtState, route *config.Route) {
	reqID := middleware.GetRequestID(r)
	backend := selectBackend(state, route, r)
	if backend == nil {
		gwerrors.ErrCircuitOpen.WithRequestID(reqID).WriteJSON(w)
		return
	}

	if err := g.dnsProxy.ServeDNS(w, r, backendDialAddr(backend)); err != nil {
		obsv.Debug("dns exchange failed", zap.Error(err), zap.String("route", route.ExternalPath))
		gwerrors.ErrInternal.Wrap(err).WithRequestID(reqID).WriteJSON(w)
	}
}

// selectBackend picks a single backend from route's balancer, or nil if the
// route has no healthy backend.
func selectBackend(state *builtState, route *config.Route, r *http.Request) *loadbalancer.Backend {
	bal := state.balancers[route.ExternalPath]
	if bal == nil {
		return nil
	}
	return bal.Select(clientIP(r))
}

// backendDialAddr strips the scheme from a backend's URL, returning a bare
// host:port dial target for non-HTTP protocol adjuncts.
func backendDialAddr(backend *loadbalancer.Backend) string {
	if backend.ParsedURL != nil {
		return backend.ParsedURL.Host
	}
	return backend.URL
}

func writeResponse(w http.ResponseWriter, resp *http.Response) {
	header := w.Header()
	for k, vv := range resp.Header {
		for _, v := range vv {
			header.Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func (g *Gateway) writeRouteError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetRequestID(r)
	if errors.Is(err, router.ErrMethodNotAllowed) {
		gwerrors.ErrMethodNotAllowed.WithRequestID(reqID).WriteJSON(w)
		return
	}
	gwerrors.ErrRouteNotFound.WithRequestID(reqID).WriteJSON(w)
}

func (g *Gateway) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetRequestID(r)
	w.Header().Set("WWW-Authenticate", `Bearer realm="kairos"`)
	if gwErr, ok := gwerrors.As(err); ok {
		gwErr.WithRequestID(reqID).WriteJSON(w)
		return
	}
	gwerrors.ErrAuthMalformed.WithRequestID(reqID).WriteJSON(w)
}

func (g *Gateway) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetRequestID(r)
	if circuitbreaker.IsOpen(err) {
		gwerrors.ErrCircuitOpen.WithRequestID(reqID).WriteJSON(w)
		return
	}
	if gwErr, ok := gwerrors.As(err); ok {
		gwErr.WithRequestID(reqID).WriteJSON(w)
		return
	}
	gwerrors.ErrInternal.Wrap(err).WithRequestID(reqID).WriteJSON(w)
}

// clientIP returns the real-IP middleware's resolved address, falling back
// to the raw remote address if the middleware hasn't run (e.g. in tests
// that call Gateway.ServeHTTP directly).
func clientIP(r *http.Request) string {
	if ip := realip.FromContext(r.Context()); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
