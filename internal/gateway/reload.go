package gateway

import (
	"fmt"
	"net/url"

	"github.com/wudi/kairos/internal/auth"
	"github.com/wudi/kairos/internal/config"
	"github.com/wudi/kairos/internal/loadbalancer"
	"github.com/wudi/kairos/internal/router"
)

// builtState is everything derived from one ActiveConfig snapshot: the
// compiled route table and one load balancer per route. Circuit breakers
// and rate limiters live in registries that outlive any single snapshot —
// they're swept, not rebuilt, when a snapshot changes (§9 orphan sweep).
type builtState struct {
	cfg       *config.ActiveConfig
	routerTbl *router.Router
	balancers map[string]loadbalancer.Balancer // keyed by route.ExternalPath
	jwtAuth   *auth.JWTAuth
}

// buildState compiles a new ActiveConfig into a builtState. cfg is assumed
// already validated (Store.Replace validates before publishing).
func buildState(cfg *config.ActiveConfig) (*builtState, error) {
	rt := router.New()
	if err := rt.Build(cfg.Routers); err != nil {
		return nil, fmt.Errorf("building route table: %w", err)
	}

	balancers := make(map[string]loadbalancer.Balancer, len(cfg.Routers))
	for i := range cfg.Routers {
		route := &cfg.Routers[i]
		backends := make([]*loadbalancer.Backend, 0, len(route.Backends))
		for _, b := range route.Backends {
			backend := &loadbalancer.Backend{
				URL:     backendURL(route, b),
				Weight:  b.Weight,
				Healthy: true,
			}
			backend.InitParsedURL()
			backends = append(backends, backend)
		}
		balancers[route.ExternalPath] = loadbalancer.New(loadbalancer.Strategy(route.LoadBalancing), backends)
	}

	return &builtState{
		cfg:       cfg,
		routerTbl: rt,
		balancers: balancers,
		jwtAuth:   auth.NewJWTAuth(cfg.JWT),
	}, nil
}

// backendURL renders a backend's dial target, supplying the scheme implied
// by the route's protocol when Host carries none (config validation already
// confirmed any explicit scheme is compatible with the protocol) and the
// port when the host doesn't already carry one.
func backendURL(route *config.Route, b config.Backend) string {
	raw := b.Host
	if !hasScheme(raw) {
		raw = defaultScheme(route.Protocol) + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Port() == "" && b.Port > 0 {
		u.Host = fmt.Sprintf("%s:%d", u.Hostname(), b.Port)
	}
	return u.String()
}

func hasScheme(host string) bool {
	for i := 0; i < len(host); i++ {
		if host[i] == ':' {
			return i > 0 && i+2 < len(host) && host[i+1] == '/' && host[i+2] == '/'
		}
		if host[i] == '/' {
			return false
		}
	}
	return false
}

func defaultScheme(protocol string) string {
	switch protocol {
	case "websocket":
		return "ws"
	case "ftp":
		return "ftp"
	default:
		return "http"
	}
}

// liveRouteIDs returns the set of route identifiers (external paths)
// present in cfg, used to sweep breakers/limiters for routes a reload
// removed.
func liveRouteIDs(cfg *config.ActiveConfig) map[string]bool {
	ids := make(map[string]bool, len(cfg.Routers))
	for _, route := range cfg.Routers {
		ids[route.ExternalPath] = true
	}
	return ids
}
