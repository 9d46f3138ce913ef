package circuitbreaker

import (
	"sync"
)

// key identifies one circuit breaker: a route and one of its backends.
type key struct {
	routeID   string
	backendID string
}

// Registry lazily creates breakers on first dispatch to a (route, backend)
// pair and sweeps orphaned entries after a config reload removes routes.
type Registry struct {
	mu       sync.Mutex
	breakers map[key]*Breaker
	cfg      func(routeID string) Config
}

// NewRegistry builds a Registry. cfgFor returns the breaker Config to use
// when lazily creating a breaker for routeID (falling back to defaults
// when the route carries no explicit breaker policy).
func NewRegistry(cfgFor func(routeID string) Config) *Registry {
	return &Registry{
		breakers: make(map[key]*Breaker),
		cfg:      cfgFor,
	}
}

// Get returns the breaker for (routeID, backendID), creating it on first
// use.
func (r *Registry) Get(routeID, backendID string) *Breaker {
	k := key{routeID, backendID}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[k]
	if ok {
		return b
	}
	b = NewBreaker(r.cfg(routeID))
	r.breakers[k] = b
	return b
}

// Sweep deletes breakers whose routeID is not present in liveRouteIDs. The
// gateway invokes it once per newly observed ActiveConfig, while rebuilding
// its route state on the first request that sees the new snapshot.
func (r *Registry) Sweep(liveRouteIDs map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k := range r.breakers {
		if !liveRouteIDs[k.routeID] {
			delete(r.breakers, k)
		}
	}
}

// Snapshot returns the state of every known breaker, keyed by
// "routeID|backendID", for the /metrics and management-API surfaces.
func (r *Registry) Snapshot() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]State, len(r.breakers))
	for k, b := range r.breakers {
		out[k.routeID+"|"+k.backendID] = b.State()
	}
	return out
}
