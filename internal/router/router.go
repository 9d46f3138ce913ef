// Package router matches an incoming request's method and path against a
// route table's two bins: a static map of placeholder-free paths and an
// ordered list of dynamic, placeholder-bearing patterns. Static matches
// always win over dynamic ones; among dynamic patterns the earliest in
// insertion order wins.
package router

import (
	"errors"
	"net/http"
	"sync"

	"github.com/wudi/kairos/internal/config"
)

// ErrNotFound means no route's pattern matched the path at all.
var ErrNotFound = errors.New("router: no route matches path")

// ErrMethodNotAllowed means a route's pattern matched the path but the
// method is not permitted: by any static route sharing that path, or by
// the first dynamic route whose pattern matched.
var ErrMethodNotAllowed = errors.New("router: path matches but method not allowed")

// Match is the result of a successful Match call.
type Match struct {
	Route      *config.Route
	PathParams map[string]string
}

// InternalPath renders the matched route's internal path template with
// the captured path parameters substituted in.
func (m *Match) InternalPath() string {
	return substitute(m.Route.InternalPath, m.PathParams)
}

// Router holds one compiled snapshot of a route table. It is rebuilt
// wholesale on every config reload and is safe for concurrent Match calls
// during a rebuild.
type Router struct {
	mu      sync.RWMutex
	static  map[string][]*compiledRoute
	dynamic []*compiledRoute
}

// New returns an empty Router. Call Build to populate it.
func New() *Router {
	return &Router{static: make(map[string][]*compiledRoute)}
}

// Build compiles routes into the router's static/dynamic bins, replacing
// any previously built table. Routes are kept in the order given;
// multiple routes may share a static path as long as their method sets
// don't overlap (validated upstream in internal/config).
func (rt *Router) Build(routes []config.Route) error {
	static := make(map[string][]*compiledRoute)
	var dynamic []*compiledRoute

	for i := range routes {
		cr, err := compileRoute(&routes[i])
		if err != nil {
			return err
		}
		if cr.pattern == nil {
			static[cr.route.ExternalPath] = append(static[cr.route.ExternalPath], cr)
		} else {
			dynamic = append(dynamic, cr)
		}
	}

	rt.mu.Lock()
	rt.static = static
	rt.dynamic = dynamic
	rt.mu.Unlock()
	return nil
}

// Match finds the route for method and path. The static bin is probed by
// exact path first; on miss, the dynamic list is scanned in insertion
// order and the first pattern matching path is selected. If that
// selection's method set excludes method, ErrMethodNotAllowed is
// returned rather than continuing to scan for a different pattern.
func (rt *Router) Match(method, path string) (*Match, error) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	if candidates, ok := rt.static[path]; ok {
		for _, cr := range candidates {
			if cr.allows(method) {
				return &Match{Route: cr.route, PathParams: map[string]string{}}, nil
			}
		}
		return nil, ErrMethodNotAllowed
	}

	for _, cr := range rt.dynamic {
		m := cr.pattern.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		if !cr.allows(method) {
			return nil, ErrMethodNotAllowed
		}
		params := make(map[string]string, len(cr.paramNames))
		for i, name := range cr.paramNames {
			params[name] = m[i+1]
		}
		return &Match{Route: cr.route, PathParams: params}, nil
	}

	return nil, ErrNotFound
}

// MatchRequest is a convenience wrapper over Match for an *http.Request.
func (rt *Router) MatchRequest(r *http.Request) (*Match, error) {
	return rt.Match(r.Method, r.URL.Path)
}
