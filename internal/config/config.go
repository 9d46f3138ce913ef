// Package config owns ActiveConfig: the gateway's single immutable
// configuration snapshot, its JSON shape, validation rules, and the
// hot-reload machinery that keeps it current.
package config

import "time"

// ActiveConfig is the immutable, complete configuration snapshot a request
// processes against end-to-end. A new ActiveConfig is built and published
// wholesale; in-flight requests keep the snapshot they started with.
type ActiveConfig struct {
	Version   int             `json:"version"`
	JWT       JWTConfig       `json:"jwt"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	// RequestTimeoutMS is the gateway-wide per-request deadline, in
	// milliseconds, applied to every non-WebSocket route that doesn't set
	// its own Route.TimeoutMS. Zero falls back to DefaultRequestTimeout.
	RequestTimeoutMS int     `json:"request_timeout_ms,omitempty"`
	Routers          []Route `json:"routers"`
}

// JWTConfig carries the gateway-wide bearer-token verification settings.
type JWTConfig struct {
	Secret         string   `json:"secret"`
	Algorithm      string   `json:"algorithm"`
	Issuer         string   `json:"issuer,omitempty"`
	Audience       string   `json:"audience,omitempty"`
	RequiredClaims []string `json:"required_claims,omitempty"`
}

// RateLimitConfig is the gateway-wide rate-limit default, overridable per
// route.
type RateLimitConfig struct {
	Algorithm         string `json:"algorithm"`
	RequestsPerSecond int    `json:"requests_per_second"`
	BurstSize         int    `json:"burst_size"`
	WindowDuration    int    `json:"window_duration"` // seconds
}

// Window returns the configured window as a time.Duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowDuration) * time.Second
}

// Route is a single entry in the route table. External/internal paths use
// the `{name}` placeholder grammar; every internal placeholder must also
// appear in the external path.
type Route struct {
	ExternalPath   string    `json:"external_path"`
	InternalPath   string    `json:"internal_path"`
	Methods        []string  `json:"methods"`
	Protocol       string    `json:"protocol,omitempty"` // http (default), websocket, ftp, dns
	AuthRequired   bool      `json:"auth_required,omitempty"`
	Backends       []Backend `json:"backends"`
	LoadBalancing  string    `json:"load_balancing_strategy,omitempty"`
	// TimeoutMS overrides the gateway-wide request timeout for this route.
	// Ignored for websocket routes, which run for the life of the
	// connection instead of a fixed deadline.
	TimeoutMS int `json:"timeout_ms,omitempty"`

	Retry                  *RetryConfig     `json:"retry,omitempty"`
	RateLimit              *RateLimitConfig `json:"rate_limit,omitempty"`
	RequestTransformation  *Transformation  `json:"request_transformation,omitempty"`
	ResponseTransformation *Transformation  `json:"response_transformation,omitempty"`
}

// Backend is one upstream target in a route's pool.
type Backend struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Weight          int    `json:"weight,omitempty"`
	HealthCheckPath string `json:"health_check_path,omitempty"`
}

// RetryConfig is a route's retry/backoff policy.
type RetryConfig struct {
	MaxRetries        int     `json:"max_retries"`
	InitialBackoffMS  int     `json:"initial_backoff_ms"`
	MaxBackoffMS      int     `json:"max_backoff_ms"`
	Multiplier        float64 `json:"multiplier"`
	RetryableStatuses []int   `json:"retryable_statuses,omitempty"`
}

// Transformation bundles header/path/query/status rewrite rules applied to
// a request or response per the transformer's ordered steps.
type Transformation struct {
	Headers []HeaderRule   `json:"headers,omitempty"`
	Path    *PathRule      `json:"path,omitempty"`
	Query   []QueryRule    `json:"query,omitempty"`
	Status  []StatusRule   `json:"status,omitempty"`
}

// HeaderRule describes one header rewrite. Kind is one of
// add|set|remove|replace; Replace rules carry a regex Pattern/Replacement.
type HeaderRule struct {
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Value       string `json:"value,omitempty"`
	Pattern     string `json:"pattern,omitempty"`
	Replacement string `json:"replacement,omitempty"`
}

// PathRule rewrites the internal path with a single regex substitution,
// applied after placeholder substitution.
type PathRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
}

// QueryRule describes one query-parameter rewrite (add|set|remove).
type QueryRule struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// StatusRule remaps a response status code From to To; rules are applied
// in order, first match wins. A rule matches on the status code alone and
// carries no further condition.
type StatusRule struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// DefaultRequestTimeout applies when neither a route's TimeoutMS nor the
// gateway-wide RequestTimeoutMS is set.
const DefaultRequestTimeout = 30 * time.Second

// DefaultActiveConfig returns an empty, already-valid configuration: no
// routes, conservative rate-limit defaults.
func DefaultActiveConfig() *ActiveConfig {
	return &ActiveConfig{
		Version: 1,
		JWT: JWTConfig{
			Algorithm: "HS256",
		},
		RateLimit: RateLimitConfig{
			Algorithm:         "token_bucket",
			RequestsPerSecond: 100,
			BurstSize:         50,
			WindowDuration:    1,
		},
		RequestTimeoutMS: int(DefaultRequestTimeout / time.Millisecond),
		Routers:          []Route{},
	}
}
