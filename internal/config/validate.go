package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{[A-Za-z_][A-Za-z0-9_]*\}`)

// ValidationError lists every rule a candidate ActiveConfig failed. It
// satisfies error so a failed Store.Replace can be returned directly.
type ValidationError struct {
	Failures []string
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: %s", strings.Join(v.Failures, "; "))
}

// Validate checks every rule in the configuration store's responsibility
// (§4.1): route invariants, path/method collisions, backend scheme
// compatibility, JWT secret strength, rate-limit bounds, and retry bounds.
// It never mutates cfg and returns every failing rule, not just the first.
func Validate(cfg *ActiveConfig) error {
	var failures []string

	seen := make(map[string]bool)
	for i := range cfg.Routers {
		route := &cfg.Routers[i]
		prefix := fmt.Sprintf("route[%d] (%s)", i, route.ExternalPath)

		failures = append(failures, validateRoute(prefix, route)...)

		for _, method := range normalizeMethods(route.Methods) {
			key := route.ExternalPath + " " + method
			if seen[key] {
				failures = append(failures, fmt.Sprintf("%s: duplicate (external_path, method) pair %q", prefix, key))
			}
			seen[key] = true
		}
	}

	if cfg.JWT.Secret != "" && len(cfg.JWT.Secret) < 32 {
		failures = append(failures, "jwt.secret must be at least 32 bytes")
	}

	if cfg.RequestTimeoutMS < 0 {
		failures = append(failures, "request_timeout_ms must be >= 0")
	}

	failures = append(failures, validateRateLimit("rate_limit", cfg.RateLimit)...)

	if len(failures) > 0 {
		return &ValidationError{Failures: failures}
	}
	return nil
}

func validateRoute(prefix string, route *Route) []string {
	var failures []string

	if route.ExternalPath == "" {
		failures = append(failures, prefix+": external_path must not be empty")
	}
	if route.InternalPath == "" {
		failures = append(failures, prefix+": internal_path must not be empty")
	}
	if len(route.Methods) == 0 {
		failures = append(failures, prefix+": methods must not be empty")
	}
	if len(route.Backends) == 0 {
		failures = append(failures, prefix+": backends must not be empty")
	}
	if route.TimeoutMS < 0 {
		failures = append(failures, prefix+": timeout_ms must be >= 0")
	}

	externalNames := placeholderNames(route.ExternalPath)
	for _, name := range placeholderNames(route.InternalPath) {
		if !externalNames[name] {
			failures = append(failures, fmt.Sprintf("%s: internal_path placeholder {%s} does not appear in external_path", prefix, name))
		}
	}

	protocol := route.Protocol
	if protocol == "" {
		protocol = "http"
	}
	for bi, backend := range route.Backends {
		bprefix := fmt.Sprintf("%s.backends[%d]", prefix, bi)
		if backend.Host == "" {
			failures = append(failures, bprefix+": host must not be empty")
			continue
		}
		if backend.Port < 1 || backend.Port > 65535 {
			failures = append(failures, fmt.Sprintf("%s: port %d out of range [1,65535]", bprefix, backend.Port))
		}
		if backend.Weight < 0 {
			failures = append(failures, bprefix+": weight must be >= 0")
		}
		if !schemeCompatible(protocol, backend.Host) {
			failures = append(failures, fmt.Sprintf("%s: scheme of host %q is not compatible with protocol %q", bprefix, backend.Host, protocol))
		}
	}

	if route.Retry != nil {
		failures = append(failures, validateRetry(prefix+".retry", route.Retry)...)
	}
	if route.RateLimit != nil {
		failures = append(failures, validateRateLimit(prefix+".rate_limit", *route.RateLimit)...)
	}

	return failures
}

func validateRetry(prefix string, r *RetryConfig) []string {
	var failures []string
	if r.MaxRetries < 0 || r.MaxRetries > 10 {
		failures = append(failures, prefix+".max_retries must be in [0,10]")
	}
	if r.InitialBackoffMS <= 0 {
		failures = append(failures, prefix+".initial_backoff_ms must be > 0")
	}
	if r.MaxBackoffMS < r.InitialBackoffMS {
		failures = append(failures, prefix+".max_backoff_ms must be >= initial_backoff_ms")
	}
	if r.Multiplier <= 1.0 {
		failures = append(failures, prefix+".multiplier must be > 1.0")
	}
	return failures
}

func validateRateLimit(prefix string, r RateLimitConfig) []string {
	var failures []string
	if r.WindowDuration <= 0 {
		failures = append(failures, prefix+".window_duration must be > 0")
	}
	if r.RequestsPerSecond <= 0 {
		failures = append(failures, prefix+".requests_per_second must be > 0")
	}
	return failures
}

func placeholderNames(path string) map[string]bool {
	names := make(map[string]bool)
	for _, m := range placeholderRe.FindAllString(path, -1) {
		names[strings.Trim(m, "{}")] = true
	}
	return names
}

func normalizeMethods(methods []string) []string {
	out := make([]string, len(methods))
	for i, m := range methods {
		out[i] = strings.ToUpper(m)
	}
	return out
}

func schemeCompatible(protocol, host string) bool {
	scheme := host
	if u, err := url.Parse(host); err == nil && u.Scheme != "" {
		scheme = u.Scheme
	} else if idx := strings.Index(host, "://"); idx >= 0 {
		scheme = host[:idx]
	} else {
		// No scheme present; treat as compatible, the forwarder will
		// supply the scheme implied by the protocol.
		return true
	}
	switch protocol {
	case "websocket":
		return scheme == "ws" || scheme == "wss"
	case "ftp":
		return scheme == "ftp" || scheme == "ftps"
	case "dns":
		return true
	default:
		return scheme == "http" || scheme == "https"
	}
}
