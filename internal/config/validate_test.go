package config

import "testing"

func validRoute() Route {
	return Route{
		ExternalPath: "/widgets/{id}",
		InternalPath: "/v1/widgets/{id}",
		Methods:      []string{"GET"},
		Backends: []Backend{
			{Host: "widgets.internal", Port: 8080},
		},
	}
}

func TestValidateAcceptsDefaultConfig(t *testing.T) {
	if err := Validate(DefaultActiveConfig()); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}
}

func TestValidateRejectsEmptyExternalPath(t *testing.T) {
	route := validRoute()
	route.ExternalPath = ""
	cfg := DefaultActiveConfig()
	cfg.Routers = []Route{route}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidateRejectsUnmatchedInternalPlaceholder(t *testing.T) {
	route := validRoute()
	route.InternalPath = "/v1/widgets/{id}/{extra}"
	cfg := DefaultActiveConfig()
	cfg.Routers = []Route{route}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for unmatched placeholder")
	}
}

func TestValidateRejectsDuplicateExternalPathMethodPair(t *testing.T) {
	cfg := DefaultActiveConfig()
	cfg.Routers = []Route{validRoute(), validRoute()}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for duplicate (external_path, method)")
	}
}

func TestValidateRejectsBackendPortOutOfRange(t *testing.T) {
	route := validRoute()
	route.Backends[0].Port = 70000
	cfg := DefaultActiveConfig()
	cfg.Routers = []Route{route}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for out-of-range port")
	}
}

func TestValidateRejectsWeakJWTSecret(t *testing.T) {
	cfg := DefaultActiveConfig()
	cfg.JWT.Secret = "too-short"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for short jwt secret")
	}
}

func TestValidateAcceptsStrongJWTSecret(t *testing.T) {
	cfg := DefaultActiveConfig()
	cfg.JWT.Secret = "this-secret-is-at-least-32-bytes-long"

	if err := Validate(cfg); err != nil {
		t.Fatalf("expected strong jwt secret to validate, got %v", err)
	}
}

func TestValidateRejectsIncompatibleWebsocketScheme(t *testing.T) {
	route := validRoute()
	route.Protocol = "websocket"
	route.Backends[0].Host = "http://widgets.internal"
	cfg := DefaultActiveConfig()
	cfg.Routers = []Route{route}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for http scheme on a websocket route")
	}
}

func TestValidateRejectsBadRetryConfig(t *testing.T) {
	route := validRoute()
	route.Retry = &RetryConfig{MaxRetries: 3, InitialBackoffMS: 100, MaxBackoffMS: 50, Multiplier: 2.0}
	cfg := DefaultActiveConfig()
	cfg.Routers = []Route{route}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error: max_backoff_ms below initial_backoff_ms")
	}
}

func TestValidateRejectsZeroRateLimitWindow(t *testing.T) {
	cfg := DefaultActiveConfig()
	cfg.RateLimit.WindowDuration = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for zero window_duration")
	}
}
