package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadParsesValidConfig(t *testing.T) {
	path := writeTempConfig(t, `{
		"version": 1,
		"jwt": {"algorithm": "HS256"},
		"rate_limit": {"algorithm": "token_bucket", "requests_per_second": 10, "burst_size": 5, "window_duration": 1},
		"routers": [
			{
				"external_path": "/widgets",
				"internal_path": "/v1/widgets",
				"methods": ["GET"],
				"backends": [{"host": "widgets.internal", "port": 8080}]
			}
		]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Routers) != 1 {
		t.Fatalf("expected 1 route, got %d", len(cfg.Routers))
	}
	if cfg.Routers[0].ExternalPath != "/widgets" {
		t.Errorf("unexpected external_path %q", cfg.Routers[0].ExternalPath)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("KAIROS_TEST_HOST", "widgets.example.internal")
	path := writeTempConfig(t, `{
		"version": 1,
		"jwt": {"algorithm": "HS256"},
		"rate_limit": {"algorithm": "token_bucket", "requests_per_second": 10, "burst_size": 5, "window_duration": 1},
		"routers": [
			{
				"external_path": "/widgets",
				"internal_path": "/v1/widgets",
				"methods": ["GET"],
				"backends": [{"host": "${KAIROS_TEST_HOST}", "port": 8080}]
			}
		]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Routers[0].Backends[0].Host != "widgets.example.internal" {
		t.Errorf("expected expanded host, got %q", cfg.Routers[0].Backends[0].Host)
	}
}

func TestLoadExpandsEnvVarDefault(t *testing.T) {
	path := writeTempConfig(t, `{
		"version": 1,
		"jwt": {"algorithm": "HS256"},
		"rate_limit": {"algorithm": "token_bucket", "requests_per_second": 10, "burst_size": 5, "window_duration": 1},
		"routers": [
			{
				"external_path": "/widgets",
				"internal_path": "/v1/widgets",
				"methods": ["GET"],
				"backends": [{"host": "${KAIROS_UNSET_HOST:-fallback.internal}", "port": 8080}]
			}
		]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Routers[0].Backends[0].Host != "fallback.internal" {
		t.Errorf("expected fallback default host, got %q", cfg.Routers[0].Backends[0].Host)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeTempConfig(t, `{
		"version": 1,
		"routers": [
			{"external_path": "", "internal_path": "/v1/widgets", "methods": ["GET"], "backends": [{"host": "h", "port": 8080}]}
		]
	}`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject an invalid config")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json")); err == nil {
		t.Fatal("expected Load to fail for a missing file")
	}
}
