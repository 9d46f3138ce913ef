package config

import (
	"os"
	"testing"
	"time"
)

func TestWatcherReloadsOnFileWrite(t *testing.T) {
	path := writeTempConfig(t, `{
		"version": 1,
		"jwt": {"algorithm": "HS256"},
		"rate_limit": {"algorithm": "token_bucket", "requests_per_second": 10, "burst_size": 5, "window_duration": 1},
		"routers": []
	}`)

	store := NewStore(DefaultActiveConfig())
	store.SetSourcePath(path)

	watcher, err := NewWatcher(store, path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	watcher.SetDebounce(10 * time.Millisecond)
	defer watcher.Stop()

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{
		"version": 9,
		"jwt": {"algorithm": "HS256"},
		"rate_limit": {"algorithm": "token_bucket", "requests_per_second": 10, "burst_size": 5, "window_duration": 1},
		"routers": []
	}`), 0o644); err != nil {
		t.Fatalf("rewrite config file: %v", err)
	}

	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			if store.Snapshot().Version == 9 {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for reload, last version %d", store.Snapshot().Version)
		}
	}
}

func TestWatcherInvokesOnErrorForInvalidRewrite(t *testing.T) {
	path := writeTempConfig(t, `{
		"version": 1,
		"jwt": {"algorithm": "HS256"},
		"rate_limit": {"algorithm": "token_bucket", "requests_per_second": 10, "burst_size": 5, "window_duration": 1},
		"routers": []
	}`)

	store := NewStore(DefaultActiveConfig())
	store.SetSourcePath(path)

	watcher, err := NewWatcher(store, path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	watcher.SetDebounce(10 * time.Millisecond)
	defer watcher.Stop()

	errCh := make(chan error, 1)
	watcher.OnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	if err := watcher.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"version": 1, "routers": [{"external_path": ""}]}`), 0o644); err != nil {
		t.Fatalf("rewrite config file: %v", err)
	}

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnError callback")
	}
}
