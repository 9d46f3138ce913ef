package config

import (
	"sync/atomic"
)

// Store holds the single shared ActiveConfig reference behind a lock-free
// pointer cell. Snapshot is the only thing the hot request path calls;
// Replace and ReloadFromFile are write paths used by the management API
// and the file watcher.
type Store struct {
	current atomic.Pointer[ActiveConfig]
	path    string
}

// NewStore returns a Store already holding cfg. cfg is validated by the
// caller (typically Load) before construction.
func NewStore(cfg *ActiveConfig) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// SetSourcePath records the on-disk path ReloadFromFile re-reads from.
func (s *Store) SetSourcePath(path string) {
	s.path = path
}

// SourcePath returns the on-disk path configured via SetSourcePath.
func (s *Store) SourcePath() string {
	return s.path
}

// Snapshot returns the currently active configuration. Cheap: a single
// atomic load, safe to call once per incoming request.
func (s *Store) Snapshot() *ActiveConfig {
	return s.current.Load()
}

// Replace validates candidate and, on success, atomically publishes it as
// the new ActiveConfig. The previous config remains active on failure.
func (s *Store) Replace(candidate *ActiveConfig) error {
	if err := Validate(candidate); err != nil {
		return err
	}
	s.current.Store(candidate)
	return nil
}

// ReloadFromFile re-reads the configuration source at path (or the stored
// SourcePath if path is empty) and behaves as Replace.
func (s *Store) ReloadFromFile(path string) error {
	if path == "" {
		path = s.path
	}
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	if err := s.Replace(cfg); err != nil {
		return err
	}
	s.path = path
	return nil
}
