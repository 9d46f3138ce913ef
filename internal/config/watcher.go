package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/wudi/kairos/internal/obsv"
	"go.uber.org/zap"
)

// Watcher drives unsolicited reloads of a Store whenever its on-disk
// config file changes underneath the running process.
type Watcher struct {
	watcher    *fsnotify.Watcher
	store      *Store
	configPath string
	debounce   time.Duration

	mu      sync.Mutex
	onError func(error)
}

// NewWatcher watches the directory containing configPath and reloads
// store whenever that file is written or recreated.
func NewWatcher(store *Store, configPath string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:    fsWatcher,
		store:      store,
		configPath: configPath,
		debounce:   500 * time.Millisecond,
	}, nil
}

// OnError registers a callback invoked when a debounced reload fails
// validation or the file cannot be read. The previous config stays active.
func (w *Watcher) OnError(cb func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = cb
}

// Start begins watching for configuration changes in a background
// goroutine. Stop must be called to release the underlying fsnotify
// watcher.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.configPath)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	go w.watch()
	return nil
}

func (w *Watcher) watch() {
	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			obsv.Error("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	if err := w.store.ReloadFromFile(w.configPath); err != nil {
		obsv.Error("failed to reload config", zap.String("path", w.configPath), zap.Error(err))
		w.mu.Lock()
		cb := w.onError
		w.mu.Unlock()
		if cb != nil {
			cb(err)
		}
		return
	}
	obsv.Info("configuration reloaded", zap.String("path", w.configPath))
}

// Stop stops watching for changes.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// SetDebounce overrides the default 500ms debounce window.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}
