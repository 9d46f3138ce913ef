package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wudi/kairos/internal/adminapi"
	"github.com/wudi/kairos/internal/config"
	"github.com/wudi/kairos/internal/middleware"
	"github.com/wudi/kairos/internal/middleware/realip"
	"github.com/wudi/kairos/internal/obsv"
)

// Server wraps a Gateway with the listening HTTP server, the optional
// on-disk config watcher, and the process-level health/metrics endpoints.
type Server struct {
	gateway *Gateway
	store   *config.Store
	watcher *config.Watcher

	httpServer *http.Server
}

// ServerConfig carries Server's non-Gateway dependencies.
type ServerConfig struct {
	Addr string
	// TrustedProxyCIDRs configures which peers the real-IP middleware
	// trusts to supply X-Forwarded-For/X-Real-IP; nil trusts none and
	// falls back to r.RemoteAddr.
	TrustedProxyCIDRs []string
	RealIPHeaders     []string
}

// NewServer builds a Server around store, wiring the gateway-wide
// middleware chain and the process endpoints onto one http.Handler.
func NewServer(cfg ServerConfig, store *config.Store, metrics *obsv.Metrics) (*Server, error) {
	gw, err := New(store, metrics)
	if err != nil {
		return nil, err
	}

	realIP, err := realip.New(cfg.TrustedProxyCIDRs, cfg.RealIPHeaders, 0)
	if err != nil {
		return nil, err
	}

	s := &Server{gateway: gw, store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", obsv.Handler())
	adminChain := middleware.NewChain(middleware.RequestID(), middleware.Recovery(), middleware.AccessLog())
	mux.Handle("/api/", adminChain.Then(adminapi.New(store)))
	mux.Handle("/", Handler(gw, realIP))

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// WatchConfigFile starts a debounced fsnotify watcher that reloads store
// whenever configPath changes on disk, in addition to any reload the
// management API triggers directly through Store.Replace.
func (s *Server) WatchConfigFile(configPath string) error {
	w, err := config.NewWatcher(s.store, configPath)
	if err != nil {
		return err
	}
	w.OnError(func(err error) {
		obsv.Error("config watcher reload rejected", zap.Error(err))
	})
	if err := w.Start(); err != nil {
		return err
	}
	s.watcher = w
	return nil
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM, then shuts
// down gracefully.
func (s *Server) Run() error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("kairos listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Println("shutting down gracefully")
	return s.Shutdown(30 * time.Second)
}

// Shutdown gracefully stops the HTTP server, the config watcher, and the
// gateway's own background resources (connection pools, health checks).
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			log.Printf("config watcher stop error: %v", err)
		}
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}

	if err := s.gateway.Close(); err != nil {
		log.Printf("gateway close error: %v", err)
		return err
	}

	log.Println("server shutdown complete")
	return nil
}

// Gateway returns the underlying Gateway, for tests and the management API.
func (s *Server) Gateway() *Gateway { return s.gateway }

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	cfg := s.store.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if len(cfg.Routers) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"version": cfg.Version,
		"routes":  len(cfg.Routers),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	statuses := s.gateway.healthChecker.GetAllStatus()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(statuses)
}
