// Package proxy performs the outbound call to a backend chosen by the
// load balancer and streams the response back, using one pooled
// *http.Client-equivalent transport per upstream scheme.
package proxy

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"
)

// TransportConfig configures the transports a TransportPool builds.
type TransportConfig struct {
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	ExpectContinueTimeout time.Duration
	ForceHTTP2            bool
}

// DefaultTransportConfig holds production-sensible pool sizing.
var DefaultTransportConfig = TransportConfig{
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	DialTimeout:           30 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceHTTP2:            true,
}

// NewTransport builds an *http.Transport from cfg.
func NewTransport(cfg TransportConfig) *http.Transport {
	dialer := &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,
		ForceAttemptHTTP2:     cfg.ForceHTTP2,
		TLSClientConfig:       &tls.Config{},
	}
}

// TransportPool lazily builds and caches one transport per upstream
// scheme (http, https), avoiding a fresh dialer/TLS config per request.
type TransportPool struct {
	mu         sync.RWMutex
	cfg        TransportConfig
	transports map[string]*http.Transport
}

// NewTransportPool builds a pool using DefaultTransportConfig.
func NewTransportPool() *TransportPool {
	return NewTransportPoolWithConfig(DefaultTransportConfig)
}

// NewTransportPoolWithConfig builds a pool using cfg for every transport
// it creates.
func NewTransportPoolWithConfig(cfg TransportConfig) *TransportPool {
	return &TransportPool{cfg: cfg, transports: make(map[string]*http.Transport)}
}

// Get returns the transport for scheme, creating it on first use.
func (tp *TransportPool) Get(scheme string) http.RoundTripper {
	tp.mu.RLock()
	t, ok := tp.transports[scheme]
	tp.mu.RUnlock()
	if ok {
		return t
	}

	tp.mu.Lock()
	defer tp.mu.Unlock()
	if t, ok := tp.transports[scheme]; ok {
		return t
	}
	t = NewTransport(tp.cfg)
	tp.transports[scheme] = t
	return t
}

// CloseIdleConnections releases idle connections on every pooled transport.
func (tp *TransportPool) CloseIdleConnections() {
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	for _, t := range tp.transports {
		t.CloseIdleConnections()
	}
}
