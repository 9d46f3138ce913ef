package obsv

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the gateway's fixed set of Prometheus collectors. Exposition
// formatting itself is out of scope. The gateway records RequestsTotal,
// RequestDuration and RateLimitRejected per request; BreakerState is
// registered but no component sets it.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	BreakerState       *prometheus.GaugeVec
	RateLimitRejected  *prometheus.CounterVec
}

// NewMetrics registers the collectors against reg and returns the handles
// used to record observations. Pass prometheus.NewRegistry() for an
// isolated registry (tests) or prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kairos_requests_total",
			Help: "Total requests processed by the gateway, by route and status.",
		}, []string{"route", "method", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kairos_request_duration_seconds",
			Help:    "End-to-end request duration observed at the gateway.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kairos_circuit_breaker_state",
			Help: "Circuit breaker state per (route, backend): 0=closed, 1=half_open, 2=open.",
		}, []string{"route", "backend"}),

		RateLimitRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kairos_ratelimit_rejected_total",
			Help: "Requests rejected by the rate limiter, by route.",
		}, []string{"route"}),
	}
}

// Handler returns the HTTP handler serving /metrics in Prometheus text
// exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
