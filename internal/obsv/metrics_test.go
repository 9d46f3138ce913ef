package obsv

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetricsRecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues("/cats/{id}", "GET", "200").Inc()
	m.RequestsTotal.WithLabelValues("/cats/{id}", "GET", "200").Inc()

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	var found *dto.MetricFamily
	for _, mf := range metricFamilies {
		if mf.GetName() == "kairos_requests_total" {
			found = mf
		}
	}
	if found == nil {
		t.Fatal("kairos_requests_total not registered")
	}
	if got := found.Metric[0].Counter.GetValue(); got != 2 {
		t.Errorf("counter value = %v, want 2", got)
	}
}

func TestBreakerStateGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.BreakerState.WithLabelValues("/api/v1/users/{id}", "http://backend:8080").Set(2)

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	for _, mf := range metricFamilies {
		if mf.GetName() == "kairos_circuit_breaker_state" {
			if got := mf.Metric[0].Gauge.GetValue(); got != 2 {
				t.Errorf("gauge value = %v, want 2", got)
			}
			return
		}
	}
	t.Fatal("kairos_circuit_breaker_state not registered")
}
