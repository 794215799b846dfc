package server

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-wide Prometheus collectors for the attestation
// pipeline. One instance is created at startup and shared across requests.
type Metrics struct {
	registry          *prometheus.Registry
	proofRequests     *prometheus.CounterVec
	proofDuration     prometheus.Histogram
}

// NewMetrics builds and registers the collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	proofRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attestor_proof_requests_total",
		Help: "Count of /api/generate-proof requests by outcome kind.",
	}, []string{"outcome"})

	proofDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attestor_proof_duration_seconds",
		Help:    "Wall-clock time spent generating a death attestation proof.",
		Buckets: prometheus.DefBuckets,
	})

	registry.MustRegister(proofRequests, proofDuration)

	return &Metrics{
		registry:      registry,
		proofRequests: proofRequests,
		proofDuration: proofDuration,
	}
}

// ObserveOutcome records one /api/generate-proof call's result kind.
func (m *Metrics) ObserveOutcome(outcome string) {
	m.proofRequests.WithLabelValues(outcome).Inc()
}

// ObserveDuration records one /api/generate-proof call's wall-clock duration.
func (m *Metrics) ObserveDuration(seconds float64) {
	m.proofDuration.Observe(seconds)
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HealthHandlers serves GET /health.
type HealthHandlers struct{}

// NewHealthHandlers creates the health-check handler.
func NewHealthHandlers() *HealthHandlers {
	return &HealthHandlers{}
}

// HandleHealth handles GET /health.
func (h *HealthHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
