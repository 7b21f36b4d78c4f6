package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics records outbound payment gateway calls.
type GatewayMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewGatewayMetrics registers the gateway metrics on the provided registerer.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mpesa_gateway_requests_total",
		Help: "Payment gateway calls by operation and outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mpesa_gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"operation"})
	reg.MustRegister(requests, duration)
	return &GatewayMetrics{requests: requests, duration: duration}
}

// Observe records one call. Outcome is "ok" or an error kind.
func (g *GatewayMetrics) Observe(operation, outcome string, took time.Duration) {
	if g == nil || g.requests == nil {
		return
	}
	g.requests.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
	g.duration.WithLabelValues(normalizeLabel(operation)).Observe(took.Seconds())
}
