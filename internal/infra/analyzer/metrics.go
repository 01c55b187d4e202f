package analyzer

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives per-request backend measurements.
// Tests inject a fake; production uses PrometheusMetrics.
type MetricsRecorder interface {
	// RecordRequest records one request with status "success" or "error".
	RecordRequest(backend, status string, duration time.Duration)

	// RecordTokens adds token usage; direction is "input" or "output".
	RecordTokens(backend, direction string, n int64)
}

// PrometheusMetrics implements MetricsRecorder.
type PrometheusMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	tokens   *prometheus.CounterVec
}

var (
	prometheusMetricsInstance *PrometheusMetrics
	prometheusMetricsOnce     sync.Once
)

// getOrCreate registers c on the default registry, returning the already
// registered collector when a previous instance exists.
func getOrCreate[C prometheus.Collector](c C) C {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// NewPrometheusMetrics returns the process-wide recorder.
func NewPrometheusMetrics() *PrometheusMetrics {
	prometheusMetricsOnce.Do(func() {
		prometheusMetricsInstance = &PrometheusMetrics{
			requests: getOrCreate(prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "xbot_analyzer_requests_total",
				Help: "Analysis backend requests by backend and status",
			}, []string{"backend", "status"})),
			duration: getOrCreate(prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "xbot_analyzer_request_duration_seconds",
				Help:    "Latency of a single analysis backend request",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			}, []string{"backend"})),
			tokens: getOrCreate(prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "xbot_analyzer_tokens_total",
				Help: "Tokens consumed by analysis requests",
			}, []string{"backend", "direction"})),
		}
	})
	return prometheusMetricsInstance
}

// RecordRequest implements MetricsRecorder.
func (m *PrometheusMetrics) RecordRequest(backend, status string, duration time.Duration) {
	m.requests.WithLabelValues(backend, status).Inc()
	m.duration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordTokens implements MetricsRecorder.
func (m *PrometheusMetrics) RecordTokens(backend, direction string, n int64) {
	if n <= 0 {
		return
	}
	m.tokens.WithLabelValues(backend, direction).Add(float64(n))
}
