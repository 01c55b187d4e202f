package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"market-xbot/internal/pkg/config"
)

// WorkerMetrics covers the scheduler itself; per-stage pipeline metrics live
// in observability/metrics.
//
//   - worker_config_*: from config.ConfigMetrics
//   - worker_cron_job_runs_total{status}: started, success, failure, panic
//   - worker_cron_job_duration_seconds
//   - worker_cron_job_items_processed_total
//   - worker_cron_job_last_success_timestamp
type WorkerMetrics struct {
	*config.ConfigMetrics

	CronJobRunsTotal            *prometheus.CounterVec
	CronJobDurationSeconds      prometheus.Histogram
	CronJobItemsProcessedTotal  prometheus.Counter
	CronJobLastSuccessTimestamp prometheus.Gauge
}

// NewWorkerMetrics creates and registers the worker metrics on reg.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	f := promauto.With(reg)
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics(reg, "worker"),

		CronJobRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_cron_job_runs_total",
			Help: "Total number of scheduled pipeline runs by status",
		}, []string{"status"}),

		CronJobDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_cron_job_duration_seconds",
			Help:    "Duration of scheduled pipeline runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900},
		}),

		CronJobItemsProcessedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "worker_cron_job_items_processed_total",
			Help: "Total number of content items consumed across scheduled runs",
		}),

		CronJobLastSuccessTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "worker_cron_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful scheduled run",
		}),
	}
}

// RecordJobRun increments the run counter for status.
func (m *WorkerMetrics) RecordJobRun(status string) {
	m.CronJobRunsTotal.WithLabelValues(status).Inc()
}

// RecordJobDuration observes a run duration.
func (m *WorkerMetrics) RecordJobDuration(seconds float64) {
	m.CronJobDurationSeconds.Observe(seconds)
}

// RecordItemsProcessed adds the number of ids a run consumed.
func (m *WorkerMetrics) RecordItemsProcessed(count int) {
	if count > 0 {
		m.CronJobItemsProcessedTotal.Add(float64(count))
	}
}

// RecordLastSuccess stamps the current time.
func (m *WorkerMetrics) RecordLastSuccess() {
	m.CronJobLastSuccessTimestamp.SetToCurrentTime()
}
