// Package metrics provides centralized Prometheus metrics for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run metrics track whole pipeline executions
var (
	// PipelineRunsTotal counts runs by final status
	// (completed, nothing_new, degraded, failed)
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbot_pipeline_runs_total",
			Help: "Total number of pipeline runs by status",
		},
		[]string{"status"},
	)

	// PipelineRunDuration measures a full run
	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "xbot_pipeline_run_duration_seconds",
			Help:    "Duration of a pipeline run in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// ProcessedIDsTotal is the size of the committed processed id set
	ProcessedIDsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "xbot_processed_ids",
			Help: "Number of ids in the committed processed id set",
		},
	)
)

// Ingestion metrics
var (
	// ItemsIngestedTotal counts items by source and classification
	// (new, duplicate, invalid)
	ItemsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbot_items_ingested_total",
			Help: "Total number of ingested items by source and kind",
		},
		[]string{"source", "kind"},
	)

	// SourceFailuresTotal counts connector failures by source
	SourceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbot_source_failures_total",
			Help: "Total number of source connector failures",
		},
		[]string{"source"},
	)
)

// Downstream call metrics
var (
	// AnalysisTotal counts analysis attempts by outcome
	// (success, backend_unavailable, malformed, missing_field, invalid_sentiment)
	AnalysisTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbot_analysis_total",
			Help: "Total number of analysis invocations by outcome",
		},
		[]string{"outcome"},
	)

	// AnalysisDuration measures analysis latency including retries
	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "xbot_analysis_duration_seconds",
			Help:    "Time taken by the analysis stage",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// PublishTotal counts publication outcomes
	// (published, denied, failed, skipped)
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbot_publish_total",
			Help: "Total number of publication outcomes",
		},
		[]string{"status"},
	)

	// RetryAttemptsTotal counts backoff retries by call site
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbot_retry_attempts_total",
			Help: "Total number of retries by call site",
		},
		[]string{"operation"},
	)

	// ArtifactFailuresTotal counts non-fatal artifact failures (card, report)
	ArtifactFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbot_artifact_failures_total",
			Help: "Total number of card or report write failures",
		},
		[]string{"artifact"},
	)
)
