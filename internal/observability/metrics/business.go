package metrics

import (
	"time"
)

// RecordRun records the final status and duration of a pipeline run.
func RecordRun(status string, duration time.Duration) {
	PipelineRunsTotal.WithLabelValues(status).Inc()
	PipelineRunDuration.Observe(duration.Seconds())
}

// RecordIngested adds count items of kind for source.
// Zero counts are skipped so idle sources do not create empty series churn.
func RecordIngested(source, kind string, count int) {
	if count <= 0 {
		return
	}
	ItemsIngestedTotal.WithLabelValues(source, kind).Add(float64(count))
}

// RecordSourceFailure records a connector failure.
func RecordSourceFailure(source string) {
	SourceFailuresTotal.WithLabelValues(source).Inc()
}

// RecordAnalysis records an analysis outcome and its latency.
func RecordAnalysis(outcome string, duration time.Duration) {
	AnalysisTotal.WithLabelValues(outcome).Inc()
	AnalysisDuration.Observe(duration.Seconds())
}

// RecordPublish records a publication outcome.
func RecordPublish(status string) {
	PublishTotal.WithLabelValues(status).Inc()
}

// RecordRetry counts one backoff retry. Its signature matches retry.Config.OnRetry.
func RecordRetry(operation string, _ int, _ time.Duration, _ error) {
	RetryAttemptsTotal.WithLabelValues(operation).Inc()
}

// RecordArtifactFailure counts a failed card render or report append.
func RecordArtifactFailure(artifact string) {
	ArtifactFailuresTotal.WithLabelValues(artifact).Inc()
}

// UpdateProcessedIDs sets the committed set size.
func UpdateProcessedIDs(count int) {
	ProcessedIDsTotal.Set(float64(count))
}
