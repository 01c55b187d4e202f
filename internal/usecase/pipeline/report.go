package pipeline

import (
	"time"

	"market-xbot/internal/domain/entity"
	"market-xbot/internal/usecase/ingest"
	"market-xbot/internal/usecase/publish"
)

// Status is the overall result of a run.
type Status string

const (
	// StatusCompleted means the run analysed new content and committed.
	StatusCompleted Status = "completed"
	// StatusNoNewItems means nothing new was found; state was not touched.
	StatusNoNewItems Status = "no_new_items"
	// StatusDegraded means the run committed but analysis failed or a
	// source was unavailable.
	StatusDegraded Status = "degraded"
	// StatusFailed means the run aborted; state was not touched.
	StatusFailed Status = "failed"
)

// RunReport describes one run for logs, metrics and the CLI.
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     Status

	NewNews        int
	NewForum       int
	Duplicates     int
	Invalid        int
	SourceFailures []ingest.SourceFailure

	Ticker          string
	Analysis        *entity.AnalysisResult
	AnalysisOutcome string
	AnalysisErr     error

	CardPath   string
	ReportPath string
	Publish    publish.Outcome

	// ConsumedIDs is how many ids this run added; ProcessedIDs is the size of
	// the committed set and PrunedIDs how many old ids were dropped.
	ConsumedIDs  int
	ProcessedIDs int
	PrunedIDs    int
}

// Duration is the wall time of the run.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Committed reports whether the run wrote the state.
func (r RunReport) Committed() bool {
	return r.Status == StatusCompleted || r.Status == StatusDegraded
}
