// Package ingest gathers content items from every source connector and
// separates the ones not yet processed.
package ingest

import "errors"

// Sentinel errors for ingestion.
var (
	// ErrSourceFailed wraps a connector error. The aggregator never returns it;
	// it is attached to SourceFailure for logging and reporting.
	ErrSourceFailed = errors.New("source connector failed")

	// ErrConnectorPanic marks a connector that panicked instead of returning.
	ErrConnectorPanic = errors.New("source connector panicked")
)
