// Package pipeline sequences one run: load the processed ids, ingest, analyse,
// render and report, publish, then commit the ids once. Only a corrupt state
// file or a failed commit aborts a run; everything else degrades it.
package pipeline

import "errors"

var (
	// ErrLoadState wraps a failure to read the processed id state.
	ErrLoadState = errors.New("load processed ids")

	// ErrCommitState wraps a failure to persist the processed id state.
	ErrCommitState = errors.New("commit processed ids")
)
