// Package analysis turns the new items of one run into a single validated
// AnalysisResult. It bounds the payload, calls the generative backend through
// the retry policy and checks the response mechanically before anything
// downstream sees it.
package analysis

import (
	"errors"
)

// Sentinel errors for analysis. Every failure returned by Invoker.Analyze
// wraps exactly one of them.
var (
	// ErrNothingToAnalyze is returned when no item was passed in.
	ErrNothingToAnalyze = errors.New("no items to analyze")

	// ErrBackendUnavailable means the backend call failed after all retries.
	ErrBackendUnavailable = errors.New("analysis backend unavailable")

	// ErrMalformedResponse means the response was not exactly one JSON object
	// of string fields.
	ErrMalformedResponse = errors.New("malformed analysis response")

	// ErrMissingField means a required key was absent, null or blank.
	ErrMissingField = errors.New("analysis response missing field")

	// ErrInvalidSentiment means sentiment was not BULLISH or BEARISH.
	ErrInvalidSentiment = errors.New("analysis response has invalid sentiment")
)

// Outcome labels used for metrics and run reports.
const (
	OutcomeSuccess            = "success"
	OutcomeTruncated          = "truncated"
	OutcomeSkipped            = "skipped"
	OutcomeBackendUnavailable = "backend_unavailable"
	OutcomeMalformed          = "malformed"
	OutcomeMissingField       = "missing_field"
	OutcomeInvalidSentiment   = "invalid_sentiment"
	OutcomeError              = "error"
)

// Classify maps an Analyze error to its outcome label.
func Classify(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrNothingToAnalyze):
		return OutcomeSkipped
	case errors.Is(err, ErrBackendUnavailable):
		return OutcomeBackendUnavailable
	case errors.Is(err, ErrMissingField):
		return OutcomeMissingField
	case errors.Is(err, ErrInvalidSentiment):
		return OutcomeInvalidSentiment
	case errors.Is(err, ErrMalformedResponse):
		return OutcomeMalformed
	default:
		return OutcomeError
	}
}
