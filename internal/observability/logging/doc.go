// Package logging provides slog construction and secret masking.
//
// Example usage:
//
//	logger := logging.NewLogger()
//	runLogger := logging.WithRunID(logger, uuid.NewString())
//	runLogger.Warn("analysis failed", slog.String("error", logging.SanitizeError(err)))
package logging
