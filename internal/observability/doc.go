// Package observability groups logging, Prometheus metrics and OpenTelemetry
// tracing for the pipeline.
//
// Subpackages:
//   - logging: slog construction, run id tagging, secret masking
//   - metrics: Prometheus collectors and record helpers
//   - tracing: stage spans and a tracing http.RoundTripper
package observability
