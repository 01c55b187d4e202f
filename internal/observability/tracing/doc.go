// Package tracing provides OpenTelemetry spans for pipeline stages and
// outbound HTTP calls. Without an installed provider every span is a no-op.
package tracing
