package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "market-xbot"

// GetTracer returns the pipeline tracer from the current global provider.
// It is looked up on every call so a provider installed later takes effect.
func GetTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartStage opens a span for one pipeline stage.
//
//	ctx, span := tracing.StartStage(ctx, "pipeline.analyze")
//	defer func() { tracing.EndStage(span, err) }()
func StartStage(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndStage records err on span, if any, and ends it.
func EndStage(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
