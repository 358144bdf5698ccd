package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/lectern"

// Tracer returns the lectern tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// FragmentSpan starts the span covering one transcript fragment. The
// returned func ends it; outcome is "emitted" or the drop reason, and a
// non-nil err marks the span failed.
func FragmentSpan(ctx context.Context, sttConfidence float64) (context.Context, func(outcome string, err error)) {
	ctx, span := StartSpan(ctx, "transcript.fragment",
		trace.WithAttributes(attribute.Float64("lectern.stt_confidence", sttConfidence)),
	)
	return ctx, func(outcome string, err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("lectern.outcome", outcome))
		}
		span.End()
	}
}

// CorrelationID is the trace ID of the span in ctx, or "" without one.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id attached when
// ctx carries a span.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
