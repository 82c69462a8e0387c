package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the Rehearse tracer.
const tracerName = "github.com/MrWong99/rehearse"

// Tracer returns the package-level [trace.Tracer] for Rehearse. It uses the
// globally registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartAttemptSpan starts a span for a single provider attempt, tagged with
// the capability category and model id.
func StartAttemptSpan(ctx context.Context, category, model string) (context.Context, trace.Span) {
	return StartSpan(ctx, category+".attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rehearse.category", category),
			attribute.String("rehearse.model", model),
		),
	)
}

// EndSpan records err on span (if non-nil) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] enriched with trace_id and span_id from
// the OTel span context in ctx. When no active span is present, the returned
// logger is the default slog logger without extra attributes.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
