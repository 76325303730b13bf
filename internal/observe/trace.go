package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// scopeName identifies callbridge as the instrumentation scope on every
// span this package starts.
const scopeName = "github.com/callbridge-io/callbridge"

// StartSpan opens a span on the globally registered tracer provider. The
// caller owns the span and must End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(scopeName).Start(ctx, name, opts...)
}

// CorrelationID is the request's trace ID, doubling as the correlation
// identifier surfaced to clients in the X-Correlation-ID header. Empty when
// ctx carries no recorded span.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
