package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// swapTracerProvider installs a synchronous in-memory exporter as the global
// tracer provider for the duration of the test and returns it.
func swapTracerProvider(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	return exp
}

func TestStartSpan_UsesGlobalProvider(t *testing.T) {
	exp := swapTracerProvider(t)

	_, span := StartSpan(context.Background(), "bridge.start")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	if spans[0].Name != "bridge.start" {
		t.Errorf("span name = %q, want bridge.start", spans[0].Name)
	}
}

func TestCorrelationID(t *testing.T) {
	swapTracerProvider(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("correlation ID without a span = %q, want empty", got)
	}

	ctx, span := StartSpan(context.Background(), "op")
	defer span.End()
	got := CorrelationID(ctx)
	if want := span.SpanContext().TraceID().String(); got != want {
		t.Errorf("correlation ID = %q, want trace ID %q", got, want)
	}
}
