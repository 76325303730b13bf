// Package observe provides application-wide observability primitives for
// callbridge: OpenTelemetry metrics, structured logging helpers, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all callbridge metrics.
const meterName = "github.com/callbridge-io/callbridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Media path counters ---

	// FramesForwarded counts call frames forwarded to sinks. Use with
	// attribute: attribute.String("encoding", ...)
	FramesForwarded metric.Int64Counter

	// FramesInjected counts playback quanta injected into calls.
	FramesInjected metric.Int64Counter

	// PlaybackBytesDropped counts playback bytes discarded by buffer
	// overrun protection.
	PlaybackBytesDropped metric.Int64Counter

	// WarmupEvents counts playback warmup completions (buffer arming).
	WarmupEvents metric.Int64Counter

	// --- Error counters ---

	// SinkErrors counts sink transport failures. Use with attribute:
	//   attribute.String("kind", ...)
	SinkErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live bridge sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Latency histograms ---

	// CommandDuration tracks control command processing time. Use with
	// attributes: attribute.String("action", ...), attribute.String("status", ...)
	CommandDuration metric.Float64Histogram

	// SessionDuration tracks total session lifetime, recorded at cleanup.
	SessionDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// commandBuckets defines histogram bucket boundaries (in seconds) optimised
// for control-plane command latencies.
var commandBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// sessionBuckets defines histogram bucket boundaries (in seconds) for call
// session lifetimes.
var sessionBuckets = []float64{
	1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Media path counters.
	if met.FramesForwarded, err = m.Int64Counter("callbridge.frames.forwarded",
		metric.WithDescription("Total call frames forwarded to sinks by encoding."),
	); err != nil {
		return nil, err
	}
	if met.FramesInjected, err = m.Int64Counter("callbridge.frames.injected",
		metric.WithDescription("Total playback quanta injected into calls."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackBytesDropped, err = m.Int64Counter("callbridge.playback.bytes_dropped",
		metric.WithDescription("Total playback bytes discarded by overrun protection."),
	); err != nil {
		return nil, err
	}
	if met.WarmupEvents, err = m.Int64Counter("callbridge.playback.warmups",
		metric.WithDescription("Total playback warmup completions."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.SinkErrors, err = m.Int64Counter("callbridge.sink.errors",
		metric.WithDescription("Total sink transport failures by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("callbridge.active_sessions",
		metric.WithDescription("Number of live bridge sessions."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.CommandDuration, err = m.Float64Histogram("callbridge.command.duration",
		metric.WithDescription("Control command latency by action and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(commandBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("callbridge.session.duration",
		metric.WithDescription("Bridge session lifetime."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("callbridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCommand is a convenience method that records one control command
// with the standard attribute set.
func (m *Metrics) RecordCommand(ctx context.Context, action, status string, seconds float64) {
	m.CommandDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("status", status),
		),
	)
}

// RecordSinkError is a convenience method that records a sink failure
// counter increment.
func (m *Metrics) RecordSinkError(ctx context.Context, kind string) {
	m.SinkErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
