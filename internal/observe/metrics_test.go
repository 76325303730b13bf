package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics creates a Metrics instance backed by a manual reader so the
// test can collect and inspect recorded data.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// findMetric locates a metric by name in collected resource metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	m, _ := newTestMetrics(t)

	if m.FramesForwarded == nil || m.FramesInjected == nil ||
		m.PlaybackBytesDropped == nil || m.WarmupEvents == nil ||
		m.SinkErrors == nil || m.ActiveSessions == nil ||
		m.CommandDuration == nil || m.SessionDuration == nil ||
		m.HTTPRequestDuration == nil {
		t.Fatal("NewMetrics left an instrument nil")
	}
}

func TestFramesForwarded_Counts(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FramesForwarded.Add(ctx, 3)
	m.FramesForwarded.Add(ctx, 2)

	rm := collect(t, reader)
	met := findMetric(rm, "callbridge.frames.forwarded")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not an int64 sum")
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 5 {
		t.Errorf("unexpected data points: %+v", sum.DataPoints)
	}
}

func TestActiveSessions_UpDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "callbridge.active_sessions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not an int64 sum")
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("unexpected data points: %+v", sum.DataPoints)
	}
}

func TestRecordCommand_Attributes(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordCommand(context.Background(), "start", "ok", 0.003)

	rm := collect(t, reader)
	met := findMetric(rm, "callbridge.command.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("expected 1 data point, got %d", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	foundAction, foundStatus := false, false
	for _, kv := range dp.Attributes.ToSlice() {
		if string(kv.Key) == "action" && kv.Value.AsString() == "start" {
			foundAction = true
		}
		if string(kv.Key) == "status" && kv.Value.AsString() == "ok" {
			foundStatus = true
		}
	}
	if !foundAction || !foundStatus {
		t.Errorf("missing attributes on data point: %+v", dp.Attributes.ToSlice())
	}
}

func TestRecordSinkError_Kind(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordSinkError(context.Background(), "send")
	m.RecordSinkError(context.Background(), "send")

	rm := collect(t, reader)
	met := findMetric(rm, "callbridge.sink.errors")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not an int64 sum")
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
		t.Errorf("unexpected data points: %+v", sum.DataPoints)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different instances")
	}
}
