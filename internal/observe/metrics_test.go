package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
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

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
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

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCall(ctx, "succeeded", 42.5)
	m.RecordCall(ctx, "failed", 3.1)

	rm := collect(t, reader)

	calls := findMetric(rm, "dialmap.calls")
	if calls == nil {
		t.Fatal("dialmap.calls not found")
	}
	sum, ok := calls.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("dialmap.calls: unexpected data type %T", calls.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("dialmap.calls total: want 2, got %d", total)
	}

	dur := findMetric(rm, "dialmap.call.duration")
	if dur == nil {
		t.Fatal("dialmap.call.duration not found")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("dialmap.call.duration: unexpected data type %T", dur.Data)
	}
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 2 {
		t.Error("dialmap.call.duration should carry two observations")
	}
}

func TestRecordFailure_Attributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFailure(ctx, "webhook_timeout")
	m.RecordFailure(ctx, "webhook_timeout")
	m.RecordFailure(ctx, "dial_failed")

	rm := collect(t, reader)
	failures := findMetric(rm, "dialmap.call.failures")
	if failures == nil {
		t.Fatal("dialmap.call.failures not found")
	}
	sum, ok := failures.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", failures.Data)
	}

	byKind := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		if v, found := dp.Attributes.Value(attribute.Key("kind")); found {
			byKind[v.AsString()] = dp.Value
		}
	}
	if byKind["webhook_timeout"] != 2 {
		t.Errorf("webhook_timeout: want 2, got %d", byKind["webhook_timeout"])
	}
	if byKind["dial_failed"] != 1 {
		t.Errorf("dial_failed: want 1, got %d", byKind["dial_failed"])
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.InFlightCalls.Add(ctx, 1)
	m.InFlightCalls.Add(ctx, 1)
	m.InFlightCalls.Add(ctx, -1)
	m.FrontierSize.Add(ctx, 5)

	rm := collect(t, reader)

	inflight := findMetric(rm, "dialmap.calls.in_flight")
	if inflight == nil {
		t.Fatal("dialmap.calls.in_flight not found")
	}
	sum, ok := inflight.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", inflight.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("in-flight gauge: want 1, got %+v", sum.DataPoints)
	}
}
