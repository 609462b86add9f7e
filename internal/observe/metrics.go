// Package observe provides application-wide observability primitives for
// dialmap: OpenTelemetry metrics and the Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all dialmap metrics.
const meterName = "github.com/MrWong99/dialmap"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// CallDuration tracks full call lifetimes, dial to completion event.
	CallDuration metric.Float64Histogram

	// TranscriptionDuration tracks batch transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// LLMDuration tracks planning-model request latency.
	LLMDuration metric.Float64Histogram

	// --- Counters ---

	// Calls counts placed calls. Use with attribute:
	//   attribute.String("status", "succeeded"|"failed")
	Calls metric.Int64Counter

	// CallFailures counts failed exploration tasks. Use with attribute:
	//   attribute.String("kind", ...) matching the task failure kinds.
	CallFailures metric.Int64Counter

	// Nodes counts conversation states discovered.
	Nodes metric.Int64Counter

	// Edges counts transitions discovered.
	Edges metric.Int64Counter

	// DiarizationSuspect counts transcripts whose speaker labels did not
	// line up with the scripted responses.
	DiarizationSuspect metric.Int64Counter

	// --- Gauges ---

	// InFlightCalls tracks calls currently between dial and completion.
	InFlightCalls metric.Int64UpDownCounter

	// FrontierSize tracks pending exploration entries.
	FrontierSize metric.Int64UpDownCounter

	// --- HTTP ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// callBuckets defines histogram bucket boundaries (in seconds). Calls run
// tens of seconds to minutes; transcription and model calls run well under
// ten seconds, which the lower buckets cover.
var callBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CallDuration, err = m.Float64Histogram("dialmap.call.duration",
		metric.WithDescription("Duration of outbound calls, dial to completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("dialmap.transcription.duration",
		metric.WithDescription("Latency of batch transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("dialmap.llm.duration",
		metric.WithDescription("Latency of planning-model requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Calls, err = m.Int64Counter("dialmap.calls",
		metric.WithDescription("Total calls placed, by final status."),
	); err != nil {
		return nil, err
	}
	if met.CallFailures, err = m.Int64Counter("dialmap.call.failures",
		metric.WithDescription("Total failed exploration tasks by failure kind."),
	); err != nil {
		return nil, err
	}
	if met.Nodes, err = m.Int64Counter("dialmap.graph.nodes",
		metric.WithDescription("Total conversation states discovered."),
	); err != nil {
		return nil, err
	}
	if met.Edges, err = m.Int64Counter("dialmap.graph.edges",
		metric.WithDescription("Total transitions discovered."),
	); err != nil {
		return nil, err
	}
	if met.DiarizationSuspect, err = m.Int64Counter("dialmap.transcription.diarization_suspect",
		metric.WithDescription("Transcripts whose speaker labels disagreed with the scripted responses."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.InFlightCalls, err = m.Int64UpDownCounter("dialmap.calls.in_flight",
		metric.WithDescription("Calls currently between dial and completion."),
	); err != nil {
		return nil, err
	}
	if met.FrontierSize, err = m.Int64UpDownCounter("dialmap.frontier.size",
		metric.WithDescription("Pending exploration entries."),
	); err != nil {
		return nil, err
	}

	// HTTP histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("dialmap.http.request.duration",
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

// RecordCall records a completed call with its final status and duration.
func (m *Metrics) RecordCall(ctx context.Context, status string, seconds float64) {
	m.Calls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.CallDuration.Record(ctx, seconds)
}

// RecordFailure records a failed exploration task by failure kind.
func (m *Metrics) RecordFailure(ctx context.Context, kind string) {
	m.CallFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
