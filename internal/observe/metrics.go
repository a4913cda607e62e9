// Package observe provides application-wide observability primitives for
// drumcoach: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all drumcoach metrics.
const meterName = "github.com/MrWong99/drumcoach"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Analysis ---

	// FrameAnalysisDuration tracks the time spent analysing one frame and
	// running the onset detector on it.
	FrameAnalysisDuration metric.Float64Histogram

	// Onsets counts detected hits. Use with attribute:
	//   attribute.String("instrument", ...)
	Onsets metric.Int64Counter

	// --- Scoring ---

	// Verdicts counts scoring events. Use with attributes:
	//   attribute.String("verdict", ...), attribute.String("outcome", ...)
	Verdicts metric.Int64Counter

	// TimingError records the signed timing error of matched hits in
	// milliseconds.
	TimingError metric.Float64Histogram

	// --- Gauges ---

	// ActiveSessions tracks the number of running practice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// analysisBuckets defines histogram bucket boundaries (in seconds) for the
// per-frame work, which must stay well below one analysis tick.
var analysisBuckets = []float64{
	0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02,
}

// timingErrorBuckets defines histogram bucket boundaries (in milliseconds)
// for signed hit errors.
var timingErrorBuckets = []float64{
	-100, -75, -50, -35, -20, -10, -5, 0, 5, 10, 20, 35, 50, 75, 100,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.FrameAnalysisDuration, err = m.Float64Histogram("drumcoach.frame_analysis.duration",
		metric.WithDescription("Time spent analysing one audio frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(analysisBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TimingError, err = m.Float64Histogram("drumcoach.timing_error",
		metric.WithDescription("Signed timing error of matched hits; positive is late."),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(timingErrorBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Onsets, err = m.Int64Counter("drumcoach.onsets",
		metric.WithDescription("Total detected onsets by inferred instrument."),
	); err != nil {
		return nil, err
	}
	if met.Verdicts, err = m.Int64Counter("drumcoach.verdicts",
		metric.WithDescription("Total scoring events by verdict and outcome."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("drumcoach.active_sessions",
		metric.WithDescription("Number of running practice sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("drumcoach.http.request.duration",
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

// RecordOnset records one detected onset for the inferred instrument.
func (m *Metrics) RecordOnset(ctx context.Context, instrument string) {
	m.Onsets.Add(ctx, 1,
		metric.WithAttributes(attribute.String("instrument", instrument)),
	)
}

// RecordVerdict records one scoring event. hasError reports whether the event
// carries a timing error (matched hits); only those feed the error histogram.
func (m *Metrics) RecordVerdict(ctx context.Context, verdict, outcome string, errorMs float64, hasError bool) {
	m.Verdicts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("verdict", verdict),
			attribute.String("outcome", outcome),
		),
	)
	if hasError {
		m.TimingError.Record(ctx, errorMs)
	}
}

// RecordFrameAnalysis records the time spent on one frame.
func (m *Metrics) RecordFrameAnalysis(ctx context.Context, d time.Duration) {
	m.FrameAnalysisDuration.Record(ctx, d.Seconds())
}
