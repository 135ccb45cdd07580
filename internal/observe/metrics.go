// Package observe provides the observability primitives for learnchars:
// OpenTelemetry metrics, tracing, trace-aware logging and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed to
// Prometheus through the exporter bridge installed by [InitProvider]. Tests
// should build their own instance with [NewMetrics] and a
// [sdkmetric.ManualReader] rather than touching [DefaultMetrics].
package observe

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/learnchars"

// Metrics holds the metric instruments for the application. All fields are
// safe for concurrent use.
type Metrics struct {
	// Attempts counts graded attempts. Attributes: tier, stage, correct.
	Attempts metric.Int64Counter

	// Accuracy records the accuracy of every graded attempt, by tier.
	Accuracy metric.Float64Histogram

	// CaptureDuration records how long audio was captured per session.
	CaptureDuration metric.Float64Histogram

	// SessionOutcomes counts recording sessions by terminal state.
	SessionOutcomes metric.Int64Counter

	// ProviderRequests counts recognition streams opened. Attributes:
	// provider, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts recognition failures. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// SinkErrors counts attempt log writes that failed. Attribute: sink.
	SinkErrors metric.Int64Counter

	// ActiveSessions tracks live recording sessions (zero or one per
	// recorder).
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// captureBuckets are histogram boundaries (seconds) for utterance captures.
var captureBuckets = []float64{0.5, 1, 1.5, 2, 3, 5, 8, 13, 20, 30}

// accuracyBuckets mirror the tier thresholds so each tier boundary is visible.
var accuracyBuckets = []float64{0.1, 0.25, 0.4, 0.5, 0.6, 0.65, 0.7, 0.8, 0.85, 0.95, 1}

// NewMetrics creates a fully initialised [Metrics] from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Attempts, err = m.Int64Counter("learnchars.attempts",
		metric.WithDescription("Graded pronunciation attempts by tier, deciding stage and correctness."),
	); err != nil {
		return nil, err
	}
	if met.Accuracy, err = m.Float64Histogram("learnchars.attempt.accuracy",
		metric.WithDescription("Accuracy of graded attempts."),
		metric.WithExplicitBucketBoundaries(accuracyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CaptureDuration, err = m.Float64Histogram("learnchars.capture.duration",
		metric.WithDescription("Duration of captured audio per recording session."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(captureBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionOutcomes, err = m.Int64Counter("learnchars.recording.outcomes",
		metric.WithDescription("Recording sessions by terminal state."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("learnchars.provider.requests",
		metric.WithDescription("Recognition streams opened by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("learnchars.provider.errors",
		metric.WithDescription("Recognition provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.SinkErrors, err = m.Int64Counter("learnchars.attempt_log.errors",
		metric.WithDescription("Failed attempt log writes by sink."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("learnchars.active_sessions",
		metric.WithDescription("Number of live recording sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("learnchars.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, created on
// first call from [otel.GetMeterProvider].
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

// Attr is a shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAttempt records one graded attempt.
func (m *Metrics) RecordAttempt(ctx context.Context, tier, stage string, correct bool, accuracy float64) {
	m.Attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("stage", stage),
		attribute.String("correct", strconv.FormatBool(correct)),
	))
	m.Accuracy.Record(ctx, accuracy, metric.WithAttributes(attribute.String("tier", tier)))
}

// RecordSessionOutcome records a recording session reaching state, with the
// seconds of audio it captured.
func (m *Metrics) RecordSessionOutcome(ctx context.Context, state string, captured float64) {
	m.SessionOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
	if captured > 0 {
		m.CaptureDuration.Record(ctx, captured)
	}
}

// RecordProviderRequest records a recognition stream being opened.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
}

// RecordProviderError records a recognition provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// RecordSinkError records a failed attempt log write.
func (m *Metrics) RecordSinkError(ctx context.Context, sink string) {
	m.SinkErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
}
