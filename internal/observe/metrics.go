// Package observe provides observability primitives for mockprep:
// OpenTelemetry metrics and tracing, trace-aware logging, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed in
// Prometheus text format by the handler returned from [InitProvider]. Tests
// should use [NewMetrics] with their own [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all mockprep metrics.
const meterName = "github.com/MrWong99/mockprep"

// Metrics holds all OpenTelemetry metric instruments for the application.
type Metrics struct {
	// GenerationDuration tracks text-generation latency.
	// Attributes: provider, status.
	GenerationDuration metric.Float64Histogram

	// GenerationRequests counts text-generation calls.
	// Attributes: provider, status ("ok", "error", "empty", "rejected").
	GenerationRequests metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes.
	// Attributes: name, to.
	BreakerTransitions metric.Int64Counter

	// InterviewsGenerated counts interviews written after a successful
	// generation. Attributes: op ("create", "update").
	InterviewsGenerated metric.Int64Counter

	// Gradings counts grading outcomes. Attributes: outcome ("graded", "fallback").
	Gradings metric.Int64Counter

	// AnswerSaves counts save attempts. Attributes: outcome ("saved", "duplicate", "error").
	AnswerSaves metric.Int64Counter

	// TranscriptSegments counts recognised speech segments. Attributes: kind ("partial", "final").
	TranscriptSegments metric.Int64Counter

	// StoreDuration tracks document store latency. Attributes: op, collection.
	StoreDuration metric.Float64Histogram

	// ActiveAttempts tracks open answer attempts.
	ActiveAttempts metric.Int64UpDownCounter

	// ActiveCaptures tracks live speech capture streams.
	ActiveCaptures metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time.
	// Attributes: method, route.
	HTTPRequestDuration metric.Float64Histogram
}

// generationBuckets are tuned for model round-trips, which take seconds.
var generationBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

var storeBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.GenerationDuration, err = m.Float64Histogram("mockprep.generation.duration",
		metric.WithDescription("Latency of text generation requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(generationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerationRequests, err = m.Int64Counter("mockprep.generation.requests",
		metric.WithDescription("Text generation requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("mockprep.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions."),
	); err != nil {
		return nil, err
	}
	if met.InterviewsGenerated, err = m.Int64Counter("mockprep.interviews.generated",
		metric.WithDescription("Interviews persisted after question generation."),
	); err != nil {
		return nil, err
	}
	if met.Gradings, err = m.Int64Counter("mockprep.gradings",
		metric.WithDescription("Answer gradings by outcome."),
	); err != nil {
		return nil, err
	}
	if met.AnswerSaves, err = m.Int64Counter("mockprep.answers.saves",
		metric.WithDescription("Answer save attempts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptSegments, err = m.Int64Counter("mockprep.transcript.segments",
		metric.WithDescription("Speech recognition segments by kind."),
	); err != nil {
		return nil, err
	}
	if met.StoreDuration, err = m.Float64Histogram("mockprep.store.duration",
		metric.WithDescription("Latency of document store operations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(storeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveAttempts, err = m.Int64UpDownCounter("mockprep.active_attempts",
		metric.WithDescription("Number of open answer attempts."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCaptures, err = m.Int64UpDownCounter("mockprep.active_captures",
		metric.WithDescription("Number of live speech capture streams."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("mockprep.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call from [otel.GetMeterProvider]. Call it after [InitProvider].
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordGeneration records one text generation call.
func (m *Metrics) RecordGeneration(ctx context.Context, provider, status string, seconds float64) {
	attrs := metric.WithAttributes(Attr("provider", provider), Attr("status", status))
	m.GenerationRequests.Add(ctx, 1, attrs)
	if status != "rejected" {
		m.GenerationDuration.Record(ctx, seconds, attrs)
	}
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(Attr("name", name), Attr("to", to)))
}

// RecordInterview records a persisted interview generation.
func (m *Metrics) RecordInterview(ctx context.Context, op string) {
	m.InterviewsGenerated.Add(ctx, 1, metric.WithAttributes(Attr("op", op)))
}

// RecordGrading records a grading outcome.
func (m *Metrics) RecordGrading(ctx context.Context, outcome string) {
	m.Gradings.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordAnswerSave records an answer save outcome.
func (m *Metrics) RecordAnswerSave(ctx context.Context, outcome string) {
	m.AnswerSaves.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordSegment records a recognised speech segment.
func (m *Metrics) RecordSegment(ctx context.Context, final bool) {
	kind := "partial"
	if final {
		kind = "final"
	}
	m.TranscriptSegments.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind)))
}

// RecordStoreOp records the latency of a document store operation.
func (m *Metrics) RecordStoreOp(ctx context.Context, op, collection string, seconds float64) {
	m.StoreDuration.Record(ctx, seconds, metric.WithAttributes(Attr("op", op), Attr("collection", collection)))
}
