// Package observe provides application-wide observability primitives for
// Rehearse: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped via
// the Prometheus exporter installed by [InitProvider]. A package-level default
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

// meterName is the instrumentation scope name used for all Rehearse metrics.
const meterName = "github.com/MrWong99/rehearse"

// Fallback outcome attribute values for [Metrics.RecordFallback].
const (
	OutcomeServed    = "served"
	OutcomeDegraded  = "degraded"
	OutcomeExhausted = "exhausted"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per capability category ---

	// STTDuration tracks speech-to-text transcription latency per attempt.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency per attempt.
	TTSDuration metric.Float64Histogram

	// ChatDuration tracks chat completion latency per attempt.
	ChatDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("category", ...), attribute.String("model", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed provider attempts. Use with attributes:
	//   attribute.String("category", ...), attribute.String("model", ...)
	ProviderErrors metric.Int64Counter

	// FallbackOutcomes counts executor results. Use with attributes:
	//   attribute.String("category", ...), attribute.String("outcome", ...)
	FallbackOutcomes metric.Int64Counter

	// CatalogRefreshes counts model catalogue fetches. Use with attribute:
	//   attribute.String("status", ...)
	CatalogRefreshes metric.Int64Counter

	// InterviewTransitions counts state machine phase changes. Use with
	// attributes: attribute.String("from", ...), attribute.String("to", ...)
	InterviewTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveInterviews tracks the number of running interview machines.
	ActiveInterviews metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// hosted inference calls, which range from sub-second TTS to multi-second
// completions.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("rehearse.stt.duration",
		metric.WithDescription("Latency of a single speech-to-text attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("rehearse.tts.duration",
		metric.WithDescription("Latency of a single text-to-speech attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChatDuration, err = m.Float64Histogram("rehearse.chat.duration",
		metric.WithDescription("Latency of a single chat completion attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("rehearse.provider.requests",
		metric.WithDescription("Total provider API requests by category, model, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("rehearse.provider.errors",
		metric.WithDescription("Total failed provider attempts by category and model."),
	); err != nil {
		return nil, err
	}
	if met.FallbackOutcomes, err = m.Int64Counter("rehearse.fallback.outcomes",
		metric.WithDescription("Fallback executor results by category and outcome."),
	); err != nil {
		return nil, err
	}
	if met.CatalogRefreshes, err = m.Int64Counter("rehearse.catalog.refreshes",
		metric.WithDescription("Model catalogue fetches by status."),
	); err != nil {
		return nil, err
	}
	if met.InterviewTransitions, err = m.Int64Counter("rehearse.interview.transitions",
		metric.WithDescription("Interview state machine phase changes."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveInterviews, err = m.Int64UpDownCounter("rehearse.active_interviews",
		metric.WithDescription("Number of running interview sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("rehearse.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
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

// RecordProviderAttempt records one provider call: the per-category latency
// histogram, the request counter, and on failure the error counter.
func (m *Metrics) RecordProviderAttempt(ctx context.Context, category, model string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("model", model),
	)
	if h := m.durationFor(category); h != nil {
		h.Record(ctx, seconds, attrs)
	}
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("model", model),
		attribute.String("status", status),
	))
	if err != nil {
		m.ProviderErrors.Add(ctx, 1, attrs)
	}
}

// RecordFallback records the outcome of one executor call.
func (m *Metrics) RecordFallback(ctx context.Context, category, outcome string) {
	m.FallbackOutcomes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("category", category),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordCatalogRefresh records a catalogue fetch with status "ok" or "error".
func (m *Metrics) RecordCatalogRefresh(ctx context.Context, status string) {
	m.CatalogRefreshes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordTransition records an interview phase change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.InterviewTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

func (m *Metrics) durationFor(category string) metric.Float64Histogram {
	switch category {
	case "stt":
		return m.STTDuration
	case "tts":
		return m.TTSDuration
	case "chat":
		return m.ChatDuration
	}
	return nil
}
