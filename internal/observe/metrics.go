// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, distributed tracing, structured logging, and HTTP
// middleware that ties them together.
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

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/ariahome/aria"

// Metrics holds all OpenTelemetry metric instruments for the voice
// pipeline. All fields are safe for concurrent use — the underlying OTel
// types handle their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// ClassifyDuration tracks intent classification latency.
	ClassifyDuration metric.Float64Histogram

	// SynthesisDuration tracks text-to-speech synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// HandlerDuration tracks action handler execution latency.
	HandlerDuration metric.Float64Histogram

	// --- Counters ---

	// Transcripts counts final transcripts by outcome. Use with attributes:
	//   attribute.String("outcome", "accepted"|"dropped"),
	//   attribute.String("reason", ...) for drops
	Transcripts metric.Int64Counter

	// Intents counts classified intents. Use with attribute:
	//   attribute.String("category", ...)
	Intents metric.Int64Counter

	// Confirmations counts confirmation outcomes. Use with attribute:
	//   attribute.String("outcome", "confirmed"|"rejected"|"cancelled"|"timeout")
	Confirmations metric.Int64Counter

	// ModerationOffenses counts recorded offenses. Use with attribute:
	//   attribute.String("level", ...)
	ModerationOffenses metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice connections.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("aria.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClassifyDuration, err = m.Float64Histogram("aria.classify.duration",
		metric.WithDescription("Latency of intent classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("aria.synthesis.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HandlerDuration, err = m.Float64Histogram("aria.handler.duration",
		metric.WithDescription("Latency of action handler execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Transcripts, err = m.Int64Counter("aria.transcripts",
		metric.WithDescription("Final transcripts by outcome and drop reason."),
	); err != nil {
		return nil, err
	}
	if met.Intents, err = m.Int64Counter("aria.intents",
		metric.WithDescription("Classified intents by action category."),
	); err != nil {
		return nil, err
	}
	if met.Confirmations, err = m.Int64Counter("aria.confirmations",
		metric.WithDescription("Confirmation outcomes for captured commands."),
	); err != nil {
		return nil, err
	}
	if met.ModerationOffenses, err = m.Int64Counter("aria.moderation.offenses",
		metric.WithDescription("Recorded profanity offenses by escalation level."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("aria.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("aria.active_sessions",
		metric.WithDescription("Number of live voice connections."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("aria.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordTranscriptAccepted counts a transcript that entered the pipeline.
func (m *Metrics) RecordTranscriptAccepted(ctx context.Context) {
	m.Transcripts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", "accepted")),
	)
}

// RecordTranscriptDropped counts a dropped transcript with its reason
// ("speaking", "executing", "echo", ...).
func (m *Metrics) RecordTranscriptDropped(ctx context.Context, reason string) {
	m.Transcripts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", "dropped"),
			attribute.String("reason", reason),
		),
	)
}

// RecordIntent counts a classified intent by action category.
func (m *Metrics) RecordIntent(ctx context.Context, category string) {
	m.Intents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("category", category)),
	)
}

// RecordConfirmation counts a confirmation outcome.
func (m *Metrics) RecordConfirmation(ctx context.Context, outcome string) {
	m.Confirmations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordOffense counts a moderation offense at the given escalation level.
func (m *Metrics) RecordOffense(ctx context.Context, level string) {
	m.ModerationOffenses.Add(ctx, 1,
		metric.WithAttributes(attribute.String("level", level)),
	)
}

// RecordProviderError counts a provider error by provider name and kind
// ("stt", "tts", "llm").
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
