// Package observe provides application-wide observability primitives for
// Resonate: OpenTelemetry metrics, structured logging, and HTTP middleware
// that ties them together.
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

// meterName is the instrumentation scope name used for all Resonate metrics.
const meterName = "github.com/MrWong99/resonate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscodeDuration tracks audio transcode latency. Use with attribute:
	//   attribute.String("tier", ...)
	TranscodeDuration metric.Float64Histogram

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks end-to-end latency from received utterance to
	// completed response. Use with attribute: attribute.String("strategy", ...)
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// ChunksReceived counts audio chunks accepted into session queues.
	ChunksReceived metric.Int64Counter

	// ChunksDropped counts audio chunks rejected because a session queue was
	// full.
	ChunksDropped metric.Int64Counter

	// Turns counts completed conversation turns. Use with attribute:
	//   attribute.String("strategy", ...)
	Turns metric.Int64Counter

	// --- Error counters ---

	// UpstreamErrors counts provider errors. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("severity", ...)
	UpstreamErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
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
	if met.TranscodeDuration, err = m.Float64Histogram("resonate.transcode.duration",
		metric.WithDescription("Latency of audio transcoding by tier."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("resonate.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("resonate.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("resonate.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("resonate.turn.duration",
		metric.WithDescription("End-to-end latency of a conversation turn by strategy."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChunksReceived, err = m.Int64Counter("resonate.audio.chunks_received",
		metric.WithDescription("Total audio chunks accepted into session queues."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("resonate.audio.chunks_dropped",
		metric.WithDescription("Total audio chunks dropped because a session queue was full."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("resonate.turns",
		metric.WithDescription("Total completed conversation turns by strategy."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.UpstreamErrors, err = m.Int64Counter("resonate.upstream.errors",
		metric.WithDescription("Total upstream provider errors by stage and severity."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("resonate.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("resonate.http.request.duration",
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

// RecordTranscode records a transcode latency observation tagged with the
// fallback tier that served it.
func (m *Metrics) RecordTranscode(ctx context.Context, tier string, seconds float64) {
	m.TranscodeDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("tier", tier)),
	)
}

// RecordTurn records a completed conversation turn and its end-to-end latency.
func (m *Metrics) RecordTurn(ctx context.Context, strategy string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("strategy", strategy))
	m.Turns.Add(ctx, 1, attrs)
	m.TurnDuration.Record(ctx, seconds, attrs)
}

// RecordUpstreamError records an upstream provider error counter increment.
// severity is "turn" for turn-local failures and "fatal" for session-ending
// ones.
func (m *Metrics) RecordUpstreamError(ctx context.Context, stage, severity string) {
	m.UpstreamErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("severity", severity),
		),
	)
}
