// Package observe provides application-wide observability primitives for
// aizuchi: OpenTelemetry metrics, tracing, PII-redacting structured logging,
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all aizuchi metrics.
const meterName = "github.com/MrWong99/aizuchi"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// ClassifyDuration tracks opportunity-classification latency.
	ClassifyDuration metric.Float64Histogram

	// GenerateDuration tracks comment-generation latency.
	GenerateDuration metric.Float64Histogram

	// ModerationDuration tracks moderation (including rewrites) latency.
	ModerationDuration metric.Float64Histogram

	// PostDuration tracks chat-post latency.
	PostDuration metric.Float64Histogram

	// PipelineDuration tracks end-to-end transcript-to-post latency.
	PipelineDuration metric.Float64Histogram

	// --- Counters ---

	// TranscriptsProcessed counts transcripts fed through the pipeline. Use
	// with attribute: attribute.Bool("final", ...)
	TranscriptsProcessed metric.Int64Counter

	// CommentsGenerated counts comments produced by the LLM stage.
	CommentsGenerated metric.Int64Counter

	// CommentsPosted counts comments accepted by the chat provider.
	CommentsPosted metric.Int64Counter

	// CommentsBlocked counts comments stopped before posting. Use with
	// attribute: attribute.String("reason", ...), one of "policy",
	// "moderation", "rate_limit".
	CommentsBlocked metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// FailoverEvents counts provider failovers. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("from", ...), attribute.String("to", ...)
	FailoverEvents metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of comments waiting in the scheduler.
	QueueDepth metric.Int64UpDownCounter

	// ActiveStreams tracks open STT streaming sessions.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for live-commentary pipeline latencies.
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
	histograms := []struct {
		target *metric.Float64Histogram
		name   string
		desc   string
	}{
		{&met.STTDuration, "aizuchi.stt.duration", "Latency of speech-to-text transcription."},
		{&met.ClassifyDuration, "aizuchi.classify.duration", "Latency of opportunity classification."},
		{&met.GenerateDuration, "aizuchi.generate.duration", "Latency of comment generation."},
		{&met.ModerationDuration, "aizuchi.moderation.duration", "Latency of moderation including rewrites."},
		{&met.PostDuration, "aizuchi.post.duration", "Latency of chat posting."},
		{&met.PipelineDuration, "aizuchi.pipeline.duration", "End-to-end transcript-to-post latency."},
	}
	for _, h := range histograms {
		if *h.target, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	// Counters.
	if met.TranscriptsProcessed, err = m.Int64Counter("aizuchi.transcripts.processed",
		metric.WithDescription("Total transcripts fed through the pipeline by finality."),
	); err != nil {
		return nil, err
	}
	if met.CommentsGenerated, err = m.Int64Counter("aizuchi.comments.generated",
		metric.WithDescription("Total comments produced by the LLM stage."),
	); err != nil {
		return nil, err
	}
	if met.CommentsPosted, err = m.Int64Counter("aizuchi.comments.posted",
		metric.WithDescription("Total comments accepted by the chat provider."),
	); err != nil {
		return nil, err
	}
	if met.CommentsBlocked, err = m.Int64Counter("aizuchi.comments.blocked",
		metric.WithDescription("Total comments stopped before posting by reason."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("aizuchi.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("aizuchi.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.FailoverEvents, err = m.Int64Counter("aizuchi.failover.events",
		metric.WithDescription("Total provider failovers by kind, from, and to."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("aizuchi.queue.depth",
		metric.WithDescription("Number of comments waiting in the scheduler."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("aizuchi.active_streams",
		metric.WithDescription("Number of open STT streaming sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("aizuchi.http.request.duration",
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordBlocked is a convenience method that records a blocked comment with
// its reason.
func (m *Metrics) RecordBlocked(ctx context.Context, reason string) {
	m.CommentsBlocked.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordFailover is a convenience method that records a failover event.
func (m *Metrics) RecordFailover(ctx context.Context, kind, from, to string) {
	m.FailoverEvents.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}
