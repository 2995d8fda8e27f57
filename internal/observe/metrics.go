// Package observe provides application-wide observability primitives for
// redub: OpenTelemetry metrics, tracing helpers, and HTTP middleware for the
// metrics listener.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all redub metrics.
const meterName = "github.com/MrWong99/redub"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// StageDuration tracks wall time per pipeline stage. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("status", ...)
	StageDuration metric.Float64Histogram

	// TTSRenderDuration tracks per-segment synthesis latency. Use with attribute:
	//   attribute.String("provider", ...)
	TTSRenderDuration metric.Float64Histogram

	// StretchRatio tracks the time-stretch ratios applied during assembly.
	// Use with attribute: attribute.String("method", ...)
	StretchRatio metric.Float64Histogram

	// --- Counters ---

	// Segments counts segments leaving a stage. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("status", ...)
	Segments metric.Int64Counter

	// TTSFailures counts per-segment synthesis failures after retries.
	// Use with attribute: attribute.String("provider", ...)
	TTSFailures metric.Int64Counter

	// TranslateBatches counts translation batches. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	TranslateBatches metric.Int64Counter

	// Retries counts retry attempts across providers and stages.
	// Use with attribute: attribute.String("op", ...)
	Retries metric.Int64Counter

	// SyncQuality counts segments by timing-accuracy class. Use with attribute:
	//   attribute.String("class", ...) one of good, fair, poor
	SyncQuality metric.Int64Counter

	// --- Gauges ---

	// Loudness reports measured integrated loudness in LUFS. Use with attribute:
	//   attribute.String("track", ...) e.g. "source", "voice", "final"
	Loudness metric.Float64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets defines histogram bucket boundaries (in seconds) for whole
// pipeline stages, which run from under a second up to the subprocess timeout.
var stageBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

// renderBuckets defines histogram bucket boundaries (in seconds) for
// per-segment synthesis calls.
var renderBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// ratioBuckets defines histogram bucket boundaries for time-stretch ratios,
// spanning the atempo clamp range.
var ratioBuckets = []float64{
	0.5, 0.7, 0.85, 1, 1.15, 1.3, 1.5, 2,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.StageDuration, err = m.Float64Histogram("redub.stage.duration",
		metric.WithDescription("Wall time per pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSRenderDuration, err = m.Float64Histogram("redub.tts.render.duration",
		metric.WithDescription("Per-segment speech synthesis latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(renderBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StretchRatio, err = m.Float64Histogram("redub.stretch.ratio",
		metric.WithDescription("Applied time-stretch ratios by method."),
		metric.WithExplicitBucketBoundaries(ratioBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Segments, err = m.Int64Counter("redub.segments",
		metric.WithDescription("Segments leaving a stage by stage and status."),
	); err != nil {
		return nil, err
	}
	if met.TTSFailures, err = m.Int64Counter("redub.tts.failures",
		metric.WithDescription("Per-segment synthesis failures after retries, by provider."),
	); err != nil {
		return nil, err
	}
	if met.TranslateBatches, err = m.Int64Counter("redub.translate.batches",
		metric.WithDescription("Translation batches by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.Retries, err = m.Int64Counter("redub.retries",
		metric.WithDescription("Retry attempts by operation."),
	); err != nil {
		return nil, err
	}
	if met.SyncQuality, err = m.Int64Counter("redub.sync.quality",
		metric.WithDescription("Segments by timing-accuracy class."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.Loudness, err = m.Float64Gauge("redub.loudness.lufs",
		metric.WithDescription("Measured integrated loudness in LUFS by track."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("redub.http.request.duration",
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

// RecordStage records a completed stage run with its duration and outcome.
func (m *Metrics) RecordStage(ctx context.Context, stage, status string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", status),
		),
	)
}

// RecordSegments records n segments leaving a stage with the given status.
func (m *Metrics) RecordSegments(ctx context.Context, stage, status string, n int) {
	m.Segments.Add(ctx, int64(n),
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", status),
		),
	)
}

// RecordTTSRender records one successful per-segment synthesis call.
func (m *Metrics) RecordTTSRender(ctx context.Context, provider string, d time.Duration) {
	m.TTSRenderDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordTTSFailure records one segment that failed synthesis after retries.
func (m *Metrics) RecordTTSFailure(ctx context.Context, provider string) {
	m.TTSFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordTranslateBatch records one translation batch attempt outcome.
func (m *Metrics) RecordTranslateBatch(ctx context.Context, provider, status string) {
	m.TranslateBatches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordRetry records one retry attempt for the named operation.
func (m *Metrics) RecordRetry(ctx context.Context, op string) {
	m.Retries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)),
	)
}

// RecordSyncQuality records one segment's timing-accuracy class.
func (m *Metrics) RecordSyncQuality(ctx context.Context, class string) {
	m.SyncQuality.Add(ctx, 1,
		metric.WithAttributes(attribute.String("class", class)),
	)
}

// RecordStretchRatio records the ratio the assembler applied to one segment.
func (m *Metrics) RecordStretchRatio(ctx context.Context, method string, ratio float64) {
	m.StretchRatio.Record(ctx, ratio,
		metric.WithAttributes(attribute.String("method", method)),
	)
}

// RecordLoudness reports a measured integrated loudness for a track.
func (m *Metrics) RecordLoudness(ctx context.Context, track string, lufs float64) {
	m.Loudness.Record(ctx, lufs,
		metric.WithAttributes(attribute.String("track", track)),
	)
}
