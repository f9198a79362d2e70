// Package observe provides application-wide observability primitives for
// Ontograph: OpenTelemetry metrics, distributed tracing, and structured
// logging helpers that tie them together.
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

// meterName is the instrumentation scope name used for all Ontograph metrics.
const meterName = "github.com/MrWong99/ontograph"

// Metrics holds all OpenTelemetry metric instruments for the extraction
// pipeline. All fields are safe for concurrent use — the underlying OTel
// types handle their own synchronisation.
type Metrics struct {
	// ChunkDuration tracks end-to-end per-chunk processing latency in seconds.
	ChunkDuration metric.Float64Histogram

	// StageDuration tracks per-stage latency in seconds. Use with
	// attribute.String("stage", "mention"|"entity"|"relation"|"grounding").
	StageDuration metric.Float64Histogram

	// LLMRequests counts gateway calls. Use with
	// attribute.String("status", "ok"|"schema_invalid"|"llm_timeout"|
	// "llm_rate_limit"|"extraction_failed").
	LLMRequests metric.Int64Counter

	// LLMTokens counts prompt and completion tokens. Use with
	// attribute.String("kind", "prompt"|"completion").
	LLMTokens metric.Int64Counter

	// ChunkFailures counts chunks replaced by an empty fragment.
	ChunkFailures metric.Int64Counter

	// RelationsDropped counts candidate relations rejected by grounding.
	RelationsDropped metric.Int64Counter
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] instance backed by the
// globally registered meter provider. Initialised lazily on first call.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics
}

// NewMetrics creates all instruments on the given provider. Instrument
// creation errors are ignored — the OTel SDK returns no-op instruments on
// failure, which is the desired degradation.
func NewMetrics(provider metric.MeterProvider) *Metrics {
	meter := provider.Meter(meterName)

	m := &Metrics{}
	m.ChunkDuration, _ = meter.Float64Histogram(
		"ontograph.chunk.duration",
		metric.WithDescription("Per-chunk pipeline latency"),
		metric.WithUnit("s"),
	)
	m.StageDuration, _ = meter.Float64Histogram(
		"ontograph.stage.duration",
		metric.WithDescription("Per-stage extraction latency"),
		metric.WithUnit("s"),
	)
	m.LLMRequests, _ = meter.Int64Counter(
		"ontograph.llm.requests",
		metric.WithDescription("LLM gateway attempts by outcome"),
	)
	m.LLMTokens, _ = meter.Int64Counter(
		"ontograph.llm.tokens",
		metric.WithDescription("LLM token usage by kind"),
	)
	m.ChunkFailures, _ = meter.Int64Counter(
		"ontograph.chunk.failures",
		metric.WithDescription("Chunks that degraded to an empty fragment"),
	)
	m.RelationsDropped, _ = meter.Int64Counter(
		"ontograph.grounding.dropped",
		metric.WithDescription("Candidate relations rejected by grounding"),
	)
	return m
}

// RecordStage records a stage latency sample with the stage attribute.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordLLMRequest counts one gateway attempt with its outcome.
func (m *Metrics) RecordLLMRequest(ctx context.Context, status string) {
	m.LLMRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordTokens counts prompt and completion token usage.
func (m *Metrics) RecordTokens(ctx context.Context, prompt, completion int) {
	m.LLMTokens.Add(ctx, int64(prompt), metric.WithAttributes(attribute.String("kind", "prompt")))
	m.LLMTokens.Add(ctx, int64(completion), metric.WithAttributes(attribute.String("kind", "completion")))
}
