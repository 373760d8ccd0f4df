// Package observe provides application-wide observability primitives for
// Arcsong: OpenTelemetry metrics, tracing helpers, structured logging, and
// HTTP middleware for the ops endpoints.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so metrics can be scraped
// from the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Arcsong metrics.
const meterName = "github.com/arcsong/arcsong"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per director stage ---

	// ExchangeDuration tracks end-to-end director processing per exchange.
	ExchangeDuration metric.Float64Histogram

	// GuidanceDuration tracks pre-turn guidance composition latency
	// (dominated by the tension-note call).
	GuidanceDuration metric.Float64Histogram

	// EvaluationDuration tracks the post-turn evaluation call latency.
	EvaluationDuration metric.Float64Histogram

	// --- Counters ---

	// VisualsRequested counts visuals the director requested. Use with
	// attribute.String("visual_type", ...).
	VisualsRequested metric.Int64Counter

	// SparksSpent counts sparks successfully charged for visuals.
	SparksSpent metric.Int64Counter

	// SparkDenials counts visuals downgraded for insufficient balance.
	SparkDenials metric.Int64Counter

	// EpisodesCompleted counts completed episodes. Use with
	// attribute.String("trigger", ...).
	EpisodesCompleted metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts LLM provider failures absorbed by the director.
	// Use with attribute.String("stage", ...).
	ProviderErrors metric.Int64Counter

	// InvariantViolations counts director-state invariant violations (bugs;
	// logged loudly, never fatal). Use with attribute.String("invariant", ...).
	InvariantViolations metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of sessions currently mid-exchange.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time on the ops
	// endpoints. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// LLM-bound latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ExchangeDuration, err = m.Float64Histogram("arcsong.director.exchange.duration",
		metric.WithDescription("End-to-end director processing time per exchange."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GuidanceDuration, err = m.Float64Histogram("arcsong.director.guidance.duration",
		metric.WithDescription("Pre-turn guidance composition latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EvaluationDuration, err = m.Float64Histogram("arcsong.director.evaluation.duration",
		metric.WithDescription("Post-turn evaluation call latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.VisualsRequested, err = m.Int64Counter("arcsong.director.visuals.requested",
		metric.WithDescription("Visuals requested by the director, by visual type."),
	); err != nil {
		return nil, err
	}
	if met.SparksSpent, err = m.Int64Counter("arcsong.director.sparks.spent",
		metric.WithDescription("Sparks charged for episode visuals."),
	); err != nil {
		return nil, err
	}
	if met.SparkDenials, err = m.Int64Counter("arcsong.director.sparks.denials",
		metric.WithDescription("Visuals downgraded because the balance was insufficient."),
	); err != nil {
		return nil, err
	}
	if met.EpisodesCompleted, err = m.Int64Counter("arcsong.director.episodes.completed",
		metric.WithDescription("Episodes completed, by trigger."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("arcsong.provider.errors",
		metric.WithDescription("LLM provider failures absorbed by the director, by stage."),
	); err != nil {
		return nil, err
	}
	if met.InvariantViolations, err = m.Int64Counter("arcsong.director.invariant.violations",
		metric.WithDescription("Director state invariant violations, by invariant."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("arcsong.active_sessions",
		metric.WithDescription("Number of sessions currently mid-exchange."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("arcsong.http.request.duration",
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
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
