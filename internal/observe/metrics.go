// Package observe provides observability primitives for lectern:
// OpenTelemetry metrics, tracing, trace-aware logging and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// for Prometheus scraping via [InitProvider]. Tests should build their own
// [Metrics] with [NewMetrics] and a manual reader rather than share
// [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all lectern metrics.
const meterName = "github.com/MrWong99/lectern"

// OutcomeEmitted is the fragment outcome recorded when a fragment produced a
// queue item. Dropped fragments are recorded under their drop reason.
const OutcomeEmitted = "emitted"

// Metrics holds all OpenTelemetry metric instruments for the application.
type Metrics struct {
	// FragmentDuration tracks how long the engine spends on one fragment.
	FragmentDuration metric.Float64Histogram

	// Fragments counts processed fragments by outcome:
	//   attribute.String("outcome", "emitted" | drop reason)
	Fragments metric.Int64Counter

	// QueueItems counts emitted queue items:
	//   attribute.String("action", ...), attribute.String("intent", ...)
	QueueItems metric.Int64Counter

	// EngineErrors counts fragments that failed with a store error.
	EngineErrors metric.Int64Counter

	// StoreDuration tracks passage store latency:
	//   attribute.String("op", ...), attribute.String("status", ...)
	StoreDuration metric.Float64Histogram

	// BreakerTransitions counts store circuit breaker state changes:
	//   attribute.String("store", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// Subscribers tracks connected queue websocket clients.
	Subscribers metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Fragment handling and
// store lookups are expected to stay in the low milliseconds.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates all instruments on the given [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FragmentDuration, err = m.Float64Histogram("lectern.fragment.duration",
		metric.WithDescription("Time spent processing one transcript fragment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StoreDuration, err = m.Float64Histogram("lectern.store.duration",
		metric.WithDescription("Latency of passage store operations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Fragments, err = m.Int64Counter("lectern.fragments",
		metric.WithDescription("Processed transcript fragments by outcome."),
	); err != nil {
		return nil, err
	}
	if met.QueueItems, err = m.Int64Counter("lectern.queue.items",
		metric.WithDescription("Detected references added to the queue by action and intent."),
	); err != nil {
		return nil, err
	}
	if met.EngineErrors, err = m.Int64Counter("lectern.engine.errors",
		metric.WithDescription("Fragments that failed with a store error."),
	); err != nil {
		return nil, err
	}

	if met.BreakerTransitions, err = m.Int64Counter("lectern.store.breaker.transitions",
		metric.WithDescription("Passage store circuit breaker state changes."),
	); err != nil {
		return nil, err
	}

	if met.Subscribers, err = m.Int64UpDownCounter("lectern.queue.subscribers",
		metric.WithDescription("Connected queue websocket clients."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("lectern.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Call it after [InitProvider] so
// the instruments bind to the exporting provider.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFragment records one processed fragment with its outcome and
// processing time.
func (m *Metrics) RecordFragment(ctx context.Context, outcome string, d time.Duration) {
	m.Fragments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.FragmentDuration.Record(ctx, d.Seconds())
}

// RecordQueueItem records an emitted queue item.
func (m *Metrics) RecordQueueItem(ctx context.Context, action, intentType string) {
	m.QueueItems.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("intent", intentType),
		),
	)
}

// RecordEngineError records a fragment that failed with a store error.
func (m *Metrics) RecordEngineError(ctx context.Context) {
	m.EngineErrors.Add(ctx, 1)
}

// RecordStoreOp records the latency of one store operation. status is one
// of "ok", "not_found" or "error".
func (m *Metrics) RecordStoreOp(ctx context.Context, op, status string, d time.Duration) {
	m.StoreDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// RecordBreakerTransition records a store circuit breaker moving to state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, store, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("store", store),
			attribute.String("to", to),
		),
	)
}
