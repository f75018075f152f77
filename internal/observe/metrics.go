// Package observe provides application-wide observability primitives for
// sausalign: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. Tests should use [NewMetrics]
// with their own [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all sausalign metrics.
const meterName = "github.com/MrWong99/sausalign"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// AlignDuration tracks the latency of a single alignment call. Use with
	// attributes: attribute.String("strategy", ...), attribute.String("status", ...)
	AlignDuration metric.Float64Histogram

	// BatchDuration tracks the latency of a whole batch run.
	BatchDuration metric.Float64Histogram

	// --- Counters ---

	// Alignments counts alignment calls. Use with attributes:
	//   attribute.String("strategy", ...), attribute.String("status", ...)
	// where status is one of "ok", "empty", "error".
	Alignments metric.Int64Counter

	// MatrixCells counts DP cells filled, a proxy for alignment work.
	MatrixCells metric.Int64Counter

	// LexiconMisses counts words that fell back to their spelling.
	LexiconMisses metric.Int64Counter

	// StoreOperations counts persistence calls. Use with attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	StoreOperations metric.Int64Counter

	// --- Gauges ---

	// ActiveBatches tracks batch runs currently in progress.
	ActiveBatches metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.String("code", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Small
// alignments finish in microseconds; corpus batches take seconds.
var latencyBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AlignDuration, err = m.Float64Histogram("sausalign.align.duration",
		metric.WithDescription("Latency of a single confusion-network alignment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BatchDuration, err = m.Float64Histogram("sausalign.batch.duration",
		metric.WithDescription("Latency of a batch alignment run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Alignments, err = m.Int64Counter("sausalign.alignments",
		metric.WithDescription("Total alignment calls by strategy and status."),
	); err != nil {
		return nil, err
	}
	if met.MatrixCells, err = m.Int64Counter("sausalign.align.cells",
		metric.WithDescription("Total dynamic-programming cells filled."),
	); err != nil {
		return nil, err
	}
	if met.LexiconMisses, err = m.Int64Counter("sausalign.lexicon.misses",
		metric.WithDescription("Total words not found in the pronunciation lexicon."),
	); err != nil {
		return nil, err
	}
	if met.StoreOperations, err = m.Int64Counter("sausalign.store.operations",
		metric.WithDescription("Total persistence operations by op and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveBatches, err = m.Int64UpDownCounter("sausalign.active_batches",
		metric.WithDescription("Number of batch runs in progress."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("sausalign.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status code."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordAlignment records one alignment call: the outcome counter, its
// latency and, for successful calls, the number of cells filled.
func (m *Metrics) RecordAlignment(ctx context.Context, strategy, status string, d time.Duration, cells int) {
	attrs := metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("status", status),
	)
	m.Alignments.Add(ctx, 1, attrs)
	m.AlignDuration.Record(ctx, d.Seconds(), attrs)
	if cells > 0 {
		m.MatrixCells.Add(ctx, int64(cells), metric.WithAttributes(attribute.String("strategy", strategy)))
	}
}

// RecordStoreOperation is a convenience method that records a persistence
// counter increment with the standard attribute set.
func (m *Metrics) RecordStoreOperation(ctx context.Context, op, status string) {
	m.StoreOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// LexiconMissSink returns a callback that counts lexicon misses. It has the
// shape of phonetic.MissSink and can be combined with a logging sink.
func (m *Metrics) LexiconMissSink() func(word string) {
	return func(string) {
		m.LexiconMisses.Add(context.Background(), 1)
	}
}
