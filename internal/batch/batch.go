// Package batch aligns many sausage/transcript pairs concurrently and rolls
// the per-utterance outcomes up into a corpus report.
//
// All workers share one [Aligner], so the lexicon behind it is loaded once.
// The output preserves input order. A single failed pair aborts the whole
// run and no partial report is returned.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/sausalign/internal/align"
	"github.com/MrWong99/sausalign/internal/observe"
	"github.com/MrWong99/sausalign/pkg/sausage"
)

// Aligner aligns one pair. [*align.Engine] satisfies it.
type Aligner interface {
	Align(ctx context.Context, pair sausage.Pair) (*align.Result, error)
}

var _ Aligner = (*align.Engine)(nil)

// Item is the outcome for one pair.
type Item struct {
	ID      string
	Result  *align.Result
	Summary align.Summary
}

// Report is the outcome of one batch run.
type Report struct {
	RunID    string
	Strategy string
	Started  time.Time
	Duration time.Duration
	Items    []Item
	// Total is the element-wise sum of every item's summary.
	Total align.Summary
}

// ErrorRate is the corpus-level error rate: total errors over total
// transcript words.
func (r *Report) ErrorRate() float64 { return r.Total.ErrorRate() }

// Option is a functional option for configuring a [Runner].
type Option func(*Runner)

// WithWorkers sets the number of concurrent alignments. Values below 1 are
// ignored. Default: [runtime.GOMAXPROCS].
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithMetrics records batch latency and in-flight runs on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the logger for run lifecycle messages. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithSummaryOptions is passed to [align.Result.Summary] for every item.
func WithSummaryOptions(opts ...align.SummaryOption) Option {
	return func(r *Runner) { r.summary = append(r.summary, opts...) }
}

// WithStrategyName labels the report. When unset and the aligner reports a
// strategy (as [*align.Engine] does), that name is used.
func WithStrategyName(name string) Option {
	return func(r *Runner) { r.strategy = name }
}

// Runner runs batches. It is safe for concurrent use if its Aligner is.
type Runner struct {
	aligner  Aligner
	workers  int
	metrics  *observe.Metrics
	logger   *slog.Logger
	summary  []align.SummaryOption
	strategy string
}

// New returns a Runner that aligns with a.
func New(a Aligner, opts ...Option) *Runner {
	r := &Runner{
		aligner: a,
		workers: runtime.GOMAXPROCS(0),
	}
	if s, ok := a.(interface{ Strategy() string }); ok {
		r.strategy = s.Strategy()
	}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Workers returns the configured concurrency.
func (r *Runner) Workers() int { return r.workers }

// Run aligns every pair. Pairs without an ID are labelled by their 1-based
// position.
func (r *Runner) Run(ctx context.Context, pairs []sausage.Pair) (*Report, error) {
	rep := &Report{
		RunID:    uuid.NewString(),
		Strategy: r.strategy,
		Started:  time.Now().UTC(),
		Items:    make([]Item, len(pairs)),
	}

	ctx, span := observe.StartSpan(ctx, "batch.Run",
		trace.WithAttributes(
			attribute.String("run_id", rep.RunID),
			attribute.String("strategy", rep.Strategy),
			attribute.Int("pairs", len(pairs)),
			attribute.Int("workers", r.workers),
		),
	)
	defer span.End()

	if r.metrics != nil {
		r.metrics.ActiveBatches.Add(ctx, 1)
		defer r.metrics.ActiveBatches.Add(ctx, -1)
	}

	log := r.logger.With("run_id", rep.RunID)
	log.Info("batch started", "pairs", len(pairs), "workers", r.workers, "strategy", rep.Strategy)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.workers)
	for i, p := range pairs {
		if p.ID == "" {
			p.ID = fmt.Sprint(i + 1)
		}
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			res, err := r.aligner.Align(egCtx, p)
			if err != nil {
				return fmt.Errorf("batch: utterance %q: %w", p.ID, err)
			}
			// Each goroutine owns index i; no lock needed.
			rep.Items[i] = Item{ID: p.ID, Result: res, Summary: res.Summary(r.summary...)}
			return nil
		})
	}

	err := eg.Wait()
	rep.Duration = time.Since(rep.Started)
	r.record(ctx, err, rep.Duration)
	if err != nil {
		observe.FailSpan(span, err)
		log.Error("batch failed", "err", err, "duration", rep.Duration)
		return nil, err
	}

	for _, it := range rep.Items {
		rep.Total = rep.Total.Add(it.Summary)
	}
	span.SetAttributes(attribute.Float64("error_rate", rep.ErrorRate()))
	log.Info("batch finished",
		"duration", rep.Duration,
		"words", rep.Total.Words,
		"errors", rep.Total.Errors(),
		"error_rate", rep.ErrorRate(),
	)
	return rep, nil
}

func (r *Runner) record(ctx context.Context, err error, d time.Duration) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.BatchDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("strategy", r.strategy),
		attribute.String("status", status),
	))
}
