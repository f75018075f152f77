// Package store defines persistence for scoring runs: one [Run] per batch
// with a row per utterance. Implementations live in the sqlite and postgres
// sub-packages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/sausalign/internal/align"
	"github.com/MrWong99/sausalign/internal/batch"
	"github.com/MrWong99/sausalign/internal/observe"
)

// ErrNotFound is returned by [Store.GetRun] for an unknown run id.
var ErrNotFound = errors.New("store: run not found")

// Utterance is the persisted outcome of one aligned pair.
type Utterance struct {
	// Position is the 0-based index of the pair within its run.
	Position   int
	ID         string
	Hypothesis string
	Reference  string
	Cost       float64
	Summary    align.Summary
}

// Run is one persisted batch.
type Run struct {
	ID        string
	Strategy  string
	CreatedAt time.Time
	Duration  time.Duration
	Summary   align.Summary
	// Utterances is empty in [Store.ListRuns] results.
	Utterances []Utterance
}

// Store persists runs. Implementations are safe for concurrent use.
type Store interface {
	// SaveRun inserts run and its utterances atomically. Saving an id that
	// already exists replaces the previous run.
	SaveRun(ctx context.Context, run Run) error

	// GetRun returns the run with all utterances, or [ErrNotFound].
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns up to limit runs, newest first, without utterances.
	// A limit of zero or less returns all runs.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Ping checks the backing database is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// FromReport converts a batch report into a run, rendering alignment gaps
// in the stored sentences as gap.
func FromReport(rep *batch.Report, gap string) Run {
	run := Run{
		ID:         rep.RunID,
		Strategy:   rep.Strategy,
		CreatedAt:  rep.Started,
		Duration:   rep.Duration,
		Summary:    rep.Total,
		Utterances: make([]Utterance, len(rep.Items)),
	}
	for i, it := range rep.Items {
		run.Utterances[i] = Utterance{
			Position:   i,
			ID:         it.ID,
			Hypothesis: it.Result.Hypothesis(gap),
			Reference:  it.Result.Reference(gap),
			Cost:       it.Result.Cost,
			Summary:    it.Summary,
		}
	}
	return run
}

// Instrumented wraps a [Store] and counts every call on
// sausalign.store.operations.
type Instrumented struct {
	Store
	metrics *observe.Metrics
}

// WithMetrics returns s wrapped so that each operation is recorded on m.
func WithMetrics(s Store, m *observe.Metrics) *Instrumented {
	return &Instrumented{Store: s, metrics: m}
}

var _ Store = (*Instrumented)(nil)

// SaveRun implements [Store].
func (i *Instrumented) SaveRun(ctx context.Context, run Run) error {
	err := i.Store.SaveRun(ctx, run)
	i.record(ctx, "save_run", err)
	return err
}

// GetRun implements [Store].
func (i *Instrumented) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := i.Store.GetRun(ctx, id)
	i.record(ctx, "get_run", err)
	return run, err
}

// ListRuns implements [Store].
func (i *Instrumented) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	runs, err := i.Store.ListRuns(ctx, limit)
	i.record(ctx, "list_runs", err)
	return runs, err
}

func (i *Instrumented) record(ctx context.Context, op string, err error) {
	status := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	i.metrics.RecordStoreOperation(ctx, op, status)
}
