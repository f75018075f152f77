package store

import (
	"context"
	"errors"

	"github.com/MrWong99/sausalign/internal/resilience"
)

// Guarded wraps a [Store] with a circuit breaker. Once the backing database
// keeps failing, calls return [resilience.ErrCircuitOpen] immediately until
// the breaker lets a probe through. [ErrNotFound] does not count as a
// failure. Ping and Close bypass the breaker so readiness checks see the
// database itself.
type Guarded struct {
	Store
	breaker *resilience.CircuitBreaker
}

// WithBreaker returns s guarded by cb.
func WithBreaker(s Store, cb *resilience.CircuitBreaker) *Guarded {
	return &Guarded{Store: s, breaker: cb}
}

var _ Store = (*Guarded)(nil)

// IsFailure is the breaker classifier for store errors.
func IsFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, context.Canceled)
}

// SaveRun implements [Store].
func (g *Guarded) SaveRun(ctx context.Context, run Run) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.Store.SaveRun(ctx, run)
	})
}

// GetRun implements [Store].
func (g *Guarded) GetRun(ctx context.Context, id string) (*Run, error) {
	var run *Run
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		run, err = g.Store.GetRun(ctx, id)
		return err
	})
	return run, err
}

// ListRuns implements [Store].
func (g *Guarded) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		runs, err = g.Store.ListRuns(ctx, limit)
		return err
	})
	return runs, err
}
