// Package align computes a minimum-cost, repeat-free alignment between the
// slots of a confusion network and the words of a transcript.
//
// The engine fills an (N+1) x (M+1) dynamic-programming table where N is the
// number of slots and M the number of words:
//
//	D[0][0] = 0
//	D[i][0] = D[i-1][0] + deletion          (slot i left unmatched)
//	D[0][j] = D[0][j-1] + insertion         (word j left unmatched)
//	D[i][j] = min(D[i-1][j]   + deletion,
//	              D[i-1][j-1] + score(word j, slot i),
//	              D[i][j-1]   + insertion)
//
// Ties are broken in the fixed order deletion, substitution, insertion, and
// the traceback from (N, M) follows the transition chosen at each cell, so the
// output is deterministic. Every slot and every word appears exactly once in
// the result, either paired or against a gap.
//
// An [Engine] holds no per-call state and is safe for concurrent use as long
// as its [scoring.Scorer] is.
package align

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/sausalign/internal/observe"
	"github.com/MrWong99/sausalign/internal/scoring"
	"github.com/MrWong99/sausalign/pkg/sausage"
)

const (
	// DefaultInsertionCost is the cost of leaving a transcript word unmatched.
	DefaultInsertionCost = 1.0

	// DefaultDeletionCost is the cost of leaving a slot unmatched.
	DefaultDeletionCost = 1.0
)

// ErrInvalidCost is returned when a gap cost or a scorer's substitution cost
// is negative, infinite or NaN.
var ErrInvalidCost = errors.New("align: invalid cost")

// ErrNoScorer is returned by [Engine.Align] when the engine was built without
// a scorer.
var ErrNoScorer = errors.New("align: no scorer configured")

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithInsertionCost sets the cost of an unmatched transcript word. Default: 1.
func WithInsertionCost(c float64) Option {
	return func(e *Engine) {
		e.insertion = c
	}
}

// WithDeletionCost sets the cost of an unmatched slot. Default: 1.
func WithDeletionCost(c float64) Option {
	return func(e *Engine) {
		e.deletion = c
	}
}

// WithMetrics records alignment latency and outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithStrategyName labels spans and metrics with the scoring strategy.
func WithStrategyName(name string) Option {
	return func(e *Engine) {
		e.strategy = name
	}
}

// Engine aligns confusion networks against transcripts.
type Engine struct {
	scorer    scoring.Scorer
	insertion float64
	deletion  float64
	strategy  string
	metrics   *observe.Metrics
}

// New returns an [Engine] that uses scorer for substitution costs. It fails
// with [ErrInvalidCost] when a gap cost is negative, infinite or NaN.
func New(scorer scoring.Scorer, opts ...Option) (*Engine, error) {
	e := &Engine{
		scorer:    scorer,
		insertion: DefaultInsertionCost,
		deletion:  DefaultDeletionCost,
		strategy:  "custom",
	}
	for _, o := range opts {
		o(e)
	}
	if !validCost(e.insertion) {
		return nil, fmt.Errorf("%w: insertion cost %v", ErrInvalidCost, e.insertion)
	}
	if !validCost(e.deletion) {
		return nil, fmt.Errorf("%w: deletion cost %v", ErrInvalidCost, e.deletion)
	}
	return e, nil
}

// NewWithStrategy resolves s in reg and returns an [Engine] using it. An
// unregistered strategy fails here, before any alignment work is done.
func NewWithStrategy(reg *scoring.Registry, s scoring.Strategy, deps scoring.Deps, opts ...Option) (*Engine, error) {
	scorer, err := reg.Create(s, deps)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithStrategyName(string(s))}, opts...)
	return New(scorer, opts...)
}

// InsertionCost returns the configured cost of an unmatched word.
func (e *Engine) InsertionCost() float64 { return e.insertion }

// DeletionCost returns the configured cost of an unmatched slot.
func (e *Engine) DeletionCost() float64 { return e.deletion }

// Strategy returns the strategy label the engine reports.
func (e *Engine) Strategy() string { return e.strategy }

// Align computes the minimum-cost alignment of pair.Network against
// pair.Words.
//
// If either side is empty the empty alignment is returned without scoring
// anything. A scorer error (empty slot, zero total weight, invalid cost) or
// context cancellation aborts the call; no partial result is returned.
func (e *Engine) Align(ctx context.Context, pair sausage.Pair) (*Result, error) {
	if e.scorer == nil {
		return nil, ErrNoScorer
	}

	n, m := pair.Network.Len(), len(pair.Words)
	if n == 0 || m == 0 {
		e.record(ctx, "empty", 0, 0)
		return &Result{network: pair.Network, words: slices.Clone(pair.Words)}, nil
	}

	ctx, span := observe.StartSpan(ctx, "align.Align",
		trace.WithAttributes(
			attribute.String("strategy", e.strategy),
			attribute.Int("slots", n),
			attribute.Int("words", m),
		),
	)
	defer span.End()
	start := time.Now()

	mat, err := e.fill(ctx, pair.Network, pair.Words)
	if err != nil {
		observe.FailSpan(span, err)
		e.record(ctx, "error", time.Since(start), 0)
		return nil, err
	}

	res := &Result{
		Steps:   traceback(mat, n, m),
		Cost:    mat.at(n, m),
		network: pair.Network,
		words:   slices.Clone(pair.Words),
	}
	span.SetAttributes(attribute.Float64("cost", res.Cost), attribute.Int("steps", len(res.Steps)))
	e.record(ctx, "ok", time.Since(start), (n+1)*(m+1))
	return res, nil
}

// fill computes the cost and backpointer tables.
func (e *Engine) fill(ctx context.Context, net sausage.Network, words []string) (*matrix, error) {
	n, m := net.Len(), len(words)
	mat := newMatrix(n+1, m+1)

	for i := 1; i <= n; i++ {
		mat.set(i, 0, mat.at(i-1, 0)+e.deletion, e.deletion, OpDelete)
	}
	for j := 1; j <= m; j++ {
		mat.set(0, j, mat.at(0, j-1)+e.insertion, e.insertion, OpInsert)
	}

	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("align: %w", err)
		}
		slot := net.At(i - 1)
		for j := 1; j <= m; j++ {
			sub, err := e.scorer.Score(words[j-1], slot)
			if err != nil {
				return nil, fmt.Errorf("align: slot %d vs word %d (%q): %w", i-1, j-1, words[j-1], err)
			}
			if !validCost(sub) {
				return nil, fmt.Errorf("%w: %v for slot %d vs word %d (%q)", ErrInvalidCost, sub, i-1, j-1, words[j-1])
			}

			// Strict comparisons keep the earlier candidate on ties:
			// deletion, then substitution, then insertion.
			best, step, op := mat.at(i-1, j)+e.deletion, e.deletion, OpDelete
			if c := mat.at(i-1, j-1) + sub; c < best {
				best, step, op = c, sub, OpSubstitute
			}
			if c := mat.at(i, j-1) + e.insertion; c < best {
				best, step, op = c, e.insertion, OpInsert
			}
			mat.set(i, j, best, step, op)
		}
	}
	return mat, nil
}

func validCost(c float64) bool {
	return c >= 0 && !math.IsInf(c, 1)
}

// traceback walks the backpointers from (n, m) to (0, 0) and returns the
// steps in left-to-right order.
func traceback(mat *matrix, n, m int) []Step {
	steps := make([]Step, 0, n+m)
	i, j := n, m
	for i > 0 || j > 0 {
		k := mat.idx(i, j)
		switch mat.back[k] {
		case OpDelete:
			steps = append(steps, Step{Op: OpDelete, Slot: i - 1, Word: Gap, Cost: mat.step[k]})
			i--
		case OpSubstitute:
			steps = append(steps, Step{Op: OpSubstitute, Slot: i - 1, Word: j - 1, Cost: mat.step[k]})
			i--
			j--
		case OpInsert:
			steps = append(steps, Step{Op: OpInsert, Slot: Gap, Word: j - 1, Cost: mat.step[k]})
			j--
		default:
			panic(fmt.Sprintf("align: missing backpointer at (%d, %d)", i, j))
		}
	}
	slices.Reverse(steps)
	return steps
}

func (e *Engine) record(ctx context.Context, status string, d time.Duration, cells int) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordAlignment(ctx, e.strategy, status, d, cells)
}
