package scoring

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/sausalign/internal/phonetic"
	"github.com/MrWong99/sausalign/pkg/lexicon"
)

// ErrStrategyNotRegistered is returned by [Registry.Create] and
// [Registry.Parse] when no factory has been registered under the requested
// strategy.
var ErrStrategyNotRegistered = errors.New("scoring: strategy not registered")

// Deps carries the shared collaborators a strategy factory may need.
type Deps struct {
	// Lexicon supplies pronunciations for phoneme-based strategies. It is
	// shared read-only across scorers.
	Lexicon lexicon.Lexicon

	// OnMiss receives lexicon misses. Nil discards them.
	OnMiss phonetic.MissSink
}

// Factory builds a [Scorer] for one strategy.
type Factory func(Deps) (Scorer, error)

// Registry maps strategy identifiers to their factories. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[Strategy]Factory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Strategy]Factory)}
}

// NewDefaultRegistry returns a registry with every [Builtin] strategy.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

// Register adds a factory under s. Subsequent calls with the same strategy
// overwrite the previous registration.
func (r *Registry) Register(s Strategy, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[s] = factory
}

// Create instantiates the scorer registered under s.
// Returns [ErrStrategyNotRegistered] if nothing is registered for s.
func (r *Registry) Create(s Strategy, deps Deps) (Scorer, error) {
	r.mu.RLock()
	factory, ok := r.factories[s]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStrategyNotRegistered, s)
	}
	return factory(deps)
}

// Parse converts a configuration or request identifier into a registered
// [Strategy]. The empty string selects [Default].
func (r *Registry) Parse(name string) (Strategy, error) {
	s := Strategy(name)
	if s == "" {
		s = Default
	}
	r.mu.RLock()
	_, ok := r.factories[s]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrStrategyNotRegistered, name)
	}
	return s, nil
}

// Strategies returns the registered strategies in sorted order.
func (r *Registry) Strategies() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.factories))
	for s := range r.factories {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// RegisterBuiltins wires the four built-in strategies into r.
func RegisterBuiltins(r *Registry) {
	r.Register(WeightedPhoneme, func(d Deps) (Scorer, error) {
		return Weighted{Distance: phonetic.New(d.Lexicon, phonetic.WithMissSink(d.OnMiss))}, nil
	})
	r.Register(MeanPhoneme, func(d Deps) (Scorer, error) {
		return Mean{Distance: phonetic.New(d.Lexicon, phonetic.WithMissSink(d.OnMiss))}, nil
	})
	r.Register(WeightedOrthographic, func(Deps) (Scorer, error) {
		return Weighted{Distance: phonetic.Orthographic{}}, nil
	})
	r.Register(JaroWinkler, func(Deps) (Scorer, error) {
		return Weighted{Distance: phonetic.JaroWinkler{}}, nil
	})
}
