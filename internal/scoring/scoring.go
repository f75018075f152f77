// Package scoring turns word-versus-word distances into the substitution cost
// between a transcript word and a whole confusion-network slot.
//
// Each cost function is a named [Strategy] behind the single [Scorer]
// capability. Strategies are instantiated through a [Registry], so the
// alignment engine never depends on a concrete cost function.
package scoring

import (
	"errors"
	"fmt"

	"github.com/MrWong99/sausalign/internal/phonetic"
	"github.com/MrWong99/sausalign/pkg/sausage"
)

// ErrZeroWeight is returned when a weighted aggregate is requested for a slot
// whose edge weights sum to zero.
var ErrZeroWeight = errors.New("scoring: slot weights sum to zero")

// Scorer computes the cost of aligning word with slot. Costs are
// non-negative; a failed computation returns an error, never NaN.
type Scorer interface {
	Score(word string, slot sausage.Slot) (float64, error)
}

// ScorerFunc adapts a plain function to [Scorer].
type ScorerFunc func(word string, slot sausage.Slot) (float64, error)

// Score implements [Scorer].
func (f ScorerFunc) Score(word string, slot sausage.Slot) (float64, error) {
	return f(word, slot)
}

// Strategy identifies a registered scoring strategy.
type Strategy string

const (
	// WeightedPhoneme averages the phoneme distance to every edge, weighted by
	// edge confidence and normalised by the slot's total weight.
	WeightedPhoneme Strategy = "weighted-phoneme"

	// MeanPhoneme is the unweighted mean phoneme distance over all edges.
	MeanPhoneme Strategy = "mean-phoneme"

	// WeightedOrthographic is [WeightedPhoneme] over normalised character
	// Levenshtein distance between spellings.
	WeightedOrthographic Strategy = "weighted-orthographic"

	// JaroWinkler is the weighted average of 1 - Jaro-Winkler similarity.
	JaroWinkler Strategy = "jaro-winkler"

	// Default is the strategy used when none is configured.
	Default = WeightedPhoneme
)

// Builtin lists the strategies registered by [RegisterBuiltins], in display
// order.
var Builtin = []Strategy{WeightedPhoneme, MeanPhoneme, WeightedOrthographic, JaroWinkler}

// Weighted scores a slot as the confidence-weighted mean distance between
// the word and each edge.
type Weighted struct {
	Distance phonetic.Distancer
}

// Score implements [Scorer].
func (w Weighted) Score(word string, slot sausage.Slot) (float64, error) {
	if err := slot.Validate(); err != nil {
		return 0, err
	}
	total := slot.TotalWeight()
	if total == 0 {
		return 0, fmt.Errorf("%w: %s", ErrZeroWeight, slot)
	}
	var sum float64
	for i := range slot.Len() {
		e := slot.At(i)
		sum += w.Distance.Distance(word, e.Word) * e.Weight
	}
	return sum / total, nil
}

// Mean scores a slot as the unweighted mean distance between the word and
// each edge.
type Mean struct {
	Distance phonetic.Distancer
}

// Score implements [Scorer].
func (m Mean) Score(word string, slot sausage.Slot) (float64, error) {
	if err := slot.Validate(); err != nil {
		return 0, err
	}
	var sum float64
	for i := range slot.Len() {
		sum += m.Distance.Distance(word, slot.At(i).Word)
	}
	return sum / float64(slot.Len()), nil
}

// Compile-time interface checks.
var (
	_ Scorer = Weighted{}
	_ Scorer = Mean{}
	_ Scorer = ScorerFunc(nil)
)
