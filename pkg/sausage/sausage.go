// Package sausage defines the confusion-network value types shared by the
// aligner, the scorers and the parsers.
//
// A confusion network ("sausage") is an ordered sequence of [Slot]s. Each slot
// holds the competing word alternatives a recogniser produced for one position
// of the utterance, as weighted [Edge]s. Slots and networks are immutable once
// constructed; all accessors return copies.
package sausage

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrEmptySlot is returned when a slot without any edges is used where at
// least one alternative is required (for example when averaging edge costs).
var ErrEmptySlot = errors.New("sausage: slot has no edges")

// Edge is a single weighted word alternative within a [Slot]. Weight is a
// non-negative confidence; no range or sum constraint is imposed.
type Edge struct {
	Word   string
	Weight float64
}

// String renders the edge as "word weight", matching the Kaldi sausage layout.
func (e Edge) String() string {
	return e.Word + " " + strconv.FormatFloat(e.Weight, 'g', -1, 64)
}

// SlotOption configures [NewSlot].
type SlotOption func(*slotOptions)

type slotOptions struct {
	sortByWeight bool
}

// SortByWeight orders the slot's edges by descending weight. The sort is
// stable, so equal weights keep their insertion order. Without this option
// edges keep the order they were supplied in.
func SortByWeight() SlotOption {
	return func(o *slotOptions) {
		o.sortByWeight = true
	}
}

// Slot is one confusable position: an ordered set of word alternatives.
type Slot struct {
	edges []Edge
}

// NewSlot returns a slot holding a copy of edges.
func NewSlot(edges []Edge, opts ...SlotOption) Slot {
	var o slotOptions
	for _, opt := range opts {
		opt(&o)
	}
	cp := slices.Clone(edges)
	if o.sortByWeight {
		slices.SortStableFunc(cp, func(a, b Edge) int {
			switch {
			case a.Weight > b.Weight:
				return -1
			case a.Weight < b.Weight:
				return 1
			}
			return 0
		})
	}
	return Slot{edges: cp}
}

// NewSlotFromWords zips words and weights into a slot. It fails when the two
// slices differ in length.
func NewSlotFromWords(words []string, weights []float64, opts ...SlotOption) (Slot, error) {
	if len(words) != len(weights) {
		return Slot{}, fmt.Errorf("sausage: %d words but %d weights", len(words), len(weights))
	}
	edges := make([]Edge, len(words))
	for i := range words {
		edges[i] = Edge{Word: words[i], Weight: weights[i]}
	}
	return NewSlot(edges, opts...), nil
}

// Len returns the number of edges.
func (s Slot) Len() int { return len(s.edges) }

// At returns the i-th edge.
func (s Slot) At(i int) Edge { return s.edges[i] }

// Edges returns a copy of the slot's edges.
func (s Slot) Edges() []Edge { return slices.Clone(s.edges) }

// Words returns the words of the slot in edge order.
func (s Slot) Words() []string {
	out := make([]string, len(s.edges))
	for i, e := range s.edges {
		out[i] = e.Word
	}
	return out
}

// Weights returns the weights of the slot in edge order.
func (s Slot) Weights() []float64 {
	out := make([]float64, len(s.edges))
	for i, e := range s.edges {
		out[i] = e.Weight
	}
	return out
}

// TotalWeight returns the sum of all edge weights.
func (s Slot) TotalWeight() float64 {
	var sum float64
	for _, e := range s.edges {
		sum += e.Weight
	}
	return sum
}

// Top returns the highest-weighted edge. Ties go to the earlier edge.
// ok is false for an empty slot.
func (s Slot) Top() (e Edge, ok bool) {
	if len(s.edges) == 0 {
		return Edge{}, false
	}
	best := s.edges[0]
	for _, c := range s.edges[1:] {
		if c.Weight > best.Weight {
			best = c
		}
	}
	return best, true
}

// Contains reports whether word is one of the slot's alternatives.
func (s Slot) Contains(word string) bool {
	for _, e := range s.edges {
		if e.Word == word {
			return true
		}
	}
	return false
}

// Validate returns [ErrEmptySlot] when the slot has no edges.
func (s Slot) Validate() error {
	if len(s.edges) == 0 {
		return ErrEmptySlot
	}
	return nil
}

// Equal reports whether both slots hold the same edges in the same order.
func (s Slot) Equal(o Slot) bool {
	return slices.Equal(s.edges, o.edges)
}

// Concat merges the alternatives of two slots into a new slot sorted by
// descending weight.
func (s Slot) Concat(o Slot) Slot {
	return NewSlot(append(slices.Clone(s.edges), o.edges...), SortByWeight())
}

// String renders the slot in Kaldi sausage notation, e.g. "[ A 0.9 THE 0.1 ]".
func (s Slot) String() string {
	var b strings.Builder
	b.WriteString("[")
	for _, e := range s.edges {
		b.WriteByte(' ')
		b.WriteString(e.String())
	}
	b.WriteString(" ]")
	return b.String()
}

// Network is an ordered sequence of slots. Order is the left-to-right time
// axis of the utterance.
type Network struct {
	slots []Slot
}

// NewNetwork returns a network holding a copy of slots.
func NewNetwork(slots []Slot) Network {
	return Network{slots: slices.Clone(slots)}
}

// NewNetworkFromEdges builds one slot per entry of edges.
func NewNetworkFromEdges(edges [][]Edge, opts ...SlotOption) Network {
	slots := make([]Slot, len(edges))
	for i, e := range edges {
		slots[i] = NewSlot(e, opts...)
	}
	return Network{slots: slots}
}

// Len returns the number of slots.
func (n Network) Len() int { return len(n.slots) }

// At returns the i-th slot.
func (n Network) At(i int) Slot { return n.slots[i] }

// Slots returns a copy of the network's slots.
func (n Network) Slots() []Slot { return slices.Clone(n.slots) }

// TopWords returns the best word of every slot, i.e. the recogniser's
// one-best hypothesis. Empty slots contribute an empty string.
func (n Network) TopWords() []string {
	out := make([]string, len(n.slots))
	for i, s := range n.slots {
		if e, ok := s.Top(); ok {
			out[i] = e.Word
		}
	}
	return out
}

// Validate checks every slot and reports the first empty one.
func (n Network) Validate() error {
	for i, s := range n.slots {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}
	}
	return nil
}

// Equal reports whether both networks hold equal slots in the same order.
func (n Network) Equal(o Network) bool {
	return slices.EqualFunc(n.slots, o.slots, Slot.Equal)
}

// String renders the network in Kaldi sausage notation.
func (n Network) String() string {
	parts := make([]string, len(n.slots))
	for i, s := range n.slots {
		parts[i] = s.String()
	}
	return strings.Join(parts, " ")
}

// Pair couples a confusion network with the transcript it is aligned against.
type Pair struct {
	// ID optionally identifies the utterance (e.g. a Kaldi utterance key).
	ID      string
	Network Network
	Words   []string
}

// NewPair pairs a network with an already tokenised transcript.
func NewPair(n Network, words []string) Pair {
	return Pair{Network: n, Words: slices.Clone(words)}
}

// NewPairFromSentence splits sentence on whitespace and pairs it with n.
func NewPairFromSentence(n Network, sentence string) Pair {
	return Pair{Network: n, Words: strings.Fields(sentence)}
}
