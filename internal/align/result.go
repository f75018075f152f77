package align

import (
	"strings"

	"github.com/MrWong99/sausalign/pkg/sausage"
)

// Gap is the index stored in [Step.Slot] or [Step.Word] for the unmatched
// side of an insertion or deletion.
const Gap = -1

// Op is the transition taken by one alignment step.
type Op uint8

const (
	// OpDelete leaves a slot unmatched: (slot, gap).
	OpDelete Op = iota + 1
	// OpSubstitute pairs a slot with a word: (slot, word).
	OpSubstitute
	// OpInsert leaves a word unmatched: (gap, word).
	OpInsert
)

// String returns a short lower-case name for the op.
func (o Op) String() string {
	switch o {
	case OpDelete:
		return "delete"
	case OpSubstitute:
		return "substitute"
	case OpInsert:
		return "insert"
	}
	return "unknown"
}

// Step is one column of the alignment.
type Step struct {
	Op Op
	// Slot is the network index, or [Gap].
	Slot int
	// Word is the transcript index, or [Gap].
	Word int
	// Cost is the cost this step added to the total.
	Cost float64
}

// Result is the outcome of one alignment. It is immutable once returned.
//
// The two aligned sequences (slot-or-gap and word-or-gap) are the projection
// of Steps onto each side and therefore always have equal length.
type Result struct {
	Steps []Step
	// Cost is the total accumulated cost along the chosen path.
	Cost float64

	network sausage.Network
	words   []string
}

// Len returns the number of aligned columns.
func (r *Result) Len() int { return len(r.Steps) }

// Empty reports whether the alignment has no columns, which is the result
// for an empty network or an empty transcript.
func (r *Result) Empty() bool { return len(r.Steps) == 0 }

// SlotAt returns the slot of column k; ok is false for a gap.
func (r *Result) SlotAt(k int) (slot sausage.Slot, ok bool) {
	s := r.Steps[k]
	if s.Slot == Gap {
		return sausage.Slot{}, false
	}
	return r.network.At(s.Slot), true
}

// WordAt returns the word of column k; ok is false for a gap.
func (r *Result) WordAt(k int) (word string, ok bool) {
	s := r.Steps[k]
	if s.Word == Gap {
		return "", false
	}
	return r.words[s.Word], true
}

// Slots returns the slot side of the alignment; nil entries are gaps.
func (r *Result) Slots() []*sausage.Slot {
	out := make([]*sausage.Slot, len(r.Steps))
	for k := range r.Steps {
		if s, ok := r.SlotAt(k); ok {
			out[k] = &s
		}
	}
	return out
}

// Words returns the word side of the alignment with gaps rendered as gap.
func (r *Result) Words(gap string) []string {
	out := make([]string, len(r.Steps))
	for k := range r.Steps {
		if w, ok := r.WordAt(k); ok {
			out[k] = w
		} else {
			out[k] = gap
		}
	}
	return out
}

// HypothesisWords returns the top-weighted word of each aligned slot, with
// gaps rendered as gap.
func (r *Result) HypothesisWords(gap string) []string {
	out := make([]string, len(r.Steps))
	for k := range r.Steps {
		out[k] = gap
		if s, ok := r.SlotAt(k); ok {
			if top, ok := s.Top(); ok {
				out[k] = top.Word
			}
		}
	}
	return out
}

// Hypothesis returns the aligned one-best sentence of the network.
func (r *Result) Hypothesis(gap string) string {
	return strings.Join(r.HypothesisWords(gap), " ")
}

// Reference returns the aligned transcript sentence.
func (r *Result) Reference(gap string) string {
	return strings.Join(r.Words(gap), " ")
}
