package align

// Summary counts the outcome of an alignment in error-rate terms. The
// transcript is the reference and each slot's top word is the hypothesis.
//
// Deletions and Insertions follow the engine's naming: a deletion is an
// unmatched slot, an insertion an unmatched transcript word.
type Summary struct {
	// Words is the number of transcript words.
	Words int
	// Correct counts pairs whose slot top word equals the transcript word.
	Correct int
	// Substitutions counts pairs whose top word differs.
	Substitutions int
	// OracleHits counts substitutions where the transcript word is one of
	// the slot's lower-ranked alternatives.
	OracleHits int
	// Deletions counts unmatched slots that count as errors.
	Deletions int
	// Insertions counts unmatched transcript words.
	Insertions int
	// Skipped counts unmatched slots whose top word is an ignored filler.
	Skipped int
}

// SummaryOption configures [Result.Summary].
type SummaryOption func(*summaryConfig)

type summaryConfig struct {
	ignore map[string]struct{}
}

// IgnoreFillers excludes unmatched slots whose top word is one of words
// (e.g. "<eps>") from the error count.
func IgnoreFillers(words ...string) SummaryOption {
	return func(c *summaryConfig) {
		for _, w := range words {
			c.ignore[w] = struct{}{}
		}
	}
}

func (c summaryConfig) skip(word string) bool {
	_, ok := c.ignore[word]
	return ok
}

// Summary tallies the alignment. An empty alignment against a non-empty
// transcript counts every transcript word as an insertion.
func (r *Result) Summary(opts ...SummaryOption) Summary {
	cfg := summaryConfig{ignore: make(map[string]struct{})}
	for _, o := range opts {
		o(&cfg)
	}

	s := Summary{Words: len(r.words)}
	if len(r.Steps) == 0 {
		// One side was empty, so everything on the other side is unmatched.
		s.Insertions = len(r.words)
		for i := range r.network.Len() {
			if top, ok := r.network.At(i).Top(); ok && cfg.skip(top.Word) {
				s.Skipped++
				continue
			}
			s.Deletions++
		}
		return s
	}
	for k, st := range r.Steps {
		switch st.Op {
		case OpDelete:
			slot, _ := r.SlotAt(k)
			if top, ok := slot.Top(); ok && cfg.skip(top.Word) {
				s.Skipped++
				continue
			}
			s.Deletions++
		case OpInsert:
			s.Insertions++
		case OpSubstitute:
			slot, _ := r.SlotAt(k)
			word, _ := r.WordAt(k)
			if top, ok := slot.Top(); ok && top.Word == word {
				s.Correct++
				continue
			}
			s.Substitutions++
			if slot.Contains(word) {
				s.OracleHits++
			}
		}
	}
	return s
}

// Errors returns substitutions + deletions + insertions.
func (s Summary) Errors() int {
	return s.Substitutions + s.Deletions + s.Insertions
}

// ErrorRate returns Errors / Words, or 0 when there are no words.
func (s Summary) ErrorRate() float64 {
	if s.Words == 0 {
		return 0
	}
	return float64(s.Errors()) / float64(s.Words)
}

// OracleErrorRate is the error rate when any alternative in a slot, not just
// the top word, counts as correct.
func (s Summary) OracleErrorRate() float64 {
	if s.Words == 0 {
		return 0
	}
	return float64(s.Errors()-s.OracleHits) / float64(s.Words)
}

// Add returns the element-wise sum of s and o, for corpus totals.
func (s Summary) Add(o Summary) Summary {
	return Summary{
		Words:         s.Words + o.Words,
		Correct:       s.Correct + o.Correct,
		Substitutions: s.Substitutions + o.Substitutions,
		OracleHits:    s.OracleHits + o.OracleHits,
		Deletions:     s.Deletions + o.Deletions,
		Insertions:    s.Insertions + o.Insertions,
		Skipped:       s.Skipped + o.Skipped,
	}
}
