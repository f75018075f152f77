// Package phonetic implements word-versus-word dissimilarity measures used as
// substitution costs when aligning a confusion network against a transcript.
//
// The primary measure is [Phoneme], a normalised phoneme edit distance:
//
//  1. Pronunciation lookup: each word is looked up in a [lexicon.Lexicon].
//     A word that is missing falls back to its own spelling, which is then
//     tokenised one symbol per character, and the miss is reported to the
//     configured [MissSink]. A miss never aborts the comparison.
//
//  2. Edit distance: the two symbol sequences are compared with unit-cost
//     insertion, deletion and substitution ([EditDistance]).
//
//  3. Normalisation: the distance is divided by the character length of the
//     longer raw pronunciation string (not the phoneme count), which keeps
//     scores comparable across word pairs of different length.
//
// [Orthographic] and [JaroWinkler] compare spellings directly with matchr and
// need no lexicon.
//
// All measures are symmetric and non-negative; identical inputs score 0.
package phonetic

import (
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/sausalign/pkg/lexicon"
)

// Distancer returns a symmetric, non-negative dissimilarity between two words.
type Distancer interface {
	Distance(a, b string) float64
}

// MissSink receives every word that was not found in the lexicon.
// Implementations must be safe for concurrent use when the [Phoneme] is
// shared between goroutines.
type MissSink func(word string)

// LogMisses returns a [MissSink] that logs each miss at WARN level on logger,
// together with the word's Double Metaphone key as a hint for lexicon
// maintainers. A nil logger uses [slog.Default].
func LogMisses(logger *slog.Logger) MissSink {
	return func(word string) {
		l := logger
		if l == nil {
			l = slog.Default()
		}
		l.Warn("word not in lexicon, falling back to spelling", "word", word, "metaphone", Metaphone(word))
	}
}

// Metaphone returns the primary Double Metaphone key of word, or "" when the
// word has no encodable letters.
func Metaphone(word string) string {
	primary, _ := matchr.DoubleMetaphone(word)
	return primary
}

// Tee fans a miss out to every non-nil sink.
func Tee(sinks ...MissSink) MissSink {
	return func(word string) {
		for _, s := range sinks {
			if s != nil {
				s(word)
			}
		}
	}
}

// Option is a functional option for configuring a [Phoneme] distance.
type Option func(*Phoneme)

// WithMissSink sets where lexicon misses are reported. Default: [LogMisses]
// on the default logger. Pass nil to discard misses.
func WithMissSink(sink MissSink) Option {
	return func(p *Phoneme) {
		p.onMiss = sink
	}
}

// Phoneme is the normalised phoneme edit distance. It is read-only after
// construction and safe for concurrent use as long as the lexicon and sink are.
type Phoneme struct {
	lex    lexicon.Lexicon
	onMiss MissSink
}

// Compile-time interface checks.
var (
	_ Distancer = (*Phoneme)(nil)
	_ Distancer = Orthographic{}
	_ Distancer = JaroWinkler{}
)

// New returns a [Phoneme] distance backed by lex. A nil lex treats every word
// as a miss.
func New(lex lexicon.Lexicon, opts ...Option) *Phoneme {
	p := &Phoneme{
		lex:    lex,
		onMiss: LogMisses(nil),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// pronunciation is a word's symbol sequence plus the rune length of the raw
// string it was derived from.
type pronunciation struct {
	symbols []string
	length  int
}

// lookup resolves word to its pronunciation, falling back to the spelling.
func (p *Phoneme) lookup(word string) pronunciation {
	if p.lex != nil {
		if pron, ok := p.lex.Pronunciation(word); ok {
			return pronunciation{
				symbols: strings.Fields(pron),
				length:  utf8.RuneCountInString(pron),
			}
		}
	}
	if p.onMiss != nil {
		p.onMiss(word)
	}
	return spelling(word)
}

// spelling tokenises word one symbol per character.
func spelling(word string) pronunciation {
	symbols := make([]string, 0, len(word))
	for _, r := range word {
		symbols = append(symbols, string(r))
	}
	return pronunciation{symbols: symbols, length: len(symbols)}
}

// Distance implements [Distancer]. Both words are always looked up, so a
// miss is reported even when the words are identical.
func (p *Phoneme) Distance(a, b string) float64 {
	return normalized(p.lookup(a), p.lookup(b))
}

func normalized(a, b pronunciation) float64 {
	denom := max(a.length, b.length)
	if denom == 0 {
		return 0
	}
	return float64(EditDistance(a.symbols, b.symbols)) / float64(denom)
}

// EditDistance computes the Levenshtein distance between two symbol
// sequences with unit insertion, deletion and substitution costs.
func EditDistance(a, b []string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	// Two rows are enough; swap them instead of reallocating.
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[lb]
}

// Orthographic is the character Levenshtein distance between two spellings,
// normalised by the longer spelling.
type Orthographic struct{}

// Distance implements [Distancer].
func (Orthographic) Distance(a, b string) float64 {
	if a == b {
		return 0
	}
	denom := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if denom == 0 {
		return 0
	}
	return float64(matchr.Levenshtein(a, b)) / float64(denom)
}

// JaroWinkler is 1 minus the case-insensitive Jaro-Winkler similarity of two
// spellings.
type JaroWinkler struct{}

// Distance implements [Distancer].
func (JaroWinkler) Distance(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 0
	}
	if a == "" || b == "" {
		return 1
	}
	// Fixed argument order keeps the result symmetric.
	if a > b {
		a, b = b, a
	}
	d := 1 - matchr.JaroWinkler(a, b, false)
	if math.IsNaN(d) {
		return 1
	}
	return min(max(d, 0), 1)
}
