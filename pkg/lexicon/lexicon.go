// Package lexicon provides pronunciation lookup for the phoneme scorers.
//
// A [Lexicon] maps a word to a pronunciation string: whitespace-separated
// phoneme symbols such as "K AE1 P T AH0 N". The in-memory [Dict] is loaded
// once (typically from a CMU pronouncing dictionary) and is read-only
// afterwards, so one instance can be shared by concurrent alignments.
package lexicon

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Lexicon looks up the pronunciation of a word. ok is false when the word is
// unknown; callers decide how to recover.
type Lexicon interface {
	Pronunciation(word string) (pron string, ok bool)
}

// Case selects how words are normalised on insertion and lookup.
type Case string

const (
	// CaseNone keeps words as written.
	CaseNone Case = ""
	// CaseUpper upper-cases words (CMU dictionary convention).
	CaseUpper Case = "upper"
	// CaseLower lower-cases words.
	CaseLower Case = "lower"
)

// IsValid reports whether c is a recognised case normalisation.
func (c Case) IsValid() bool {
	switch c {
	case CaseNone, CaseUpper, CaseLower:
		return true
	}
	return false
}

// Apply returns word normalised to c.
func (c Case) Apply(word string) string {
	switch c {
	case CaseUpper:
		return cases.Upper(language.Und).String(word)
	case CaseLower:
		return cases.Lower(language.Und).String(word)
	}
	return word
}

// Dict is a map-backed [Lexicon]. Words may carry several pronunciation
// variants; [Dict.Pronunciation] returns the first one added.
//
// A Dict must not be modified once it is shared between goroutines.
type Dict struct {
	norm    Case
	entries map[string][]string
}

// Compile-time interface check.
var _ Lexicon = (*Dict)(nil)

// Option configures a [Dict].
type Option func(*Dict)

// WithCase normalises every inserted and looked-up word.
func WithCase(c Case) Option {
	return func(d *Dict) {
		d.norm = c
	}
}

// NewDict returns an empty dictionary.
func NewDict(opts ...Option) *Dict {
	d := &Dict{entries: make(map[string][]string)}
	for _, o := range opts {
		o(d)
	}
	return d
}

// FromMap builds a dictionary with one pronunciation per word.
func FromMap(m map[string]string, opts ...Option) *Dict {
	d := NewDict(opts...)
	for w, p := range m {
		d.Add(w, p)
	}
	return d
}

// Add appends a pronunciation variant for word. Phoneme runs are collapsed
// to single spaces.
func (d *Dict) Add(word, pron string) {
	key := d.norm.Apply(word)
	d.entries[key] = append(d.entries[key], strings.Join(strings.Fields(pron), " "))
}

// Pronunciation implements [Lexicon].
func (d *Dict) Pronunciation(word string) (string, bool) {
	variants := d.entries[d.norm.Apply(word)]
	if len(variants) == 0 {
		return "", false
	}
	return variants[0], true
}

// Variants returns every pronunciation recorded for word.
func (d *Dict) Variants(word string) []string {
	return d.entries[d.norm.Apply(word)]
}

// Len returns the number of distinct words.
func (d *Dict) Len() int { return len(d.entries) }

// Words returns all words in the dictionary in unspecified order.
func (d *Dict) Words() []string {
	words := make([]string, 0, len(d.entries))
	for w := range d.entries {
		words = append(words, w)
	}
	return words
}

// LoadCMU reads a CMU pronouncing dictionary.
// Format: WORD<whitespace>PH1 PH2 PH3 ...
//
// Lines starting with ";;;" or a lone "#" are comments; headwords such as
// "#HASH-MARK" are entries. Alternate pronunciations are
// written as WORD(2), WORD(3) and are stored as variants of WORD. A trailing
// "# comment" on an entry line is ignored.
func LoadCMU(r io.Reader, opts ...Option) (*Dict, error) {
	d := NewDict(opts...)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";;;") || isHashComment(line) {
			continue
		}
		if i := strings.Index(line, " #"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("lexicon: line %d: expected word and at least one phoneme", lineNum)
		}

		d.Add(baseWord(fields[0]), strings.Join(fields[1:], " "))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("lexicon: read: %w", err)
	}
	return d, nil
}

// LoadFile is a convenience wrapper that opens path and calls [LoadCMU].
func LoadFile(path string, opts ...Option) (*Dict, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lexicon: open %q: %w", path, err)
	}
	defer f.Close()
	return LoadCMU(f, opts...)
}

func isHashComment(line string) bool {
	return line == "#" || strings.HasPrefix(line, "# ") || strings.HasPrefix(line, "#\t")
}

// baseWord strips a variant suffix such as "(2)" from a CMU headword.
func baseWord(w string) string {
	if !strings.HasSuffix(w, ")") {
		return w
	}
	open := strings.LastIndexByte(w, '(')
	if open <= 0 {
		return w
	}
	for _, r := range w[open+1 : len(w)-1] {
		if r < '0' || r > '9' {
			return w
		}
	}
	return w[:open]
}
