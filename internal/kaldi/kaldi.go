// Package kaldi reads confusion networks in the text form printed by Kaldi's
// sausage tools and pairs them with transcripts.
//
// A sausage line is a sequence of bracketed slots, each holding word and
// posterior pairs, optionally preceded by an utterance id:
//
//	utt-001 [ HELLO 0.92 YELLOW 0.08 ] [ <eps> 1 ] [ WORLD 1 ]
//
// Brackets and tokens are whitespace separated. A transcript line is the
// matching reference sentence, optionally led by the same utterance id.
package kaldi

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/MrWong99/sausalign/pkg/lexicon"
	"github.com/MrWong99/sausalign/pkg/sausage"
)

// ErrMalformed is returned when a sausage string cannot be parsed.
var ErrMalformed = errors.New("kaldi: malformed sausage")

// ErrPairCount is returned when the sausage and transcript sources hold a
// different number of lines.
var ErrPairCount = errors.New("kaldi: sausage and transcript line counts differ")

// Option configures parsing.
type Option func(*config)

type config struct {
	null    map[string]struct{}
	sort    bool
	ids     bool
	norm    lexicon.Case
	maxLine int
}

func newConfig(opts []Option) config {
	c := config{null: make(map[string]struct{}), maxLine: 1 << 20}
	for _, o := range opts {
		o(&c)
	}
	if c.norm != lexicon.CaseNone {
		null := make(map[string]struct{}, len(c.null))
		for s := range c.null {
			null[c.norm.Apply(s)] = struct{}{}
		}
		c.null = null
	}
	return c
}

// WithNullSymbols drops every slot whose only alternative is one of syms,
// e.g. "<eps>".
func WithNullSymbols(syms ...string) Option {
	return func(c *config) {
		for _, s := range syms {
			c.null[s] = struct{}{}
		}
	}
}

// WithSortedEdges orders each slot's alternatives by descending weight.
func WithSortedEdges() Option {
	return func(c *config) { c.sort = true }
}

// WithUtteranceIDs treats the first token of every transcript line as its
// utterance id. Sausage lines are always checked for a leading id.
func WithUtteranceIDs() Option {
	return func(c *config) { c.ids = true }
}

// WithCase normalises slot and transcript words.
func WithCase(cs lexicon.Case) Option {
	return func(c *config) { c.norm = cs }
}

// ParseSausages parses a bracketed sausage string into a network. A leading
// utterance id, if any, is ignored; use [ParseLine] to keep it.
func ParseSausages(s string, opts ...Option) (sausage.Network, error) {
	c := newConfig(opts)
	_, net, err := c.parseLine(s)
	return net, err
}

// ParseLine parses one sausage line and returns its utterance id ("" when
// the line starts directly with a slot) and network.
func ParseLine(line string, opts ...Option) (id string, net sausage.Network, err error) {
	c := newConfig(opts)
	return c.parseLine(line)
}

func (c *config) parseLine(line string) (string, sausage.Network, error) {
	toks := strings.Fields(line)
	var id string
	pos := 0
	if len(toks) > 0 && toks[0] != "[" {
		if strings.ContainsAny(toks[0], "[]") {
			return "", sausage.Network{}, malformed(0, toks[0], "brackets must be separated by whitespace")
		}
		id, pos = toks[0], 1
	}

	var slots []sausage.Slot
	for pos < len(toks) {
		if toks[pos] != "[" {
			return "", sausage.Network{}, malformed(pos, toks[pos], `expected "["`)
		}
		open := pos
		pos++
		var edges []sausage.Edge
		for {
			if pos >= len(toks) {
				return "", sausage.Network{}, malformed(open, toks[open], "unterminated slot")
			}
			if toks[pos] == "]" {
				pos++
				break
			}
			if pos+1 >= len(toks) || toks[pos+1] == "]" {
				return "", sausage.Network{}, malformed(pos, toks[pos], "word without weight")
			}
			word, raw := toks[pos], toks[pos+1]
			if word == "[" {
				return "", sausage.Network{}, malformed(pos, word, "nested slot")
			}
			w, err := strconv.ParseFloat(raw, 64)
			if err != nil || w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return "", sausage.Network{}, malformed(pos+1, raw, "invalid weight")
			}
			edges = append(edges, sausage.Edge{Word: c.norm.Apply(word), Weight: w})
			pos += 2
		}
		if c.isNull(edges) {
			continue
		}
		var sopts []sausage.SlotOption
		if c.sort {
			sopts = append(sopts, sausage.SortByWeight())
		}
		slots = append(slots, sausage.NewSlot(edges, sopts...))
	}
	return id, sausage.NewNetwork(slots), nil
}

func (c *config) isNull(edges []sausage.Edge) bool {
	if len(edges) != 1 {
		return false
	}
	_, ok := c.null[edges[0].Word]
	return ok
}

func malformed(pos int, tok, msg string) error {
	return fmt.Errorf("%w: token %d (%q): %s", ErrMalformed, pos+1, tok, msg)
}

// ParseTranscript splits a transcript line into words. With
// [WithUtteranceIDs] the first token is returned as the id.
func ParseTranscript(line string, opts ...Option) (id string, words []string) {
	c := newConfig(opts)
	return c.parseTranscript(line)
}

func (c *config) parseTranscript(line string) (string, []string) {
	words := strings.Fields(line)
	var id string
	if c.ids && len(words) > 0 {
		id, words = words[0], words[1:]
	}
	for i, w := range words {
		words[i] = c.norm.Apply(w)
	}
	return id, words
}

// LoadPairs reads sausage and transcript lines in lockstep and pairs them.
// Blank lines in either source are skipped. Pair ids come from the sausage
// line when present, else from the transcript line, else the 1-based line
// number.
func LoadPairs(sausages, transcripts io.Reader, opts ...Option) ([]sausage.Pair, error) {
	c := newConfig(opts)

	sauLines, err := c.readLines(sausages)
	if err != nil {
		return nil, fmt.Errorf("kaldi: read sausages: %w", err)
	}
	trLines, err := c.readLines(transcripts)
	if err != nil {
		return nil, fmt.Errorf("kaldi: read transcripts: %w", err)
	}
	if len(sauLines) != len(trLines) {
		return nil, fmt.Errorf("%w: %d sausage lines, %d transcript lines", ErrPairCount, len(sauLines), len(trLines))
	}

	pairs := make([]sausage.Pair, len(sauLines))
	for i := range sauLines {
		id, net, err := c.parseLine(sauLines[i].text)
		if err != nil {
			return nil, fmt.Errorf("kaldi: sausages line %d: %w", sauLines[i].num, err)
		}
		trID, words := c.parseTranscript(trLines[i].text)
		if id != "" && trID != "" && id != trID {
			return nil, fmt.Errorf("%w: line %d pairs utterance %q with %q", ErrPairCount, sauLines[i].num, id, trID)
		}
		if id == "" {
			id = trID
		}
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		pairs[i] = sausage.Pair{ID: id, Network: net, Words: words}
	}
	return pairs, nil
}

// LoadPairFiles is [LoadPairs] over two files.
func LoadPairFiles(sausagesPath, transcriptsPath string, opts ...Option) ([]sausage.Pair, error) {
	sf, err := os.Open(sausagesPath)
	if err != nil {
		return nil, fmt.Errorf("kaldi: %w", err)
	}
	defer sf.Close()
	tf, err := os.Open(transcriptsPath)
	if err != nil {
		return nil, fmt.Errorf("kaldi: %w", err)
	}
	defer tf.Close()
	return LoadPairs(sf, tf, opts...)
}

type line struct {
	num  int
	text string
}

func (c *config) readLines(r io.Reader) ([]line, error) {
	var out []line
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), c.maxLine)
	num := 0
	for sc.Scan() {
		num++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		out = append(out, line{num: num, text: text})
	}
	return out, sc.Err()
}
