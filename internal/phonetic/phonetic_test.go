package phonetic_test

import (
	"bytes"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/sausalign/internal/phonetic"
	"github.com/MrWong99/sausalign/pkg/lexicon"
)

// recorder collects lexicon misses for assertions.
type recorder struct {
	mu    sync.Mutex
	words []string
}

func (r *recorder) sink() phonetic.MissSink {
	return func(word string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.words = append(r.words, word)
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.words)
}

func testLexicon() lexicon.Lexicon {
	return lexicon.FromMap(map[string]string{
		"CAPTAIN": "K AE1 P T AH0 N",
		"CAPT'N":  "K AE1 P T AH0 N",
		"CAT":     "K AE1 T",
		"HELLO":   "HH AH0 L OW1",
		"YELLOW":  "Y EH1 L OW0",
	})
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestEditDistance(t *testing.T) {
	t.Parallel()

	p := func(ps ...string) []string { return ps }

	tests := []struct {
		name string
		a, b []string
		want int
	}{
		{"identical", p("K", "AE1"), p("K", "AE1"), 0},
		{"empty_both", nil, nil, 0},
		{"empty_a", nil, p("AH0", "N"), 2},
		{"empty_b", p("AH0"), nil, 1},
		{"substitution", p("K", "AE1"), p("G", "AE1"), 1},
		{"insertion", p("K", "AE1"), p("K", "AE1", "T"), 1},
		{"deletion", p("K", "AE1", "T"), p("K", "AE1"), 1},
		{"cat_vs_captain", p("K", "AE1", "T"), p("K", "AE1", "P", "T", "AH0", "N"), 3},
		{"disjoint", p("A", "B"), p("C", "D", "E"), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := phonetic.EditDistance(tt.a, tt.b); got != tt.want {
				t.Errorf("EditDistance() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPhoneme_Distance(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	d := phonetic.New(testLexicon(), phonetic.WithMissSink(rec.sink()))

	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "CAPTAIN", "CAPTAIN", 0},
		{"homophone variants", "CAPTAIN", "CAPT'N", 0},
		// 3 phoneme edits over the 15 characters of "K AE1 P T AH0 N".
		{"cat_vs_captain", "CAT", "CAPTAIN", 3.0 / 15.0},
		// HH AH0 L OW1 vs Y EH1 L OW0: 3 substitutions over 12 characters.
		{"hello_vs_yellow", "HELLO", "YELLOW", 3.0 / 12.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := d.Distance(tt.a, tt.b); !approx(got, tt.want) {
				t.Errorf("Distance(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
	if rec.count() != 0 {
		t.Errorf("unexpected misses: %v", rec.words)
	}
}

func TestPhoneme_FallbackOnMiss(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	d := phonetic.New(testLexicon(), phonetic.WithMissSink(rec.sink()))

	// Both unknown: spelling is compared character by character.
	if got := d.Distance("ZORK", "ZORG"); !approx(got, 0.25) {
		t.Errorf("Distance(ZORK, ZORG) = %v, want 0.25", got)
	}
	if rec.count() != 2 {
		t.Fatalf("misses = %d, want 2", rec.count())
	}
	if rec.words[0] != "ZORK" || rec.words[1] != "ZORG" {
		t.Errorf("missed words = %v", rec.words)
	}

	// An unknown word identical to itself is still reported but costs 0.
	if got := d.Distance("ZORK", "ZORK"); got != 0 {
		t.Errorf("Distance(ZORK, ZORK) = %v, want 0", got)
	}
	if rec.count() != 4 {
		t.Errorf("misses = %d, want 4", rec.count())
	}
}

func TestPhoneme_NilLexicon(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	d := phonetic.New(nil, phonetic.WithMissSink(rec.sink()))
	if got := d.Distance("ABC", "ABD"); !approx(got, 1.0/3.0) {
		t.Errorf("Distance = %v, want 1/3", got)
	}
	if rec.count() != 2 {
		t.Errorf("misses = %d, want 2", rec.count())
	}
}

func TestPhoneme_NilSinkDiscards(t *testing.T) {
	t.Parallel()

	d := phonetic.New(nil, phonetic.WithMissSink(nil))
	if got := d.Distance("", ""); got != 0 {
		t.Errorf("Distance of empty words = %v, want 0", got)
	}
	if got := d.Distance("", "AB"); got != 1 {
		t.Errorf("Distance(\"\", AB) = %v, want 1", got)
	}
}

func TestDistances_Symmetric(t *testing.T) {
	t.Parallel()

	words := []string{"CAPTAIN", "CAPT'N", "CAT", "HELLO", "YELLOW", "ZORK", "", "a", "Über"}
	distancers := map[string]phonetic.Distancer{
		"phoneme":      phonetic.New(testLexicon(), phonetic.WithMissSink(nil)),
		"orthographic": phonetic.Orthographic{},
		"jaro-winkler": phonetic.JaroWinkler{},
	}
	for name, d := range distancers {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			for _, a := range words {
				for _, b := range words {
					ab, ba := d.Distance(a, b), d.Distance(b, a)
					if ab != ba {
						t.Errorf("Distance(%q,%q)=%v but Distance(%q,%q)=%v", a, b, ab, b, a, ba)
					}
					if ab < 0 || math.IsNaN(ab) {
						t.Errorf("Distance(%q,%q)=%v, want non-negative", a, b, ab)
					}
					if a == b && ab != 0 {
						t.Errorf("Distance(%q,%q)=%v, want 0 for identical words", a, b, ab)
					}
				}
			}
		})
	}
}

func TestOrthographic(t *testing.T) {
	t.Parallel()

	var d phonetic.Orthographic
	if got := d.Distance("kitten", "sitting"); !approx(got, 3.0/7.0) {
		t.Errorf("Distance(kitten, sitting) = %v, want 3/7", got)
	}
}

func TestJaroWinkler(t *testing.T) {
	t.Parallel()

	var d phonetic.JaroWinkler
	if got := d.Distance("Captain", "CAPTAIN"); got != 0 {
		t.Errorf("case-insensitive identical = %v, want 0", got)
	}
	near := d.Distance("captain", "captin")
	far := d.Distance("captain", "zebra")
	if !(near < far) {
		t.Errorf("near=%v far=%v, want near < far", near, far)
	}
	if far > 1 {
		t.Errorf("distance %v exceeds 1", far)
	}
}

func TestLogMisses(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := phonetic.New(lexicon.NewDict(), phonetic.WithMissSink(phonetic.LogMisses(logger)))
	p.Distance("KNIGHT", "KNIGHT")

	out := buf.String()
	if got := strings.Count(out, "word=KNIGHT"); got != 2 {
		t.Errorf("logged %d misses, want 2:\n%s", got, out)
	}
	if !strings.Contains(out, "metaphone="+phonetic.Metaphone("KNIGHT")) {
		t.Errorf("log line lacks metaphone key:\n%s", out)
	}
}

func TestMetaphone(t *testing.T) {
	t.Parallel()

	if a, b := phonetic.Metaphone("KNIGHT"), phonetic.Metaphone("NIGHT"); a != b || a == "" {
		t.Errorf("Metaphone(KNIGHT)=%q Metaphone(NIGHT)=%q, want equal non-empty keys", a, b)
	}
	if phonetic.Metaphone("CAT") == phonetic.Metaphone("DOG") {
		t.Error("CAT and DOG share a metaphone key")
	}
}

func TestTee(t *testing.T) {
	t.Parallel()

	var a, b recorder
	sink := phonetic.Tee(a.sink(), nil, b.sink())
	sink("ZORK")
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("counts = %d, %d, want 1, 1", a.count(), b.count())
	}
}
