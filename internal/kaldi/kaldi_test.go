package kaldi_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/sausalign/internal/kaldi"
	"github.com/MrWong99/sausalign/pkg/lexicon"
	"github.com/MrWong99/sausalign/pkg/sausage"
)

func TestParseSausages(t *testing.T) {
	t.Parallel()

	net, err := kaldi.ParseSausages("[ HELLO 0.92 YELLOW 0.08 ] [ <eps> 1 ] [ WORLD 1 ]")
	if err != nil {
		t.Fatalf("ParseSausages: %v", err)
	}
	want := sausage.NewNetworkFromEdges([][]sausage.Edge{
		{{Word: "HELLO", Weight: 0.92}, {Word: "YELLOW", Weight: 0.08}},
		{{Word: "<eps>", Weight: 1}},
		{{Word: "WORLD", Weight: 1}},
	})
	if !net.Equal(want) {
		t.Errorf("got %s, want %s", net, want)
	}
}

func TestParseSausages_Options(t *testing.T) {
	t.Parallel()

	const in = "[ a 0.2 b 0.8 ] [ <eps> 1 ] [ <eps> 0.6 c 0.4 ]"

	tests := []struct {
		name string
		opts []kaldi.Option
		want string
	}{
		{"defaults", nil, "[ a 0.2 b 0.8 ] [ <eps> 1 ] [ <eps> 0.6 c 0.4 ]"},
		// A null symbol alongside real alternatives is kept.
		{"skip null", []kaldi.Option{kaldi.WithNullSymbols("<eps>")}, "[ a 0.2 b 0.8 ] [ <eps> 0.6 c 0.4 ]"},
		{"sorted", []kaldi.Option{kaldi.WithSortedEdges()}, "[ b 0.8 a 0.2 ] [ <eps> 1 ] [ <eps> 0.6 c 0.4 ]"},
		{"upper", []kaldi.Option{kaldi.WithCase(lexicon.CaseUpper), kaldi.WithNullSymbols("<eps>")}, "[ A 0.2 B 0.8 ] [ <EPS> 0.6 C 0.4 ]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			net, err := kaldi.ParseSausages(in, tt.opts...)
			if err != nil {
				t.Fatalf("ParseSausages: %v", err)
			}
			if got := net.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseLine_UtteranceID(t *testing.T) {
	t.Parallel()

	id, net, err := kaldi.ParseLine("utt-7 [ YES 1 ]")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if id != "utt-7" || net.Len() != 1 {
		t.Errorf("id=%q len=%d, want utt-7 and 1 slot", id, net.Len())
	}

	id, net, err = kaldi.ParseLine("")
	if err != nil || id != "" || net.Len() != 0 {
		t.Errorf("empty line: id=%q len=%d err=%v", id, net.Len(), err)
	}
}

func TestParseSausages_EmptySlotSurvivesParsing(t *testing.T) {
	t.Parallel()

	net, err := kaldi.ParseSausages("[ A 1 ] [ ]")
	if err != nil {
		t.Fatalf("ParseSausages: %v", err)
	}
	if !errors.Is(net.Validate(), sausage.ErrEmptySlot) {
		t.Errorf("Validate() = %v, want ErrEmptySlot", net.Validate())
	}
}

func TestParseSausages_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		wantTok string
	}{
		{"unterminated", "[ A 1", "token 1"},
		{"missing weight", "[ A ]", "token 2"},
		{"bad weight", "[ A x ]", "token 3"},
		{"negative weight", "[ A -0.1 ]", "token 3"},
		{"nan weight", "[ A NaN ]", "token 3"},
		{"attached bracket", "[A 1 ]", "token 1"},
		{"stray token", "utt [ A 1 ] B", "token 6"},
		{"nested", "[ [ 1 ]", "token 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := kaldi.ParseSausages(tt.in)
			if !errors.Is(err, kaldi.ErrMalformed) {
				t.Fatalf("err = %v, want ErrMalformed", err)
			}
			if !strings.Contains(err.Error(), tt.wantTok) {
				t.Errorf("err = %q, want position %q", err, tt.wantTok)
			}
		})
	}
}

func TestParseTranscript(t *testing.T) {
	t.Parallel()

	id, words := kaldi.ParseTranscript("  hello   big world ")
	if id != "" || !slices.Equal(words, []string{"hello", "big", "world"}) {
		t.Errorf("got id=%q words=%q", id, words)
	}

	id, words = kaldi.ParseTranscript("utt-1 hello world", kaldi.WithUtteranceIDs(), kaldi.WithCase(lexicon.CaseUpper))
	if id != "utt-1" || !slices.Equal(words, []string{"HELLO", "WORLD"}) {
		t.Errorf("got id=%q words=%q", id, words)
	}
}

func TestLoadPairs(t *testing.T) {
	t.Parallel()

	sausages := "utt-a [ HI 1 ]\n\n[ BYE 0.7 BUY 0.3 ]\n"
	transcripts := "hi there\n\nutt-b bye\n"

	pairs, err := kaldi.LoadPairs(strings.NewReader(sausages), strings.NewReader(transcripts), kaldi.WithCase(lexicon.CaseUpper))
	if err != nil {
		t.Fatalf("LoadPairs: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("len(pairs) = %d, want 2", len(pairs))
	}
	if pairs[0].ID != "utt-a" || !slices.Equal(pairs[0].Words, []string{"HI", "THERE"}) {
		t.Errorf("pair 0 = %+v", pairs[0])
	}
	// Without WithUtteranceIDs the transcript's first token is a word.
	if pairs[1].ID != "2" || !slices.Equal(pairs[1].Words, []string{"UTT-B", "BYE"}) {
		t.Errorf("pair 1 = %+v", pairs[1])
	}
}

func TestLoadPairs_IDs(t *testing.T) {
	t.Parallel()

	pairs, err := kaldi.LoadPairs(
		strings.NewReader("[ A 1 ]\nu2 [ B 1 ]"),
		strings.NewReader("u1 a\nu2 b"),
		kaldi.WithUtteranceIDs(),
	)
	if err != nil {
		t.Fatalf("LoadPairs: %v", err)
	}
	if pairs[0].ID != "u1" || pairs[1].ID != "u2" {
		t.Errorf("ids = %q, %q", pairs[0].ID, pairs[1].ID)
	}

	_, err = kaldi.LoadPairs(strings.NewReader("u1 [ A 1 ]"), strings.NewReader("u9 a"), kaldi.WithUtteranceIDs())
	if !errors.Is(err, kaldi.ErrPairCount) {
		t.Errorf("mismatched ids: err = %v, want ErrPairCount", err)
	}
}

func TestLoadPairs_Errors(t *testing.T) {
	t.Parallel()

	_, err := kaldi.LoadPairs(strings.NewReader("[ A 1 ]\n[ B 1 ]"), strings.NewReader("a"))
	if !errors.Is(err, kaldi.ErrPairCount) {
		t.Errorf("err = %v, want ErrPairCount", err)
	}

	_, err = kaldi.LoadPairs(strings.NewReader("[ A 1 ]\n[ B ]"), strings.NewReader("a\nb"))
	if !errors.Is(err, kaldi.ErrMalformed) || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("err = %v, want ErrMalformed on line 2", err)
	}
}

func TestLoadPairFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sp := filepath.Join(dir, "sausages.txt")
	tp := filepath.Join(dir, "text.txt")
	if err := os.WriteFile(sp, []byte("[ ONE 1 ] [ TWO 1 ]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tp, []byte("ONE TWO\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	pairs, err := kaldi.LoadPairFiles(sp, tp)
	if err != nil {
		t.Fatalf("LoadPairFiles: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Network.Len() != 2 {
		t.Errorf("pairs = %+v", pairs)
	}

	if _, err := kaldi.LoadPairFiles(filepath.Join(dir, "missing"), tp); err == nil {
		t.Error("expected error for missing file")
	}
}
