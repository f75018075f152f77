package app_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/sausalign/internal/app"
	"github.com/MrWong99/sausalign/internal/config"
	"github.com/MrWong99/sausalign/internal/kaldi"
	"github.com/MrWong99/sausalign/internal/observe"
	"github.com/MrWong99/sausalign/internal/scoring"
	"github.com/MrWong99/sausalign/pkg/sausage"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const testDict = `;;; test dictionary
CAPTAIN  K AE P T AH N
CAPTAINS  K AE P T AH N Z
KNIGHT  N AY T
NIGHT  N AY T
`

func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func writeDict(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.dict")
	if err := os.WriteFile(path, []byte(testDict), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuild_WithoutLexicon(t *testing.T) {
	t.Parallel()
	p, err := app.Build(config.Default(), app.WithLogger(quiet()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Lexicon() != nil {
		t.Error("Lexicon() should be nil without lexicon.path")
	}
	eng, err := p.Engine("")
	if err != nil {
		t.Fatal(err)
	}
	if eng.Strategy() != string(scoring.Default) {
		t.Errorf("default strategy = %q", eng.Strategy())
	}
	// Without a dictionary phoneme scoring falls back to spellings.
	res, err := eng.Align(context.Background(), sausage.NewPairFromSentence(
		sausage.NewNetwork([]sausage.Slot{sausage.NewSlot([]sausage.Edge{{Word: "KNIGHT", Weight: 1}})}),
		"KNIGHT",
	))
	if err != nil {
		t.Fatal(err)
	}
	if res.Cost != 0 {
		t.Errorf("cost = %v, want 0 for identical spellings", res.Cost)
	}
}

func TestBuild_LoadsLexicon(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Lexicon.Path = writeDict(t)

	p, err := app.Build(cfg, app.WithLogger(quiet()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := p.Lexicon().Len(); got != 4 {
		t.Errorf("lexicon words = %d, want 4", got)
	}

	// KNIGHT and NIGHT share a pronunciation.
	set := p.Settings()
	net, err := kaldi.ParseSausages("[ knight 1 ]", set.Parse...)
	if err != nil {
		t.Fatal(err)
	}
	_, words := kaldi.ParseTranscript("night", set.Parse...)
	eng, _ := p.Engine("")
	res, err := eng.Align(context.Background(), sausage.NewPair(net, words))
	if err != nil {
		t.Fatal(err)
	}
	if res.Cost != 0 {
		t.Errorf("cost = %v, want 0 for homophones", res.Cost)
	}
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	missing := config.Default()
	missing.Lexicon.Path = filepath.Join(t.TempDir(), "nope.dict")
	if _, err := app.Build(missing, app.WithLogger(quiet())); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing lexicon: got %v, want os.ErrNotExist", err)
	}

	unknown := config.Default()
	unknown.Alignment.Strategy = "soundex"
	if _, err := app.Build(unknown, app.WithLogger(quiet())); !errors.Is(err, scoring.ErrStrategyNotRegistered) {
		t.Errorf("unknown strategy: got %v, want ErrStrategyNotRegistered", err)
	}
}

func TestPipeline_Engine(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Alignment.InsertionCost = 2.5
	p, err := app.Build(cfg, app.WithLogger(quiet()))
	if err != nil {
		t.Fatal(err)
	}

	def, _ := p.Engine("")
	same, _ := p.Engine(string(scoring.Default))
	if def != same {
		t.Error("naming the default strategy should return the default engine")
	}

	jw, err := p.Engine(string(scoring.JaroWinkler))
	if err != nil {
		t.Fatal(err)
	}
	if jw.Strategy() != string(scoring.JaroWinkler) || jw.InsertionCost() != 2.5 {
		t.Errorf("engine = %s ins=%v, want jaro-winkler ins=2.5", jw.Strategy(), jw.InsertionCost())
	}

	if _, err := p.Engine("soundex"); !errors.Is(err, scoring.ErrStrategyNotRegistered) {
		t.Errorf("got %v, want ErrStrategyNotRegistered", err)
	}
	if got := len(p.Strategies()); got != len(scoring.Builtin) {
		t.Errorf("strategies = %d, want %d", got, len(scoring.Builtin))
	}
}

func TestPipeline_Settings(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Alignment.SortEdges = true
	cfg.Alignment.GapSymbol = "-"
	cfg.Batch.Workers = 3
	p, err := app.Build(cfg, app.WithLogger(quiet()))
	if err != nil {
		t.Fatal(err)
	}
	set := p.Settings()

	if set.Gap != "-" || set.Workers != 3 || len(set.Slot) != 1 {
		t.Errorf("settings = %+v", set)
	}

	// Sorted edges and a dropped, case-normalised null slot.
	net, err := kaldi.ParseSausages("[ b 0.2 a 0.8 ] [ <eps> 1 ]", set.Parse...)
	if err != nil {
		t.Fatal(err)
	}
	if net.Len() != 1 || net.At(0).At(0).Word != "A" {
		t.Fatalf("network = %v", net)
	}

	// An unmatched filler slot is skipped, not counted as a deletion.
	net = sausage.NewNetwork([]sausage.Slot{
		sausage.NewSlot([]sausage.Edge{{Word: "A", Weight: 1}}),
		sausage.NewSlot([]sausage.Edge{{Word: "<EPS>", Weight: 0.9}, {Word: "UH", Weight: 0.1}}),
	})
	eng, _ := p.Engine("")
	res, err := eng.Align(context.Background(), sausage.NewPair(net, []string{"A"}))
	if err != nil {
		t.Fatal(err)
	}
	sum := res.Summary(set.Summary...)
	if sum.Deletions != 0 || sum.Skipped != 1 {
		t.Errorf("summary = %+v, want the filler skipped", sum)
	}
}

func TestPipeline_Runner(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Lexicon.Path = writeDict(t)
	cfg.Batch.Workers = 2
	p, err := app.Build(cfg, app.WithLogger(quiet()), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatal(err)
	}

	r := p.Runner()
	if r.Workers() != 2 {
		t.Errorf("workers = %d, want 2", r.Workers())
	}
	pairs, err := kaldi.LoadPairFiles(writeFile(t, "s.txt", "[ captain 1 ]\n[ knight 1 ]\n"), writeFile(t, "t.txt", "captains\nnight\n"), p.Settings().Parse...)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := r.Run(context.Background(), pairs)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Strategy != string(scoring.Default) || len(rep.Items) != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Total.Substitutions != 2 || rep.Total.Correct != 0 {
		t.Errorf("total = %+v", rep.Total)
	}
	if rep.Items[1].Result.Cost != 0 {
		t.Errorf("KNIGHT/NIGHT cost = %v, want 0", rep.Items[1].Result.Cost)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st, err := app.OpenStore(ctx, config.StoreConfig{})
	if err != nil || st != nil {
		t.Errorf("disabled store = %v, %v; want nil, nil", st, err)
	}

	st, err = app.OpenStore(ctx, config.StoreConfig{Driver: config.StoreSQLite, DSN: filepath.Join(t.TempDir(), "runs.db")})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if err := st.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	if _, err := app.OpenStore(ctx, config.StoreConfig{Driver: "mysql", DSN: "x"}); err == nil {
		t.Error("unknown driver should fail")
	}
}
