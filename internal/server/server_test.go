package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/sausalign/internal/align"
	"github.com/MrWong99/sausalign/internal/health"
	"github.com/MrWong99/sausalign/internal/kaldi"
	"github.com/MrWong99/sausalign/internal/resilience"
	"github.com/MrWong99/sausalign/internal/scoring"
	"github.com/MrWong99/sausalign/internal/server"
	"github.com/MrWong99/sausalign/internal/store"
	"github.com/MrWong99/sausalign/pkg/lexicon"
)

// backend serves engines from the default registry over a fixed lexicon.
type backend struct {
	reg  *scoring.Registry
	deps scoring.Deps
}

func newBackend() *backend {
	return &backend{
		reg: scoring.NewDefaultRegistry(),
		deps: scoring.Deps{Lexicon: lexicon.FromMap(map[string]string{
			"CAPTAIN":  "K AE P T AH N",
			"CAPTAINS": "K AE P T AH N Z",
			"KAPTAN":   "K AE P T AH N",
		})},
	}
}

func (b *backend) Engine(strategy string) (*align.Engine, error) {
	s, err := b.reg.Parse(strategy)
	if err != nil {
		return nil, err
	}
	return align.NewWithStrategy(b.reg, s, b.deps)
}

func (b *backend) Strategies() []scoring.Strategy { return b.reg.Strategies() }

func (b *backend) Settings() server.Settings {
	return server.Settings{
		Parse:   []kaldi.Option{kaldi.WithNullSymbols("<eps>"), kaldi.WithCase(lexicon.CaseUpper)},
		Case:    lexicon.CaseUpper,
		Summary: []align.SummaryOption{align.IgnoreFillers("<eps>")},
		Gap:     "*",
		Workers: 2,
	}
}

// memStore is an in-memory [store.Store].
type memStore struct {
	mu   sync.Mutex
	runs []store.Run
}

func (m *memStore) SaveRun(_ context.Context, run store.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memStore) GetRun(_ context.Context, id string) (*store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", store.ErrNotFound, id)
}

func (m *memStore) ListRuns(_ context.Context, limit int) ([]store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.runs)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Utterances = nil
	}
	return out, nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))

	var out map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s response: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec, out
}

func TestAlign_Sausages(t *testing.T) {
	t.Parallel()
	srv := server.New(newBackend())

	rec, body := do(t, srv, "POST", "/v1/align", map[string]any{
		"id":         "utt1",
		"sausages":   "[ captain 0.6 kaptan 0.4 ] [ <eps> 1 ]",
		"transcript": "captains",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body["id"] != "utt1" || body["strategy"] != "weighted-phoneme" {
		t.Errorf("id/strategy = %v/%v", body["id"], body["strategy"])
	}
	steps := body["steps"].([]any)
	if len(steps) != 1 {
		t.Fatalf("steps = %v, want one (null slot dropped)", steps)
	}
	if op := steps[0].(map[string]any)["op"]; op != "substitute" {
		t.Errorf("op = %v, want substitute", op)
	}
	if body["hypothesis"] != "CAPTAIN" || body["reference"] != "CAPTAINS" {
		t.Errorf("hypothesis/reference = %v/%v", body["hypothesis"], body["reference"])
	}
	// One extra phoneme over a 15-rune pronunciation.
	if cost := body["cost"].(float64); cost <= 0 || cost >= 0.2 {
		t.Errorf("cost = %v, want a small positive phoneme distance", cost)
	}
}

func TestAlign_SlotsAndWords(t *testing.T) {
	t.Parallel()
	srv := server.New(newBackend())

	rec, body := do(t, srv, "POST", "/v1/align", map[string]any{
		"slots": [][]map[string]any{
			{{"word": "a", "weight": 1}},
			{{"word": "b", "weight": 1}},
		},
		"words":    []string{"a", "x", "b"},
		"strategy": "weighted-orthographic",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body["cost"] != 1.0 {
		t.Errorf("cost = %v, want 1", body["cost"])
	}
	if body["hypothesis"] != "A * B" || body["reference"] != "A X B" {
		t.Errorf("hypothesis/reference = %q/%q", body["hypothesis"], body["reference"])
	}
	sum := body["summary"].(map[string]any)
	if sum["insertions"] != 1.0 || sum["correct"] != 2.0 {
		t.Errorf("summary = %v", sum)
	}
}

func TestAlign_Empty(t *testing.T) {
	t.Parallel()
	rec, body := do(t, server.New(newBackend()), "POST", "/v1/align", map[string]any{"transcript": "hello"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["cost"] != 0.0 || len(body["steps"].([]any)) != 0 {
		t.Errorf("empty network should give an empty alignment, got %v", body)
	}
}

func TestAlign_Errors(t *testing.T) {
	t.Parallel()
	srv := server.New(newBackend())

	tests := []struct {
		name string
		body any
		want int
	}{
		{"malformed json", "{", http.StatusBadRequest},
		{"unknown field", map[string]any{"sausage": "[ a 1 ]"}, http.StatusBadRequest},
		{"both network forms", map[string]any{"sausages": "[ a 1 ]", "slots": [][]map[string]any{{{"word": "a", "weight": 1}}}}, http.StatusBadRequest},
		{"both transcript forms", map[string]any{"transcript": "a", "words": []string{"a"}}, http.StatusBadRequest},
		{"malformed sausage", map[string]any{"sausages": "[ a 1", "transcript": "a"}, http.StatusBadRequest},
		{"unknown strategy", map[string]any{"sausages": "[ a 1 ]", "transcript": "a", "strategy": "soundex"}, http.StatusBadRequest},
		{"empty slot", map[string]any{"sausages": "[ ]", "transcript": "a"}, http.StatusUnprocessableEntity},
		{"negative weight", map[string]any{"slots": [][]map[string]any{{{"word": "a", "weight": -1}}}, "transcript": "a"}, http.StatusBadRequest},
		{"zero weight", map[string]any{"sausages": "[ a 0 b 0 ]", "transcript": "a"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec, body := do(t, srv, "POST", "/v1/align", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if msg, _ := body["error"].(string); msg == "" {
				t.Errorf("missing error message: %v", body)
			}
		})
	}
}

func TestAlign_BodyLimit(t *testing.T) {
	t.Parallel()
	srv := server.New(newBackend(), server.WithMaxBodyBytes(16))
	rec, _ := do(t, srv, "POST", "/v1/align", map[string]any{"transcript": "a much longer transcript than sixteen bytes"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStrategies(t *testing.T) {
	t.Parallel()
	rec, body := do(t, server.New(newBackend()), "GET", "/v1/strategies", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["default"] != string(scoring.Default) {
		t.Errorf("default = %v", body["default"])
	}
	if got := len(body["strategies"].([]any)); got != len(scoring.Builtin) {
		t.Errorf("strategies = %d, want %d", got, len(scoring.Builtin))
	}
}

const (
	corpusSausages    = "utt1 [ a 1 ] [ b 0.7 c 0.3 ]\nutt2 [ d 1 ]\n"
	corpusTranscripts = "utt1 a c\nutt2 d e\n"
)

func TestRuns_CreateSaveAndFetch(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	srv := server.New(newBackend(), server.WithRuns(st))

	rec, body := do(t, srv, "POST", "/v1/runs", map[string]any{
		"sausages":      corpusSausages,
		"transcripts":   corpusTranscripts,
		"utterance_ids": true,
		"strategy":      "weighted-orthographic",
		"save":          true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if body["saved"] != true {
		t.Error("saved = false")
	}
	items := body["items"].([]any)
	if len(items) != 2 || items[0].(map[string]any)["id"] != "utt1" || items[1].(map[string]any)["id"] != "utt2" {
		t.Fatalf("items = %v", items)
	}
	total := body["total"].(map[string]any)
	if total["words"] != 4.0 || total["substitutions"] != 1.0 || total["oracle_hits"] != 1.0 || total["insertions"] != 1.0 {
		t.Errorf("total = %v", total)
	}
	runID := body["run_id"].(string)

	rec, body = do(t, srv, "GET", "/v1/runs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	runs := body["runs"].([]any)
	if len(runs) != 1 || runs[0].(map[string]any)["id"] != runID {
		t.Fatalf("runs = %v", runs)
	}
	if _, ok := runs[0].(map[string]any)["utterances"]; ok {
		t.Error("list should omit utterances")
	}

	rec, body = do(t, srv, "GET", "/v1/runs/"+runID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}
	utts := body["utterances"].([]any)
	if len(utts) != 2 {
		t.Fatalf("utterances = %v", utts)
	}
	if u := utts[1].(map[string]any); u["hypothesis"] != "D *" || u["reference"] != "D E" {
		t.Errorf("utterance 2 = %v", u)
	}
}

func TestRuns_WithoutSave(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	srv := server.New(newBackend(), server.WithRuns(st))

	rec, body := do(t, srv, "POST", "/v1/runs", map[string]any{
		"sausages":    "[ a 1 ]\n",
		"transcripts": "a\n",
	})
	if rec.Code != http.StatusOK || body["saved"] != false {
		t.Fatalf("status = %d, body %v", rec.Code, body)
	}
	if len(st.runs) != 0 {
		t.Errorf("run persisted without save: %v", st.runs)
	}
}

func TestRuns_Errors(t *testing.T) {
	t.Parallel()
	withStore := server.New(newBackend(), server.WithRuns(&memStore{}))
	without := server.New(newBackend())

	tests := []struct {
		name   string
		srv    http.Handler
		method string
		path   string
		body   any
		want   int
	}{
		{"line count mismatch", withStore, "POST", "/v1/runs", map[string]any{"sausages": "[ a 1 ]\n[ b 1 ]\n", "transcripts": "a\n"}, http.StatusBadRequest},
		{"empty slot in corpus", withStore, "POST", "/v1/runs", map[string]any{"sausages": "[ ]\n", "transcripts": "a\n"}, http.StatusUnprocessableEntity},
		{"unknown run", withStore, "GET", "/v1/runs/nope", nil, http.StatusNotFound},
		{"bad limit", withStore, "GET", "/v1/runs?limit=abc", nil, http.StatusBadRequest},
		{"limit too large", withStore, "GET", "/v1/runs?limit=5000", nil, http.StatusBadRequest},
		{"save disabled", without, "POST", "/v1/runs", map[string]any{"sausages": "[ a 1 ]\n", "transcripts": "a\n", "save": true}, http.StatusNotImplemented},
		{"list disabled", without, "GET", "/v1/runs", nil, http.StatusNotImplemented},
		{"get disabled", without, "GET", "/v1/runs/x", nil, http.StatusNotImplemented},
		{"wrong method", withStore, "DELETE", "/v1/runs/x", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec, _ := do(t, tt.srv, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

// failingStore fails every ListRuns call.
type failingStore struct{ memStore }

func (*failingStore) ListRuns(context.Context, int) ([]store.Run, error) {
	return nil, errors.New("connection reset")
}

func TestRuns_StoreFailureIsInternal(t *testing.T) {
	t.Parallel()
	rec, body := do(t, server.New(newBackend(), server.WithRuns(&failingStore{})), "GET", "/v1/runs", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body["error"] != "internal error" {
		t.Errorf("error = %v, store details should not leak", body["error"])
	}
}

func TestRuns_OpenBreakerIsUnavailable(t *testing.T) {
	t.Parallel()
	cb := resilience.NewCircuitBreaker(resilience.Config{
		MaxFailures:  1,
		ResetTimeout: time.Hour,
		IsFailure:    store.IsFailure,
		Logger:       slog.New(slog.DiscardHandler),
	})
	srv := server.New(newBackend(), server.WithRuns(store.WithBreaker(&failingStore{}, cb)))

	if rec, _ := do(t, srv, "GET", "/v1/runs", nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("first failure = %d, want 500", rec.Code)
	}
	rec, body := do(t, srv, "GET", "/v1/runs", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("open breaker = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || body["error"] != "run store unavailable" {
		t.Errorf("headers = %v, body = %v", rec.Header(), body)
	}
}

func TestHealthAndMetricsMounted(t *testing.T) {
	t.Parallel()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "sausalign_alignments_total 0")
	})
	srv := server.New(newBackend(),
		server.WithHealth(health.New([]health.Checker{health.Ping("store", &memStore{})}, health.WithTimeout(time.Second))),
		server.WithMetricsHandler(metrics),
	)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec, _ := do(t, srv, "GET", path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
	if rec, _ := do(t, server.New(newBackend()), "GET", "/metrics", nil); rec.Code != http.StatusNotFound {
		t.Errorf("/metrics without handler = %d, want 404", rec.Code)
	}
}
