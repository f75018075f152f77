package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/sausalign/internal/batch"
	"github.com/MrWong99/sausalign/internal/kaldi"
	"github.com/MrWong99/sausalign/internal/observe"
	"github.com/MrWong99/sausalign/internal/report"
	"github.com/MrWong99/sausalign/internal/resilience"
	"github.com/MrWong99/sausalign/internal/store"
)

// maxListLimit bounds GET /v1/runs.
const maxListLimit = 1000

// runRequest carries a corpus as the text of a Kaldi sausage file and the
// matching transcript file.
type runRequest struct {
	Sausages    string `json:"sausages"`
	Transcripts string `json:"transcripts"`
	// UtteranceIDs strips a leading utterance id from every transcript line.
	UtteranceIDs bool   `json:"utterance_ids,omitempty"`
	Strategy     string `json:"strategy,omitempty"`
	Save         bool   `json:"save,omitempty"`
}

type runResponse struct {
	Saved bool `json:"saved"`
	report.Batch
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Save && s.runs == nil {
		s.writeError(w, http.StatusNotImplemented, "run persistence is disabled")
		return
	}

	eng, err := s.backend.Engine(req.Strategy)
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	set := s.backend.Settings()

	parse := set.Parse
	if req.UtteranceIDs {
		parse = append(parse[:len(parse):len(parse)], kaldi.WithUtteranceIDs())
	}
	pairs, err := kaldi.LoadPairs(strings.NewReader(req.Sausages), strings.NewReader(req.Transcripts), parse...)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runner := batch.New(eng,
		batch.WithWorkers(set.Workers),
		batch.WithMetrics(s.metrics),
		batch.WithLogger(s.logger),
		batch.WithSummaryOptions(set.Summary...),
	)
	rep, err := runner.Run(r.Context(), pairs)
	if err != nil {
		s.alignError(w, r, err)
		return
	}

	resp := runResponse{Batch: report.NewBatch(rep, set.Gap)}
	if req.Save {
		if err := s.runs.SaveRun(r.Context(), store.FromReport(rep, set.Gap)); err != nil {
			s.storeError(w, r, err)
			return
		}
		resp.Saved = true
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// storeError answers 503 while the store's circuit breaker is open.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		observe.Logger(r.Context(), s.logger).Warn("run store unavailable", "err", err)
		w.Header().Set("Retry-After", "30")
		s.writeError(w, http.StatusServiceUnavailable, "run store unavailable")
		return
	}
	s.internalError(w, r, err)
}

// runJSON is the wire form of a persisted run.
type runJSON struct {
	ID         string          `json:"id"`
	Strategy   string          `json:"strategy"`
	CreatedAt  time.Time       `json:"created_at"`
	DurationMS int64           `json:"duration_ms"`
	Summary    report.Summary  `json:"summary"`
	Utterances []utteranceJSON `json:"utterances,omitempty"`
}

type utteranceJSON struct {
	Position   int            `json:"position"`
	ID         string         `json:"id"`
	Hypothesis string         `json:"hypothesis"`
	Reference  string         `json:"reference"`
	Cost       float64        `json:"cost"`
	Summary    report.Summary `json:"summary"`
}

func newRunJSON(run store.Run) runJSON {
	out := runJSON{
		ID:         run.ID,
		Strategy:   run.Strategy,
		CreatedAt:  run.CreatedAt,
		DurationMS: run.Duration.Milliseconds(),
		Summary:    report.NewSummary(run.Summary),
	}
	for _, u := range run.Utterances {
		out.Utterances = append(out.Utterances, utteranceJSON{
			Position:   u.Position,
			ID:         u.ID,
			Hypothesis: u.Hypothesis,
			Reference:  u.Reference,
			Cost:       u.Cost,
			Summary:    report.NewSummary(u.Summary),
		})
	}
	return out
}

type listRunsResponse struct {
	Runs []runJSON `json:"runs"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusNotImplemented, "run persistence is disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxListLimit {
			s.writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and "+strconv.Itoa(maxListLimit))
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	resp := listRunsResponse{Runs: make([]runJSON, len(runs))}
	for i, run := range runs {
		resp.Runs[i] = newRunJSON(run)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusNotImplemented, "run persistence is disabled")
		return
	}
	run, err := s.runs.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newRunJSON(*run))
}
