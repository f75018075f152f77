// Package server exposes the aligner over a JSON HTTP API.
//
// Routes:
//
//	POST /v1/align        align one confusion network against a transcript
//	POST /v1/runs         align a corpus of Kaldi sausage/transcript lines, optionally persisting the run
//	GET  /v1/runs         list persisted runs, newest first
//	GET  /v1/runs/{id}    one persisted run with its utterances
//	GET  /v1/strategies   registered scoring strategies
//	GET  /healthz, /readyz, /metrics
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/MrWong99/sausalign/internal/align"
	"github.com/MrWong99/sausalign/internal/health"
	"github.com/MrWong99/sausalign/internal/kaldi"
	"github.com/MrWong99/sausalign/internal/observe"
	"github.com/MrWong99/sausalign/internal/scoring"
	"github.com/MrWong99/sausalign/internal/store"
	"github.com/MrWong99/sausalign/pkg/lexicon"
	"github.com/MrWong99/sausalign/pkg/sausage"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 8 << 20

// Settings describe how request payloads turn into alignment input and how
// results are summarised.
type Settings struct {
	// Parse applies to Kaldi sausage and transcript text.
	Parse []kaldi.Option
	// Slot applies to slots given as JSON edge lists.
	Slot []sausage.SlotOption
	// Case normalises JSON edge words and transcript word lists.
	Case    lexicon.Case
	Summary []align.SummaryOption
	Gap     string
	Workers int
}

// Backend supplies the current aligner. Implementations may swap engines
// between calls (for example on config reload); every method must be safe
// for concurrent use.
type Backend interface {
	// Engine returns the engine for strategy. The empty string selects the
	// configured default. An unknown strategy wraps
	// [scoring.ErrStrategyNotRegistered].
	Engine(strategy string) (*align.Engine, error)
	Strategies() []scoring.Strategy
	Settings() Settings
}

// Option is a functional option for [New].
type Option func(*Server)

// WithLogger sets the server logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics enables request and batch instrumentation.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRuns enables the /v1/runs endpoints backed by st. Without it those
// endpoints answer 501.
func WithRuns(st store.Store) Option {
	return func(s *Server) { s.runs = st }
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at /metrics. A nil h is ignored.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithMaxBodyBytes overrides [DefaultMaxBodyBytes].
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// Server is the HTTP API. Construct with [New] and mount [Server.Handler].
type Server struct {
	backend        Backend
	runs           store.Store
	logger         *slog.Logger
	metrics        *observe.Metrics
	health         *health.Handler
	metricsHandler http.Handler
	maxBody        int64

	handler http.Handler
}

// New builds the API on top of b.
func New(b Backend, opts ...Option) *Server {
	s := &Server{
		backend: b,
		logger:  slog.Default(),
		maxBody: DefaultMaxBodyBytes,
	}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/align", s.handleAlign)
	mux.HandleFunc("POST /v1/runs", s.handleCreateRun)
	mux.HandleFunc("GET /v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /v1/strategies", s.handleStrategies)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	s.handler = observe.Middleware(s.metrics, s.logger)(mux)
	return s
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type strategiesResponse struct {
	Default    string   `json:"default"`
	Strategies []string `json:"strategies"`
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	eng, err := s.backend.Engine("")
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	all := s.backend.Strategies()
	resp := strategiesResponse{Default: eng.Strategy(), Strategies: make([]string, len(all))}
	for i, st := range all {
		resp.Strategies[i] = string(st)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// decode reads a JSON body of at most maxBody bytes into v, rejecting
// unknown fields.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	observe.Logger(r.Context(), s.logger).Error("request failed", "err", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
