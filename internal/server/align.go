package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrWong99/sausalign/internal/align"
	"github.com/MrWong99/sausalign/internal/kaldi"
	"github.com/MrWong99/sausalign/internal/report"
	"github.com/MrWong99/sausalign/internal/scoring"
	"github.com/MrWong99/sausalign/pkg/sausage"
)

// alignRequest carries one network and one transcript. The network is given
// either as Kaldi sausage text or as JSON edge lists, and the transcript
// either as a sentence or as pre-split words.
type alignRequest struct {
	ID         string          `json:"id,omitempty"`
	Sausages   string          `json:"sausages,omitempty"`
	Slots      [][]report.Edge `json:"slots,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Words      []string        `json:"words,omitempty"`
	Strategy   string          `json:"strategy,omitempty"`
}

type alignResponse struct {
	Strategy string `json:"strategy"`
	report.Alignment
}

func (s *Server) handleAlign(w http.ResponseWriter, r *http.Request) {
	var req alignRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Sausages != "" && req.Slots != nil {
		s.writeError(w, http.StatusBadRequest, "give either sausages or slots, not both")
		return
	}
	if req.Transcript != "" && req.Words != nil {
		s.writeError(w, http.StatusBadRequest, "give either transcript or words, not both")
		return
	}

	eng, err := s.backend.Engine(req.Strategy)
	if err != nil {
		s.engineError(w, r, err)
		return
	}
	set := s.backend.Settings()

	pair, err := requestPair(req, set)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := eng.Align(r.Context(), pair)
	if err != nil {
		s.alignError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, alignResponse{
		Strategy:  eng.Strategy(),
		Alignment: report.NewAlignment(req.ID, res, res.Summary(set.Summary...), set.Gap),
	})
}

func requestPair(req alignRequest, set Settings) (sausage.Pair, error) {
	var net sausage.Network
	if req.Slots != nil {
		edges := make([][]sausage.Edge, len(req.Slots))
		for i, slot := range req.Slots {
			edges[i] = make([]sausage.Edge, len(slot))
			for j, e := range slot {
				if e.Weight < 0 {
					return sausage.Pair{}, fmt.Errorf("slot %d edge %d: negative weight %v", i, j, e.Weight)
				}
				edges[i][j] = sausage.Edge{Word: set.Case.Apply(e.Word), Weight: e.Weight}
			}
		}
		net = sausage.NewNetworkFromEdges(edges, set.Slot...)
	} else {
		var err error
		if net, err = kaldi.ParseSausages(req.Sausages, set.Parse...); err != nil {
			return sausage.Pair{}, err
		}
	}

	if req.Words != nil {
		words := make([]string, len(req.Words))
		for i, wd := range req.Words {
			words[i] = set.Case.Apply(wd)
		}
		return sausage.Pair{ID: req.ID, Network: net, Words: words}, nil
	}
	_, words := kaldi.ParseTranscript(req.Transcript, set.Parse...)
	return sausage.Pair{ID: req.ID, Network: net, Words: words}, nil
}

func (s *Server) engineError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, scoring.ErrStrategyNotRegistered) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.internalError(w, r, err)
}

// alignError maps alignment failures: bad slots or scorer output are the
// caller's input problem (422), cancellation is reported as 503.
func (s *Server) alignError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sausage.ErrEmptySlot),
		errors.Is(err, scoring.ErrZeroWeight),
		errors.Is(err, align.ErrInvalidCost):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.internalError(w, r, err)
	}
}
