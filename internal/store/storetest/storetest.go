// Package storetest holds a conformance suite shared by every
// [store.Store] implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/sausalign/internal/align"
	"github.com/MrWong99/sausalign/internal/store"
)

// SampleRun returns a run with n utterances created at created.
func SampleRun(id string, created time.Time, n int) store.Run {
	run := store.Run{
		ID:        id,
		Strategy:  "weighted-phoneme",
		CreatedAt: created.UTC().Truncate(time.Microsecond),
		Duration:  1500 * time.Millisecond,
	}
	for i := range n {
		sum := align.Summary{Words: 3, Correct: 2, Substitutions: 1, OracleHits: 1, Insertions: i % 2, Skipped: 1}
		run.Utterances = append(run.Utterances, store.Utterance{
			Position:   i,
			ID:         fmt.Sprintf("utt-%03d", i),
			Hypothesis: "HELLO * WORLD",
			Reference:  "HELLO BIG WORLD",
			Cost:       0.25 * float64(i),
			Summary:    sum,
		})
		run.Summary = run.Summary.Add(sum)
	}
	return run
}

// Run exercises s. The store must be empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	t.Run("not found", func(t *testing.T) {
		_, err := s.GetRun(ctx, "missing")
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := SampleRun("run-old", base, 2)
	newer := SampleRun("run-new", base.Add(time.Hour), 3)

	t.Run("save and get", func(t *testing.T) {
		for _, r := range []store.Run{older, newer} {
			if err := s.SaveRun(ctx, r); err != nil {
				t.Fatalf("SaveRun(%s): %v", r.ID, err)
			}
		}
		got, err := s.GetRun(ctx, newer.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		assertRun(t, got, newer)
	})

	t.Run("list newest first", func(t *testing.T) {
		runs, err := s.ListRuns(ctx, 0)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(runs) != 2 || runs[0].ID != newer.ID || runs[1].ID != older.ID {
			t.Fatalf("ListRuns ids = %v", ids(runs))
		}
		if len(runs[0].Utterances) != 0 {
			t.Error("ListRuns should not load utterances")
		}
		if runs[0].Summary != newer.Summary {
			t.Errorf("summary = %+v, want %+v", runs[0].Summary, newer.Summary)
		}

		limited, err := s.ListRuns(ctx, 1)
		if err != nil {
			t.Fatalf("ListRuns(1): %v", err)
		}
		if len(limited) != 1 || limited[0].ID != newer.ID {
			t.Errorf("ListRuns(1) ids = %v", ids(limited))
		}
	})

	t.Run("save replaces", func(t *testing.T) {
		replaced := SampleRun(older.ID, older.CreatedAt, 1)
		replaced.Strategy = "jaro-winkler"
		if err := s.SaveRun(ctx, replaced); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
		got, err := s.GetRun(ctx, older.ID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		assertRun(t, got, replaced)
	})
}

func assertRun(t *testing.T, got *store.Run, want store.Run) {
	t.Helper()
	if got.ID != want.ID || got.Strategy != want.Strategy || got.Duration != want.Duration || got.Summary != want.Summary {
		t.Errorf("run = %+v, want %+v", *got, want)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	if len(got.Utterances) != len(want.Utterances) {
		t.Fatalf("utterances = %d, want %d", len(got.Utterances), len(want.Utterances))
	}
	for i := range want.Utterances {
		if got.Utterances[i] != want.Utterances[i] {
			t.Errorf("utterance %d = %+v, want %+v", i, got.Utterances[i], want.Utterances[i])
		}
	}
}

func ids(runs []store.Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}
