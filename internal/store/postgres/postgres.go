// Package postgres implements [store.Store] on PostgreSQL through a shared
// [pgxpool.Pool]. [Migrate] creates the schema idempotently, so a fresh
// database needs no manual setup.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/sausalign/internal/store"
)

var _ store.Store = (*Store)(nil)

const ddl = `
CREATE TABLE IF NOT EXISTS alignment_runs (
    id            TEXT         PRIMARY KEY,
    strategy      TEXT         NOT NULL,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    duration_ns   BIGINT       NOT NULL DEFAULT 0,
    words         INTEGER      NOT NULL DEFAULT 0,
    correct       INTEGER      NOT NULL DEFAULT 0,
    substitutions INTEGER      NOT NULL DEFAULT 0,
    oracle_hits   INTEGER      NOT NULL DEFAULT 0,
    deletions     INTEGER      NOT NULL DEFAULT 0,
    insertions    INTEGER      NOT NULL DEFAULT 0,
    skipped       INTEGER      NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_alignment_runs_created_at
    ON alignment_runs (created_at DESC);

CREATE TABLE IF NOT EXISTS alignment_utterances (
    run_id        TEXT              NOT NULL REFERENCES alignment_runs (id) ON DELETE CASCADE,
    position      INTEGER           NOT NULL,
    utterance_id  TEXT              NOT NULL,
    hypothesis    TEXT              NOT NULL,
    reference     TEXT              NOT NULL,
    cost          DOUBLE PRECISION  NOT NULL,
    words         INTEGER           NOT NULL DEFAULT 0,
    correct       INTEGER           NOT NULL DEFAULT 0,
    substitutions INTEGER           NOT NULL DEFAULT 0,
    oracle_hits   INTEGER           NOT NULL DEFAULT 0,
    deletions     INTEGER           NOT NULL DEFAULT 0,
    insertions    INTEGER           NOT NULL DEFAULT 0,
    skipped       INTEGER           NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, position)
);
`

// Migrate creates the run tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Store is a PostgreSQL-backed run store. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, verifies the connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveRun implements [store.Store]. Utterances are bulk-loaded with COPY.
func (s *Store) SaveRun(ctx context.Context, run store.Run) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM alignment_runs WHERE id = $1`, run.ID); err != nil {
		return fmt.Errorf("postgres store: replace run: %w", err)
	}

	const q = `
		INSERT INTO alignment_runs
		    (id, strategy, created_at, duration_ns,
		     words, correct, substitutions, oracle_hits, deletions, insertions, skipped)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	sum := run.Summary
	if _, err := tx.Exec(ctx, q,
		run.ID, run.Strategy, run.CreatedAt, run.Duration.Nanoseconds(),
		sum.Words, sum.Correct, sum.Substitutions, sum.OracleHits, sum.Deletions, sum.Insertions, sum.Skipped,
	); err != nil {
		return fmt.Errorf("postgres store: insert run: %w", err)
	}

	if len(run.Utterances) > 0 {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"alignment_utterances"},
			[]string{
				"run_id", "position", "utterance_id", "hypothesis", "reference", "cost",
				"words", "correct", "substitutions", "oracle_hits", "deletions", "insertions", "skipped",
			},
			pgx.CopyFromSlice(len(run.Utterances), func(i int) ([]any, error) {
				u := run.Utterances[i]
				us := u.Summary
				return []any{
					run.ID, int32(u.Position), u.ID, u.Hypothesis, u.Reference, u.Cost,
					int32(us.Words), int32(us.Correct), int32(us.Substitutions), int32(us.OracleHits),
					int32(us.Deletions), int32(us.Insertions), int32(us.Skipped),
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("postgres store: copy utterances: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	return nil
}

const runColumns = `id, strategy, created_at, duration_ns,
    words, correct, substitutions, oracle_hits, deletions, insertions, skipped`

// GetRun implements [store.Store].
func (s *Store) GetRun(ctx context.Context, id string) (*store.Run, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM alignment_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get run: %w", err)
	}

	const q = `
		SELECT position, utterance_id, hypothesis, reference, cost,
		       words, correct, substitutions, oracle_hits, deletions, insertions, skipped
		FROM   alignment_utterances
		WHERE  run_id = $1
		ORDER  BY position`
	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get utterances: %w", err)
	}
	utts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Utterance, error) {
		var u store.Utterance
		us := &u.Summary
		err := row.Scan(&u.Position, &u.ID, &u.Hypothesis, &u.Reference, &u.Cost,
			&us.Words, &us.Correct, &us.Substitutions, &us.OracleHits, &us.Deletions, &us.Insertions, &us.Skipped)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan utterances: %w", err)
	}
	run.Utterances = utts
	return run, nil
}

// ListRuns implements [store.Store].
func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	q := `SELECT ` + runColumns + ` FROM alignment_runs ORDER BY created_at DESC, id`
	var args []any
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Run, error) {
		r, err := scanRun(row)
		if err != nil {
			return store.Run{}, err
		}
		return *r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*store.Run, error) {
	var (
		run store.Run
		dur int64
	)
	sum := &run.Summary
	if err := row.Scan(&run.ID, &run.Strategy, &run.CreatedAt, &dur,
		&sum.Words, &sum.Correct, &sum.Substitutions, &sum.OracleHits, &sum.Deletions, &sum.Insertions, &sum.Skipped,
	); err != nil {
		return nil, err
	}
	run.Duration = time.Duration(dur)
	return &run, nil
}
