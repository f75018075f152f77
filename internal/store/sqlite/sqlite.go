// Package sqlite implements [store.Store] on an embedded SQLite database
// using the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/sausalign/internal/align"
	"github.com/MrWong99/sausalign/internal/store"
)

var _ store.Store = (*Store)(nil)

// timeLayout is fixed width so created_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a SQLite-backed run store.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path and applies migrations. The
// parent directory is created if missing.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite store: apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var migrations = []struct {
	version string
	sql     string
}{
	{"0001_runs", `
CREATE TABLE runs (
    id            TEXT    PRIMARY KEY,
    strategy      TEXT    NOT NULL,
    created_at    TEXT    NOT NULL,
    duration_ns   INTEGER NOT NULL DEFAULT 0,
    words         INTEGER NOT NULL DEFAULT 0,
    correct       INTEGER NOT NULL DEFAULT 0,
    substitutions INTEGER NOT NULL DEFAULT 0,
    oracle_hits   INTEGER NOT NULL DEFAULT 0,
    deletions     INTEGER NOT NULL DEFAULT 0,
    insertions    INTEGER NOT NULL DEFAULT 0,
    skipped       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX idx_runs_created_at ON runs (created_at);

CREATE TABLE utterances (
    run_id        TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position      INTEGER NOT NULL,
    utterance_id  TEXT    NOT NULL,
    hypothesis    TEXT    NOT NULL,
    reference     TEXT    NOT NULL,
    cost          REAL    NOT NULL,
    words         INTEGER NOT NULL DEFAULT 0,
    correct       INTEGER NOT NULL DEFAULT 0,
    substitutions INTEGER NOT NULL DEFAULT 0,
    oracle_hits   INTEGER NOT NULL DEFAULT 0,
    deletions     INTEGER NOT NULL DEFAULT 0,
    insertions    INTEGER NOT NULL DEFAULT 0,
    skipped       INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, position)
);`},
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store: begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite store: ensure schema_migrations: %w", err)
	}
	for _, m := range migrations {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
			return fmt.Errorf("sqlite store: scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("sqlite store: apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("sqlite store: record migration %s: %w", m.version, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite store: commit migrations: %w", err)
	}
	return nil
}

// SaveRun implements [store.Store].
func (s *Store) SaveRun(ctx context.Context, run store.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Cascades to the run's utterances.
	if _, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", run.ID); err != nil {
		return fmt.Errorf("sqlite store: replace run: %w", err)
	}
	sum := run.Summary
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, strategy, created_at, duration_ns,
		    words, correct, substitutions, oracle_hits, deletions, insertions, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Strategy, run.CreatedAt.UTC().Format(timeLayout), run.Duration.Nanoseconds(),
		sum.Words, sum.Correct, sum.Substitutions, sum.OracleHits, sum.Deletions, sum.Insertions, sum.Skipped,
	); err != nil {
		return fmt.Errorf("sqlite store: insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO utterances (run_id, position, utterance_id, hypothesis, reference, cost,
		    words, correct, substitutions, oracle_hits, deletions, insertions, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite store: prepare utterance insert: %w", err)
	}
	defer stmt.Close()
	for _, u := range run.Utterances {
		us := u.Summary
		if _, err := stmt.ExecContext(ctx,
			run.ID, u.Position, u.ID, u.Hypothesis, u.Reference, u.Cost,
			us.Words, us.Correct, us.Substitutions, us.OracleHits, us.Deletions, us.Insertions, us.Skipped,
		); err != nil {
			return fmt.Errorf("sqlite store: insert utterance %q: %w", u.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite store: commit: %w", err)
	}
	return nil
}

const runColumns = `id, strategy, created_at, duration_ns,
    words, correct, substitutions, oracle_hits, deletions, insertions, skipped`

// GetRun implements [store.Store].
func (s *Store) GetRun(ctx context.Context, id string) (*store.Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT position, utterance_id, hypothesis, reference, cost,
		    words, correct, substitutions, oracle_hits, deletions, insertions, skipped
		FROM utterances WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get utterances: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u store.Utterance
		us := &u.Summary
		if err := rows.Scan(&u.Position, &u.ID, &u.Hypothesis, &u.Reference, &u.Cost,
			&us.Words, &us.Correct, &us.Substitutions, &us.OracleHits, &us.Deletions, &us.Insertions, &us.Skipped,
		); err != nil {
			return nil, fmt.Errorf("sqlite store: scan utterance: %w", err)
		}
		run.Utterances = append(run.Utterances, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: iterate utterances: %w", err)
	}
	return run, nil
}

// ListRuns implements [store.Store].
func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	q := "SELECT " + runColumns + " FROM runs ORDER BY created_at DESC, id"
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list runs: %w", err)
	}
	defer rows.Close()

	var out []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: scan run: %w", err)
		}
		out = append(out, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: iterate runs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*store.Run, error) {
	var (
		run     store.Run
		created string
		dur     int64
		sum     align.Summary
	)
	if err := sc.Scan(&run.ID, &run.Strategy, &created, &dur,
		&sum.Words, &sum.Correct, &sum.Substitutions, &sum.OracleHits, &sum.Deletions, &sum.Insertions, &sum.Skipped,
	); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	run.CreatedAt = t
	run.Duration = time.Duration(dur)
	run.Summary = sum
	return &run, nil
}
