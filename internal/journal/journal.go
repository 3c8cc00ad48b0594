// Package journal records deployment history in a project-local SQLite
// database: one row per run, one row per executed leaf. The journal is
// observability, not control flow — writes are best-effort and a broken
// journal never fails a deployment. The history command reads it back.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/dbbm/internal/state"
)

//go:embed schema.sql
var schemaSQL string

// DefaultPath returns the journal location under a project root.
func DefaultPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".dbbm", "journal.db")
}

// Store wraps the journal database.
type Store struct {
	db *sql.DB

	// now is swappable for tests.
	now func() time.Time
}

// Open creates or opens the journal at path, applying pragmas and the
// schema. SQLite allows one writer at a time, so the pool is pinned to a
// single connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun records the start of a deployment.
func (s *Store) BeginRun(ctx context.Context, token, release, env string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (token, release, env, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`, token, release, env, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("journal begin run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a deployment. finalHash is recorded
// only for successful runs.
func (s *Store) FinishRun(ctx context.Context, token, outcome string, finalHash *state.Hash) error {
	var hex any
	if finalHash != nil {
		hex = finalHash.Hex()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, outcome = ?, final_hash = ?
		WHERE token = ?
	`, s.now().UnixNano(), outcome, hex, token)
	if err != nil {
		return fmt.Errorf("journal finish run: %w", err)
	}
	return nil
}

// RecordLeaf appends one executed leaf to a run.
func (s *Store) RecordLeaf(ctx context.Context, token string, seq int, description string, h state.Hash, elapsed time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leaves (run_token, seq, description, hash, elapsed_ns)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_token, seq) DO NOTHING
	`, token, seq, description, h.Hex(), elapsed.Nanoseconds())
	if err != nil {
		return fmt.Errorf("journal record leaf: %w", err)
	}
	return nil
}
