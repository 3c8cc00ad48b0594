package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Run is one journal row for the history listing.
type Run struct {
	Token      string
	Release    string
	Env        string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Outcome    string    // empty while running
	FinalHash  string    // lowercase hex, empty unless successful
	Leaves     int
}

// Recent returns the newest runs, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.token, r.release, r.env, r.started_at, r.finished_at,
		       r.outcome, r.final_hash,
		       (SELECT COUNT(*) FROM leaves l WHERE l.run_token = r.token)
		FROM runs r
		ORDER BY r.started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal recent: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		var finished sql.NullInt64
		var outcome, finalHash sql.NullString
		if err := rows.Scan(&r.Token, &r.Release, &r.Env, &started, &finished, &outcome, &finalHash, &r.Leaves); err != nil {
			return nil, fmt.Errorf("journal recent: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		if finished.Valid {
			r.FinishedAt = time.Unix(0, finished.Int64)
		}
		r.Outcome = outcome.String
		r.FinalHash = finalHash.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Leaf is one executed leaf of a run.
type Leaf struct {
	Seq         int
	Description string
	Hash        string
	Elapsed     time.Duration
}

// Leaves returns a run's executed leaves in order.
func (s *Store) Leaves(ctx context.Context, token string) ([]Leaf, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, description, hash, elapsed_ns
		FROM leaves WHERE run_token = ? ORDER BY seq
	`, token)
	if err != nil {
		return nil, fmt.Errorf("journal leaves: %w", err)
	}
	defer rows.Close()

	var leaves []Leaf
	for rows.Next() {
		var l Leaf
		var ns int64
		if err := rows.Scan(&l.Seq, &l.Description, &l.Hash, &ns); err != nil {
			return nil, fmt.Errorf("journal leaves: %w", err)
		}
		l.Elapsed = time.Duration(ns)
		leaves = append(leaves, l)
	}
	return leaves, rows.Err()
}
