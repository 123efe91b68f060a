package cursor

import (
	"context"
	"fmt"
	"time"
)

// Run is one journal entry: a single engine invocation and its totals.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  time.Time // zero when the run never finished
	Scanned     int64
	Appended    int64
	Skipped     int64
	FailedPairs int64
}

// BeginRun journals the start of an engine run.
func (s *Store) BeginRun(ctx context.Context, id string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at) VALUES (?, ?)
	`, id, timestamp(startedAt))
	if err != nil {
		return fmt.Errorf("begin run %s: %w", id, err)
	}
	return nil
}

// FinishRun records a run's totals. A run missing from the journal is an
// error: FinishRun without BeginRun indicates a bug in the engine.
func (s *Store) FinishRun(ctx context.Context, id string, finishedAt time.Time, scanned, appended, skipped, failedPairs int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, scanned = ?, appended = ?, skipped = ?, failed_pairs = ?
		WHERE id = ?
	`, timestamp(finishedAt), scanned, appended, skipped, failedPairs, id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %s: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: run not journaled", id)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, scanned, appended, skipped, failed_pairs
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started string
		var finished *string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Scanned, &r.Appended, &r.Skipped, &r.FailedPairs); err != nil {
			return nil, fmt.Errorf("recent runs: scan: %w", err)
		}
		if r.StartedAt, err = parseTimestamp(started); err != nil {
			return nil, fmt.Errorf("recent runs: started_at: %w", err)
		}
		if finished != nil {
			if r.FinishedAt, err = parseTimestamp(*finished); err != nil {
				return nil, fmt.Errorf("recent runs: finished_at: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
