package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tclabs/sheetsync/internal/feed"
)

// Cursor is the durable pointer for one (source, block) pair: the next row
// index that has not yet been evaluated.
type Cursor struct {
	SourceID  string
	Block     feed.BlockType
	NextRow   int64
	UpdatedAt time.Time
}

// Get returns the cursor for a pair, or ok=false when the pair has never
// been synchronized.
func (s *Store) Get(ctx context.Context, sourceID string, block feed.BlockType) (next int64, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT next_row FROM cursors
		WHERE source_id = ? AND block = ?
	`, sourceID, string(block)).Scan(&next)
	if err == nil {
		return next, true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	return 0, false, fmt.Errorf("get cursor %s/%s: %w", sourceID, block, err)
}

// CompareAndSet advances the cursor from prev to next in a single durable
// write. prev = 0 claims a cursor that does not exist yet (first sight of
// the pair). Returns swapped=false when another writer got there first; the
// caller must discard its work for the pair in that case.
//
// The monotonic invariant is enforced here as well: next may never be lower
// than prev, and the conditional UPDATE can only move the stored value
// forward because it requires the stored value to still equal prev.
func (s *Store) CompareAndSet(ctx context.Context, sourceID string, block feed.BlockType, prev, next int64) (swapped bool, err error) {
	if next < 1 {
		return false, fmt.Errorf("set cursor %s/%s: next_row %d < 1", sourceID, block, next)
	}
	if prev < 0 {
		return false, fmt.Errorf("set cursor %s/%s: negative prev %d", sourceID, block, prev)
	}
	if prev > 0 && next < prev {
		return false, fmt.Errorf("set cursor %s/%s: would decrease %d -> %d", sourceID, block, prev, next)
	}

	now := timestamp(time.Now())
	var res sql.Result
	if prev == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO cursors (source_id, block, next_row, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(source_id, block) DO NOTHING
		`, sourceID, string(block), next, now)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE cursors SET next_row = ?, updated_at = ?
			WHERE source_id = ? AND block = ? AND next_row = ?
		`, next, now, sourceID, string(block), prev)
	}
	if err != nil {
		return false, fmt.Errorf("set cursor %s/%s: %w", sourceID, block, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set cursor %s/%s: rows affected: %w", sourceID, block, err)
	}
	return n > 0, nil
}

// List returns every cursor, ordered by source then block. Cursors for
// sources no longer registered are retained and show up here; pruning is a
// manual operation.
func (s *Store) List(ctx context.Context) ([]Cursor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, block, next_row, updated_at
		FROM cursors
		ORDER BY source_id, block
	`)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()

	var out []Cursor
	for rows.Next() {
		var c Cursor
		var block, updated string
		if err := rows.Scan(&c.SourceID, &block, &c.NextRow, &updated); err != nil {
			return nil, fmt.Errorf("list cursors: scan: %w", err)
		}
		bt, err := feed.ParseBlockType(block)
		if err != nil {
			return nil, fmt.Errorf("list cursors: %w", err)
		}
		c.Block = bt
		if c.UpdatedAt, err = parseTimestamp(updated); err != nil {
			return nil, fmt.Errorf("list cursors: updated_at: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
