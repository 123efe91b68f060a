package cursor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tclabs/sheetsync/internal/feed"
)

// Pending records an append the engine is about to perform: the cursor
// window it covers, the batch length, and the ledger row count observed
// immediately before the append. A Pending row that outlives its run means
// the run stopped between append and cursor-advance; whether the append
// actually landed is decided by comparing LedgerRows+BatchLen against the
// ledger's current row count.
type Pending struct {
	SourceID   string
	Block      feed.BlockType
	FromRow    int64
	ToRow      int64
	BatchLen   int64
	LedgerRows int64
	CreatedAt  time.Time
}

// PreparePending durably records an append intent for the pair, replacing
// any stale record. Must be called before the ledger append it describes.
func (s *Store) PreparePending(ctx context.Context, p Pending) error {
	if p.BatchLen < 1 {
		return fmt.Errorf("prepare pending %s/%s: empty batch", p.SourceID, p.Block)
	}
	if p.ToRow < p.FromRow {
		return fmt.Errorf("prepare pending %s/%s: window %d..%d inverted", p.SourceID, p.Block, p.FromRow, p.ToRow)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_appends
		(source_id, block, from_row, to_row, batch_len, ledger_rows, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, block) DO UPDATE SET
			from_row    = excluded.from_row,
			to_row      = excluded.to_row,
			batch_len   = excluded.batch_len,
			ledger_rows = excluded.ledger_rows,
			created_at  = excluded.created_at
	`, p.SourceID, string(p.Block), p.FromRow, p.ToRow, p.BatchLen, p.LedgerRows, timestamp(time.Now()))
	if err != nil {
		return fmt.Errorf("prepare pending %s/%s: %w", p.SourceID, p.Block, err)
	}
	return nil
}

// CommitPending is the commit point for a pair's chunk: it advances the
// cursor from prev to next and deletes the pair's pending intent in one
// transaction. Either both happen or neither does.
//
// Returns swapped=false (and keeps the intent) when the cursor no longer
// holds prev - an overlapping writer moved it, and the intent must survive
// for the next run's reconciliation.
func (s *Store) CommitPending(ctx context.Context, sourceID string, block feed.BlockType, prev, next int64) (swapped bool, err error) {
	if next < 1 {
		return false, fmt.Errorf("commit pending %s/%s: next_row %d < 1", sourceID, block, next)
	}
	if prev > 0 && next < prev {
		return false, fmt.Errorf("commit pending %s/%s: would decrease %d -> %d", sourceID, block, prev, next)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("commit pending %s/%s: begin tx: %w", sourceID, block, err)
	}
	defer tx.Rollback() // No-op if committed

	now := timestamp(time.Now())
	var res sql.Result
	if prev == 0 {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO cursors (source_id, block, next_row, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(source_id, block) DO NOTHING
		`, sourceID, string(block), next, now)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE cursors SET next_row = ?, updated_at = ?
			WHERE source_id = ? AND block = ? AND next_row = ?
		`, next, now, sourceID, string(block), prev)
	}
	if err != nil {
		return false, fmt.Errorf("commit pending %s/%s: cursor: %w", sourceID, block, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("commit pending %s/%s: rows affected: %w", sourceID, block, err)
	}
	if n == 0 {
		// Lost the swap. Roll back so the intent stays for reconciliation.
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM pending_appends WHERE source_id = ? AND block = ?
	`, sourceID, string(block)); err != nil {
		return false, fmt.Errorf("commit pending %s/%s: delete intent: %w", sourceID, block, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit pending %s/%s: commit: %w", sourceID, block, err)
	}
	return true, nil
}

// ClearPending drops the pair's append intent without touching the cursor.
// Used when reconciliation determines the recorded append never landed.
func (s *Store) ClearPending(ctx context.Context, sourceID string, block feed.BlockType) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_appends WHERE source_id = ? AND block = ?
	`, sourceID, string(block))
	if err != nil {
		return fmt.Errorf("clear pending %s/%s: %w", sourceID, block, err)
	}
	return nil
}

// ListPending returns all unresolved append intents ordered by the ledger
// row count they observed, which is the order their appends would have
// landed in.
func (s *Store) ListPending(ctx context.Context) ([]Pending, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, block, from_row, to_row, batch_len, ledger_rows, created_at
		FROM pending_appends
		ORDER BY ledger_rows
	`)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []Pending
	for rows.Next() {
		var p Pending
		var block, created string
		if err := rows.Scan(&p.SourceID, &block, &p.FromRow, &p.ToRow, &p.BatchLen, &p.LedgerRows, &created); err != nil {
			return nil, fmt.Errorf("list pending: scan: %w", err)
		}
		bt, err := feed.ParseBlockType(block)
		if err != nil {
			return nil, fmt.Errorf("list pending: %w", err)
		}
		p.Block = bt
		if p.CreatedAt, err = parseTimestamp(created); err != nil {
			return nil, fmt.Errorf("list pending: created_at: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
