package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tclabs/sheetsync/internal/cursor"
	"github.com/tclabs/sheetsync/internal/feed"
	"github.com/tclabs/sheetsync/internal/tabular"
)

// ledgerWriter serializes all appends to the master ledger within a run
// and tracks the row count they should produce. Pairs run in parallel but
// their appends do not: each append re-reads the ledger's row count under
// the lock and refuses to write if it differs from the tracked value,
// which catches out-of-band edits between chunks.
type ledgerWriter struct {
	appender tabular.Appender
	sheetID  string
	tab      string

	mu    sync.Mutex
	rows  int64
	width int
	known bool // false until init, or after an unresolvable append failure
}

func newLedgerWriter(a tabular.Appender, sheetID, tab string) *ledgerWriter {
	return &ledgerWriter{appender: a, sheetID: sheetID, tab: tab}
}

// init reads the ledger's current row count and width. Must succeed before
// any pair runs; a ledger that cannot be read makes the whole run fatal.
func (w *ledgerWriter) init(ctx context.Context) error {
	rows, err := w.appender.RowCount(ctx, w.sheetID, w.tab)
	if err != nil {
		return fmt.Errorf("ledger %s/%s: row count: %w", w.sheetID, w.tab, err)
	}
	width, err := w.appender.Width(ctx, w.sheetID, w.tab)
	if err != nil {
		return fmt.Errorf("ledger %s/%s: width: %w", w.sheetID, w.tab, err)
	}
	if width < feed.MasterWidth() {
		width = feed.MasterWidth()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = rows
	w.width = width
	w.known = true
	return nil
}

// Width returns the column width appended rows are padded to.
func (w *ledgerWriter) Width() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width
}

// count returns the row count observed at init, before any appends.
func (w *ledgerWriter) count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// append writes one pair's batch to the ledger. Under the lock it verifies
// the ledger still has the expected row count, durably records the append
// intent, and performs the append. The caller must follow a nil return
// with CommitPending; the intent row is what makes a crash between the two
// recoverable.
func (w *ledgerWriter) append(ctx context.Context, cursors CursorStore, p Pair, fromRow, toRow int64, batch [][]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.known {
		return ErrLedgerUnknown
	}

	actual, err := w.appender.RowCount(ctx, w.sheetID, w.tab)
	if err != nil {
		return fmt.Errorf("ledger row count: %w", err)
	}
	if actual != w.rows {
		expected := w.rows
		w.rows = actual
		return fmt.Errorf("%w: expected %d rows, found %d", ErrLedgerMoved, expected, actual)
	}

	err = cursors.PreparePending(ctx, cursor.Pending{
		SourceID:   p.Source.ID,
		Block:      p.Block,
		FromRow:    fromRow,
		ToRow:      toRow,
		BatchLen:   int64(len(batch)),
		LedgerRows: actual,
	})
	if err != nil {
		return fmt.Errorf("record append intent: %w", err)
	}

	if err := w.appender.Append(ctx, w.sheetID, w.tab, batch); err != nil {
		return w.resolveFailedAppend(ctx, cursors, p, actual, int64(len(batch)), err)
	}

	w.rows += int64(len(batch))
	return nil
}

// resolveFailedAppend decides what a failed append actually did. An error
// from the remote does not mean the rows were not written (a timeout can
// outlive a successful write), so the row count is re-read:
//
//   - unchanged: the batch never landed; the intent is cleared and the
//     original error returned, leaving the pair to retry next run.
//   - grown by exactly the batch: the append landed despite the error;
//     treated as success.
//   - anything else, or the count unreadable: the ledger's state is
//     unknown. The intent is kept for next-run reconciliation and the
//     writer is poisoned so no further append can compound the damage.
func (w *ledgerWriter) resolveFailedAppend(ctx context.Context, cursors CursorStore, p Pair, before, batchLen int64, appendErr error) error {
	actual, err := w.appender.RowCount(ctx, w.sheetID, w.tab)
	switch {
	case err != nil:
		w.known = false
		return fmt.Errorf("%w: append failed (%v) and row count unreadable: %v", ErrLedgerUnknown, appendErr, err)

	case actual == before:
		if cerr := cursors.ClearPending(ctx, p.Source.ID, p.Block); cerr != nil {
			// Intent survives; next run's reconciliation will clear it.
			return errors.Join(appendErr, cerr)
		}
		return appendErr

	case actual == before+batchLen:
		w.rows = actual
		return nil

	default:
		w.known = false
		return fmt.Errorf("%w: append failed (%v), row count moved %d -> %d", ErrLedgerUnknown, appendErr, before, actual)
	}
}
