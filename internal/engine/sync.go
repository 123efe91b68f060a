package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tclabs/sheetsync/internal/feed"
	"github.com/tclabs/sheetsync/internal/tabular"
)

// syncPair runs one (source, block) pair through a single chunk:
// read cursor, fetch, validate and map, append, advance. Any error leaves
// the cursor where it was; the pair resumes from the same row next run.
func (o *Orchestrator) syncPair(ctx context.Context, log *slog.Logger, p Pair) (res PairResult) {
	res = PairResult{Pair: p, State: StateIdle}
	plog := log.With("source", p.Source.ID, "block", string(p.Block))
	start := time.Now()
	defer func() {
		pairDuration.WithLabelValues(string(p.Block)).Observe(time.Since(start).Seconds())
		if res.Err != nil {
			res.State = StateFailed
			pairFailures.WithLabelValues(string(p.Block)).Inc()
			plog.Error("pair failed", "error", res.Err)
		}
	}()

	spec, err := feed.SpecFor(p.Block)
	if err != nil {
		res.Err = err
		return res
	}

	next, ok, err := o.cursors.Get(ctx, p.Source.ID, p.Block)
	if err != nil {
		res.Err = fmt.Errorf("read cursor: %w", err)
		return res
	}
	if !ok {
		next, err = o.initCursor(ctx, p, spec)
		if errors.Is(err, tabular.ErrTabNotFound) {
			// Not every source carries every block.
			plog.Debug("block tab absent, skipping")
			return res
		}
		if err != nil {
			res.Err = fmt.Errorf("init cursor: %w", err)
			return res
		}
		plog.Info("cursor initialized", "next_row", next)
	}

	res.State = StateFetching
	rows, err := o.fetchers[p.Block].Fetch(ctx, p.Source.ID, spec.Tab, next, o.cfg.ChunkRows)
	if errors.Is(err, tabular.ErrTabNotFound) {
		plog.Debug("block tab absent, skipping")
		res.State = StateIdle
		return res
	}
	if err != nil {
		res.Err = fmt.Errorf("fetch: %w", err)
		return res
	}
	o.pause(ctx, o.cfg.Throttle)
	if len(rows) == 0 {
		plog.Debug("pair up to date", "next_row", next)
		return res
	}

	res.State = StateMapping
	width := o.ledger.Width()
	batch := make([][]string, 0, len(rows))
	for _, row := range rows {
		res.Scanned++
		if !spec.Valid(row) {
			res.Skipped++
			continue
		}
		batch = append(batch, spec.Map(row, width))
	}
	advanceTo := next + int64(len(rows))

	res.State = StateAppending
	if len(batch) > 0 {
		if err := o.ledger.append(ctx, o.cursors, p, next, advanceTo, batch); err != nil {
			res.Err = fmt.Errorf("append: %w", err)
			return res
		}
		res.Appended = len(batch)

		res.State = StateAdvancing
		swapped, err := o.cursors.CommitPending(ctx, p.Source.ID, p.Block, next, advanceTo)
		if err != nil {
			res.Err = fmt.Errorf("advance cursor: %w", err)
			return res
		}
		if !swapped {
			// Rows are appended and the intent retained; next run's
			// reconciliation completes the advance instead of redoing it.
			res.Err = ErrCursorConflict
			return res
		}
	} else {
		// Nothing to write, but the examined window is consumed: the
		// cursor still moves past invalid and blank rows.
		res.State = StateAdvancing
		swapped, err := o.cursors.CompareAndSet(ctx, p.Source.ID, p.Block, next, advanceTo)
		if err != nil {
			res.Err = fmt.Errorf("advance cursor: %w", err)
			return res
		}
		if !swapped {
			res.Err = ErrCursorConflict
			return res
		}
	}

	rowsScanned.WithLabelValues(string(p.Block)).Add(float64(res.Scanned))
	rowsSkipped.WithLabelValues(string(p.Block)).Add(float64(res.Skipped))
	rowsAppended.WithLabelValues(string(p.Block)).Add(float64(res.Appended))

	res.State = StateIdle
	plog.Info("pair synced",
		"scanned", res.Scanned,
		"appended", res.Appended,
		"skipped", res.Skipped,
		"next_row", advanceTo,
	)
	return res
}

// initCursor claims a first-sight cursor for the pair: the block's first
// data row, or one past the block's current end when backfill is off.
// Losing the claim race to a concurrent run is fine; the winner's value is
// used.
func (o *Orchestrator) initCursor(ctx context.Context, p Pair, spec feed.Spec) (int64, error) {
	next := spec.FirstDataRow
	if o.cfg.InitFromNow {
		last, err := o.reader.RowCount(ctx, p.Source.ID, spec.Tab)
		if err != nil {
			return 0, fmt.Errorf("row count: %w", err)
		}
		if last+1 > next {
			next = last + 1
		}
	}

	swapped, err := o.cursors.CompareAndSet(ctx, p.Source.ID, p.Block, 0, next)
	if err != nil {
		return 0, err
	}
	if swapped {
		return next, nil
	}
	cur, ok, err := o.cursors.Get(ctx, p.Source.ID, p.Block)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrCursorConflict
	}
	return cur, nil
}
