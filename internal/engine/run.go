package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tclabs/sheetsync/internal/feed"
	"github.com/tclabs/sheetsync/internal/parallel"
	"github.com/tclabs/sheetsync/internal/registry"
)

// Run executes one full synchronization pass and returns its summary.
// The returned error covers run-level failures only (unreachable cursor
// store, unreadable ledger, unreadable registry); individual pair failures
// are reported in the summary and leave the other pairs untouched.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	runID := o.newRunID()
	log := o.log.With("run_id", runID)
	started := o.now()

	if err := o.cursors.Ping(ctx); err != nil {
		return Summary{}, fmt.Errorf("cursor store: %w", err)
	}
	if err := o.ledger.init(ctx); err != nil {
		return Summary{}, err
	}

	blocked, err := o.recoverPending(ctx, log)
	if err != nil {
		return Summary{}, err
	}

	sources, err := o.registry.Sources(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("source registry: %w", err)
	}
	total := len(sources)
	sources = shardFilter(sources, o.cfg.ShardTotal, o.cfg.ShardIndex)
	log.Info("run started",
		"sources", len(sources),
		"registered", total,
		"shard", fmt.Sprintf("%d/%d", o.cfg.ShardIndex, o.cfg.ShardTotal),
		"workers", o.cfg.Workers,
	)

	if j, ok := o.cursors.(RunJournal); ok {
		if err := j.BeginRun(ctx, runID, started); err != nil {
			return Summary{}, fmt.Errorf("journal run: %w", err)
		}
	}

	var pairs []Pair
	for _, block := range feed.Blocks() {
		for _, src := range sources {
			pairs = append(pairs, Pair{Source: src, Block: block})
		}
	}

	results := make([]PairResult, len(pairs))
	errs := parallel.ForEach(ctx, pairs, o.cfg.Workers, func(ctx context.Context, i int, p Pair) error {
		if reason, ok := blocked[p.key()]; ok {
			results[i] = PairResult{Pair: p, State: StateFailed, Err: reason}
			pairFailures.WithLabelValues(string(p.Block)).Inc()
		} else {
			results[i] = o.syncPair(ctx, log, p)
		}
		o.pause(ctx, o.cfg.SourcePause)
		return results[i].Err
	})
	// Pairs skipped by cancellation never ran; record why.
	for i, err := range errs {
		if err != nil && results[i].State == "" {
			results[i] = PairResult{Pair: pairs[i], State: StateFailed, Err: err}
		}
	}

	summary := Summary{RunID: runID, Pairs: results}
	for _, r := range results {
		summary.Scanned += int64(r.Scanned)
		summary.Skipped += int64(r.Skipped)
		summary.Appended += int64(r.Appended)
		if r.Err != nil {
			summary.FailedPairs++
		}
	}

	if j, ok := o.cursors.(RunJournal); ok {
		if err := j.FinishRun(ctx, runID, o.now(), summary.Scanned, summary.Appended, summary.Skipped, summary.FailedPairs); err != nil {
			log.Error("journal finish failed", "error", err)
		}
	}

	log.Info("run finished",
		"scanned", summary.Scanned,
		"appended", summary.Appended,
		"skipped", summary.Skipped,
		"failed_pairs", summary.FailedPairs,
		"duration", o.now().Sub(started).String(),
	)
	return summary, nil
}

// recoverPending reconciles append intents left over from interrupted
// runs against the ledger's current row count, observed before any of
// this run's appends. For each intent:
//
//   - the ledger grew by at least the batch: the interrupted append
//     landed, so the cursor advance it never reached is committed now.
//   - the ledger count matches what the intent observed: the append never
//     landed; the intent is dropped and the pair reprocesses the window.
//   - anything else: the ledger was edited out of band and row identity
//     cannot be established. The pair is blocked for this run and the
//     intent kept, pending operator inspection.
func (o *Orchestrator) recoverPending(ctx context.Context, log *slog.Logger) (map[string]error, error) {
	pending, err := o.cursors.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list append intents: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	count := o.ledger.count()
	blocked := make(map[string]error)
	for _, p := range pending {
		plog := log.With("source", p.SourceID, "block", string(p.Block))
		switch {
		case count >= p.LedgerRows+p.BatchLen:
			swapped, err := o.cursors.CommitPending(ctx, p.SourceID, p.Block, p.FromRow, p.ToRow)
			if err != nil {
				return nil, fmt.Errorf("recover %s/%s: %w", p.SourceID, p.Block, err)
			}
			if swapped {
				plog.Info("recovered interrupted append", "rows", p.BatchLen, "next_row", p.ToRow)
				break
			}
			// Cursor moved past the intent through some other path; the
			// intent is stale and only needs discarding.
			if err := o.cursors.ClearPending(ctx, p.SourceID, p.Block); err != nil {
				return nil, fmt.Errorf("recover %s/%s: %w", p.SourceID, p.Block, err)
			}
			plog.Warn("dropped stale append intent")

		case count == p.LedgerRows:
			if err := o.cursors.ClearPending(ctx, p.SourceID, p.Block); err != nil {
				return nil, fmt.Errorf("recover %s/%s: %w", p.SourceID, p.Block, err)
			}
			plog.Info("discarded unapplied append intent", "rows", p.BatchLen)

		default:
			plog.Error("append intent cannot be reconciled",
				"ledger_rows", count,
				"observed_rows", p.LedgerRows,
				"batch_len", p.BatchLen,
			)
			blocked[pairKey(p.SourceID, p.Block)] = fmt.Errorf(
				"%w: ledger has %d rows, intent observed %d before appending %d",
				ErrPendingUnresolved, count, p.LedgerRows, p.BatchLen)
		}
	}
	return blocked, nil
}

// shardFilter keeps the sources this shard owns: list position i such
// that i % total == index. Position, not ID, so the partition stays
// aligned with the registry tab's ordering.
func shardFilter(sources []registry.Source, total, index int) []registry.Source {
	if total <= 1 {
		return sources
	}
	var out []registry.Source
	for i, s := range sources {
		if i%total == index {
			out = append(out, s)
		}
	}
	return out
}
