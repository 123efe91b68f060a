package engine

import (
	"errors"

	"github.com/tclabs/sheetsync/internal/feed"
	"github.com/tclabs/sheetsync/internal/registry"
)

// Sentinel errors surfaced in PairResult.Err. All of them leave the pair's
// cursor untouched; the next scheduled run retries from the same position.
var (
	// ErrCursorConflict means the pair's cursor no longer held the value
	// read at the start of processing - an overlapping run won the swap.
	ErrCursorConflict = errors.New("cursor advanced by another writer")

	// ErrLedgerMoved means the ledger's row count changed out-of-band
	// between batch assembly and append.
	ErrLedgerMoved = errors.New("ledger row count changed unexpectedly")

	// ErrLedgerUnknown means an earlier append failure left the ledger's
	// row count unverified; no further appends happen this run.
	ErrLedgerUnknown = errors.New("ledger state unknown after failed append")

	// ErrPendingUnresolved means a surviving append intent could not be
	// reconciled against the ledger at run start.
	ErrPendingUnresolved = errors.New("unresolved append intent")
)

// Pair is one unit of isolated work: a single source's single data block.
type Pair struct {
	Source registry.Source
	Block  feed.BlockType
}

func (p Pair) key() string {
	return p.Source.ID + "\x00" + string(p.Block)
}

func pairKey(sourceID string, block feed.BlockType) string {
	return sourceID + "\x00" + string(block)
}

// PairState tracks where a pair is in its per-run lifecycle.
type PairState string

const (
	StateIdle      PairState = "idle"
	StateFetching  PairState = "fetching"
	StateMapping   PairState = "mapping"
	StateAppending PairState = "appending"
	StateAdvancing PairState = "advancing"
	StateFailed    PairState = "failed"
)

// PairResult reports what one pair did during a run. State is StateIdle
// after a clean pass and StateFailed when Err is set.
type PairResult struct {
	Pair     Pair
	State    PairState
	Scanned  int
	Skipped  int
	Appended int
	Err      error
}

// Summary aggregates a full run.
type Summary struct {
	RunID       string
	Scanned     int64
	Skipped     int64
	Appended    int64
	FailedPairs int64
	Pairs       []PairResult
}
