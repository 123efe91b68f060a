package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tclabs/sheetsync/internal/cursor"
	"github.com/tclabs/sheetsync/internal/feed"
	"github.com/tclabs/sheetsync/internal/registry"
	"github.com/tclabs/sheetsync/internal/tabular"
)

// CursorStore is the durable state the engine needs between runs: one
// monotonic cursor per (source, block) pair plus the append intent log.
// *cursor.Store satisfies it.
type CursorStore interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, sourceID string, block feed.BlockType) (next int64, ok bool, err error)
	CompareAndSet(ctx context.Context, sourceID string, block feed.BlockType, prev, next int64) (swapped bool, err error)
	PreparePending(ctx context.Context, p cursor.Pending) error
	CommitPending(ctx context.Context, sourceID string, block feed.BlockType, prev, next int64) (swapped bool, err error)
	ClearPending(ctx context.Context, sourceID string, block feed.BlockType) error
	ListPending(ctx context.Context) ([]cursor.Pending, error)
}

// RunJournal records run history. Optional: the engine uses it when the
// cursor store implements it.
type RunJournal interface {
	BeginRun(ctx context.Context, id string, startedAt time.Time) error
	FinishRun(ctx context.Context, id string, finishedAt time.Time, scanned, appended, skipped, failedPairs int64) error
}

// Config tunes a run. Zero values are rejected by New; callers normally
// build this from the config package, which applies operational defaults.
type Config struct {
	LedgerSheetID string
	LedgerTab     string
	ChunkRows     int
	InitFromNow   bool
	Workers       int
	Throttle      time.Duration
	SourcePause   time.Duration
	ShardTotal    int
	ShardIndex    int
}

func (c Config) validate() error {
	if c.LedgerSheetID == "" || c.LedgerTab == "" {
		return fmt.Errorf("ledger sheet and tab are required")
	}
	if c.ChunkRows < 1 {
		return fmt.Errorf("chunk rows %d < 1", c.ChunkRows)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers %d < 1", c.Workers)
	}
	if c.ShardTotal < 1 {
		return fmt.Errorf("shard total %d < 1", c.ShardTotal)
	}
	if c.ShardIndex < 0 || c.ShardIndex >= c.ShardTotal {
		return fmt.Errorf("shard index %d outside [0, %d)", c.ShardIndex, c.ShardTotal)
	}
	return nil
}

// Orchestrator executes sync runs. Safe for sequential reuse; a single
// Orchestrator must not execute two Runs concurrently (overlapping
// processes are handled by the cursor swap, not by in-process locking).
type Orchestrator struct {
	cursors  CursorStore
	reader   tabular.Reader
	registry registry.Registry
	ledger   *ledgerWriter
	fetchers map[feed.BlockType]*tabular.Fetcher
	cfg      Config

	log      *slog.Logger
	newRunID func() string
	now      func() time.Time
}

// Option adjusts an Orchestrator.
type Option func(*Orchestrator)

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithRunID pins run ID generation, for deterministic tests.
func WithRunID(fn func() string) Option {
	return func(o *Orchestrator) { o.newRunID = fn }
}

// WithClock pins the wall clock, for deterministic tests.
func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) { o.now = fn }
}

// New builds an Orchestrator from its dependencies. reader serves the
// source blocks, appender the master ledger; both may be the same client.
func New(cursors CursorStore, reader tabular.Reader, appender tabular.Appender, reg registry.Registry, cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	fetchers := make(map[feed.BlockType]*tabular.Fetcher, len(feed.Blocks()))
	for _, bt := range feed.Blocks() {
		spec, err := feed.SpecFor(bt)
		if err != nil {
			return nil, err
		}
		fetchers[bt] = tabular.NewFetcher(reader, spec.MaxSourceColumn())
	}

	o := &Orchestrator{
		cursors:  cursors,
		reader:   reader,
		registry: reg,
		ledger:   newLedgerWriter(appender, cfg.LedgerSheetID, cfg.LedgerTab),
		fetchers: fetchers,
		cfg:      cfg,
		log:      slog.Default(),
		newRunID: func() string { return uuid.Must(uuid.NewV7()).String() },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// pause sleeps for d unless the context ends first. Used for the
// per-chunk throttle and the between-pair pause.
func (o *Orchestrator) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
