package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tclabs/sheetsync/internal/config"
	"github.com/tclabs/sheetsync/internal/cursor"
	"github.com/tclabs/sheetsync/internal/engine"
	"github.com/tclabs/sheetsync/internal/registry"
	"github.com/tclabs/sheetsync/internal/tabular/rest"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	ConfigPath  string
	Database    string // overrides cursor_db from the config file
	InitFromNow bool   // overrides sync.init_from_now
	MetricsAddr string // serve /metrics while the run is active; empty disables
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization pass",
		Long: `Run one synchronization pass over every registered source.

Each (source, block) pair fetches a bounded chunk of rows it has not seen,
appends the valid ones to the master ledger, and advances its cursor. The
command is designed for a scheduler: each invocation is one incremental,
idempotent pass.

Example:
  sheetsync sync --config sync.yaml
  sheetsync sync --config sync.yaml --db /var/lib/sheetsync/cursors.db --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML configuration (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to cursor database (overrides config)")
	cmd.Flags().BoolVar(&opts.InitFromNow, "init-from-now", false, "start unseen pairs at the current end of their block")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on during the run")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.CursorDB = opts.Database
	}
	if opts.InitFromNow {
		cfg.Sync.InitFromNow = true
	}

	store, err := cursor.Open(cfg.CursorDB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open cursor database", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("error closing cursor database", "error", closeErr)
		}
	}()

	if opts.MetricsAddr != "" {
		srv := serveMetrics(opts.MetricsAddr)
		defer srv.Close()
	}

	client := rest.New(cfg.API.BaseURL, cfg.Token(), cfg.RetryPolicy())
	reg := registry.NewSheet(client, cfg.Master.SpreadsheetID, cfg.Master.SourceTab)

	orch, err := engine.New(store, client, client, reg, engine.Config{
		LedgerSheetID: cfg.Master.SpreadsheetID,
		LedgerTab:     cfg.Master.TicketsTab,
		ChunkRows:     cfg.Sync.ChunkRows,
		InitFromNow:   cfg.Sync.InitFromNow,
		Workers:       cfg.Sync.Workers,
		Throttle:      cfg.Sync.Throttle.Std(),
		SourcePause:   cfg.Sync.SourcePause.Std(),
		ShardTotal:    cfg.Shard.Total,
		ShardIndex:    cfg.Shard.Index,
	}, engine.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build engine", err)
	}

	// Graceful shutdown: an in-flight pair finishes or fails cleanly, the
	// rest are skipped. Cursors make the next run pick up the remainder.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := orch.Run(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "sync run failed", err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if err := writeSummary(formatter, summary); err != nil {
		return err
	}

	if summary.FailedPairs > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d pair(s) failed", summary.FailedPairs))
	}
	return nil
}

// summaryReport is the json payload for a finished run.
type summaryReport struct {
	RunID       string       `json:"run_id"`
	Scanned     int64        `json:"scanned"`
	Appended    int64        `json:"appended"`
	Skipped     int64        `json:"skipped"`
	FailedPairs int64        `json:"failed_pairs"`
	Failures    []pairReport `json:"failures,omitempty"`
}

type pairReport struct {
	Source string `json:"source"`
	Block  string `json:"block"`
	Error  string `json:"error"`
}

func writeSummary(f *OutputFormatter, s engine.Summary) error {
	report := summaryReport{
		RunID:       s.RunID,
		Scanned:     s.Scanned,
		Appended:    s.Appended,
		Skipped:     s.Skipped,
		FailedPairs: s.FailedPairs,
	}
	for _, r := range s.Pairs {
		if r.Err != nil {
			report.Failures = append(report.Failures, pairReport{
				Source: r.Pair.Source.ID,
				Block:  string(r.Pair.Block),
				Error:  r.Err.Error(),
			})
		}
	}

	return f.Success(report, func(w io.Writer) {
		fmt.Fprintf(w, "Run %s\n", report.RunID)
		fmt.Fprintf(w, "  scanned:  %d\n", report.Scanned)
		fmt.Fprintf(w, "  appended: %d\n", report.Appended)
		fmt.Fprintf(w, "  skipped:  %d\n", report.Skipped)
		fmt.Fprintf(w, "  failed:   %d\n", report.FailedPairs)
		for _, p := range report.Failures {
			fmt.Fprintf(w, "  FAIL %s/%s: %s\n", p.Source, p.Block, p.Error)
		}
	})
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
