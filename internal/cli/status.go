package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tclabs/sheetsync/internal/cursor"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database string
	Runs     int
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cursors, pending appends, and recent runs",
		Long: `Show the sync's durable state: every pair's cursor position, any append
intents awaiting reconciliation, and the most recent run totals.

Reads the cursor database only; no spreadsheet API calls are made.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to cursor database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.Runs, "runs", 10, "how many recent runs to show")

	return cmd
}

// statusReport is the json payload for status.
type statusReport struct {
	Cursors []cursorReport  `json:"cursors"`
	Pending []pendingReport `json:"pending,omitempty"`
	Runs    []runReport     `json:"runs"`
}

type cursorReport struct {
	Source    string    `json:"source"`
	Block     string    `json:"block"`
	NextRow   int64     `json:"next_row"`
	UpdatedAt time.Time `json:"updated_at"`
}

type pendingReport struct {
	Source    string    `json:"source"`
	Block     string    `json:"block"`
	FromRow   int64     `json:"from_row"`
	ToRow     int64     `json:"to_row"`
	BatchLen  int64     `json:"batch_len"`
	CreatedAt time.Time `json:"created_at"`
}

type runReport struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
	Scanned     int64     `json:"scanned"`
	Appended    int64     `json:"appended"`
	Skipped     int64     `json:"skipped"`
	FailedPairs int64     `json:"failed_pairs"`
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	store, err := cursor.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open cursor database", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := buildStatus(ctx, store, opts.Runs)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read status", err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	return formatter.Success(report, func(w io.Writer) { renderStatus(w, report) })
}

func buildStatus(ctx context.Context, store *cursor.Store, runLimit int) (statusReport, error) {
	var report statusReport

	cursors, err := store.List(ctx)
	if err != nil {
		return report, err
	}
	for _, c := range cursors {
		report.Cursors = append(report.Cursors, cursorReport{
			Source:    c.SourceID,
			Block:     string(c.Block),
			NextRow:   c.NextRow,
			UpdatedAt: c.UpdatedAt,
		})
	}

	pending, err := store.ListPending(ctx)
	if err != nil {
		return report, err
	}
	for _, p := range pending {
		report.Pending = append(report.Pending, pendingReport{
			Source:    p.SourceID,
			Block:     string(p.Block),
			FromRow:   p.FromRow,
			ToRow:     p.ToRow,
			BatchLen:  p.BatchLen,
			CreatedAt: p.CreatedAt,
		})
	}

	runs, err := store.RecentRuns(ctx, runLimit)
	if err != nil {
		return report, err
	}
	for _, r := range runs {
		report.Runs = append(report.Runs, runReport{
			ID:          r.ID,
			StartedAt:   r.StartedAt,
			FinishedAt:  r.FinishedAt,
			Scanned:     r.Scanned,
			Appended:    r.Appended,
			Skipped:     r.Skipped,
			FailedPairs: r.FailedPairs,
		})
	}
	return report, nil
}

func renderStatus(w io.Writer, report statusReport) {
	fmt.Fprintf(w, "Cursors (%d)\n", len(report.Cursors))
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  SOURCE\tBLOCK\tNEXT ROW\tUPDATED")
	for _, c := range report.Cursors {
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%s\n", c.Source, c.Block, c.NextRow, c.UpdatedAt.Format(time.RFC3339))
	}
	tw.Flush()

	if len(report.Pending) > 0 {
		fmt.Fprintf(w, "\nPending appends (%d) - will be reconciled at next run\n", len(report.Pending))
		tw = tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  SOURCE\tBLOCK\tWINDOW\tROWS")
		for _, p := range report.Pending {
			fmt.Fprintf(tw, "  %s\t%s\t%d..%d\t%d\n", p.Source, p.Block, p.FromRow, p.ToRow, p.BatchLen)
		}
		tw.Flush()
	}

	fmt.Fprintf(w, "\nRecent runs (%d)\n", len(report.Runs))
	tw = tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  STARTED\tSCANNED\tAPPENDED\tSKIPPED\tFAILED\tSTATUS")
	for _, r := range report.Runs {
		status := "finished"
		if r.FinishedAt.IsZero() {
			status = "interrupted"
		}
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%d\t%s\n",
			r.StartedAt.Format(time.RFC3339), r.Scanned, r.Appended, r.Skipped, r.FailedPairs, status)
	}
	tw.Flush()
}
