package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tclabs/sheetsync/internal/config"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file without syncing",
		Long: `Parse and validate a YAML configuration file.

Catches unknown keys, malformed durations, and out-of-range values before
the file reaches a scheduled run. No spreadsheet or database access.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

type validateReport struct {
	Valid   bool   `json:"valid"`
	Sources string `json:"registry,omitempty"`
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(path)
	if err != nil {
		_ = formatter.Error(err.Error())
		return NewExitError(ExitFailure, "configuration invalid")
	}

	formatter.VerboseLog("master ledger: %s tab %q", cfg.Master.SpreadsheetID, cfg.Master.TicketsTab)
	formatter.VerboseLog("shard %d of %d, %d workers, chunk %d rows",
		cfg.Shard.Index, cfg.Shard.Total, cfg.Sync.Workers, cfg.Sync.ChunkRows)

	report := validateReport{
		Valid:   true,
		Sources: fmt.Sprintf("%s!%s", cfg.Master.SpreadsheetID, cfg.Master.SourceTab),
	}
	return formatter.Success(report, func(w io.Writer) {
		fmt.Fprintf(w, "%s: valid\n", path)
	})
}
