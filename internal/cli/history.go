package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/provgraph/internal/ir"
	"github.com/roach88/provgraph/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Subject  string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded load attempts",
		Long: `List the load attempts recorded in a snapshot database, in sequence
order. Each record shows how the load settled: ready, empty, failed
or stale.`,
		Example: `  provgraph history --db ./snap.db
  provgraph history --db ./snap.db --subject run-1 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "snapshot database path (default from config)")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "only show loads of this subject")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = opts.config().Database
	}
	if dbPath == "" {
		return NewExitError(ExitCommandError, "no database: pass --db or set database in the config")
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	records, err := st.ReadLoadLog(cmd.Context(), opts.Subject)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read load log", err)
	}

	return out.Success(records, func(w io.Writer) { writeHistory(w, records) })
}

func writeHistory(w io.Writer, records []ir.LoadRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No loads recorded")
		return
	}
	for _, r := range records {
		granularity := "expanded"
		if r.Collapsed {
			granularity = "collapsed"
		}
		fmt.Fprintf(w, "%6d  %-8s %-20s %-9s", r.Seq, r.Outcome, r.SubjectID, granularity)
		switch r.Outcome {
		case ir.OutcomeFailed:
			fmt.Fprintf(w, "  %s", r.Message)
		case ir.OutcomeReady:
			fmt.Fprintf(w, "  %d nodes, %d edges", r.NodeCount, r.EdgeCount)
		}
		fmt.Fprintf(w, "  (%s)\n", r.RequestToken)
	}
}
