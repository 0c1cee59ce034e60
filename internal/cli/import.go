package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/provgraph/internal/ingest"
	"github.com/roach88/provgraph/internal/ir"
	"github.com/roach88/provgraph/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database   string
	Subject    string
	Collapsed  bool
	AuxInputs  string
	AuxOutputs string
}

// ImportResult is the output of a successful import.
type ImportResult struct {
	Subject     string `json:"subject"`
	Collapsed   bool   `json:"collapsed"`
	StepCount   int    `json:"step_count"`
	AuxInputs   int    `json:"aux_inputs"`
	AuxOutputs  int    `json:"aux_outputs"`
	PayloadHash string `json:"payload_hash"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <steps.json>",
		Short: "Store a step-retrieval payload in a snapshot database",
		Long: `Validate a step-retrieval payload and store it for a subject.

The payload replaces any stored payload for the same subject and
granularity. Auxiliary run collections replace the stored ones when
given.`,
		Example: `  provgraph import --db ./snap.db --subject run-1 steps.json
  provgraph import --db ./snap.db --subject run-1 --collapsed steps_collapsed.json
  provgraph import --db ./snap.db --subject run-1 --aux-inputs inputs.json steps.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "snapshot database path (default from config)")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "subject identifier (required)")
	cmd.Flags().BoolVar(&opts.Collapsed, "collapsed", false, "store as the collapsed-granularity payload")
	cmd.Flags().StringVar(&opts.AuxInputs, "aux-inputs", "", "auxiliary run-input collection (JSON list)")
	cmd.Flags().StringVar(&opts.AuxOutputs, "aux-outputs", "", "auxiliary run-output collection (JSON list)")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func runImport(cmd *cobra.Command, opts *ImportOptions, path string) error {
	ctx := cmd.Context()
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = opts.config().Database
	}
	if dbPath == "" {
		return NewExitError(ExitCommandError, "no database: pass --db or set database in the config")
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read payload", err)
	}
	auxIn, err := readAux(opts.AuxInputs)
	if err != nil {
		return err
	}
	auxOut, err := readAux(opts.AuxOutputs)
	if err != nil {
		return err
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	seq, err := st.LastSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read sequence", err)
	}

	count, err := st.PutSteps(ctx, opts.Subject, opts.Collapsed, payload, seq+1)
	if err != nil {
		if details := problemDetails(err); details != nil {
			if outErr := out.Error(CodeInvalidPayload, "payload rejected", details); outErr != nil {
				return outErr
			}
			return NewExitError(ExitFailure, "payload rejected")
		}
		return WrapExitError(ExitCommandError, "failed to store payload", err)
	}

	if auxIn != nil {
		if err := st.PutAux(ctx, opts.Subject, ir.DirectionInput, auxIn); err != nil {
			return WrapExitError(ExitCommandError, "failed to store auxiliary inputs", err)
		}
	}
	if auxOut != nil {
		if err := st.PutAux(ctx, opts.Subject, ir.DirectionOutput, auxOut); err != nil {
			return WrapExitError(ExitCommandError, "failed to store auxiliary outputs", err)
		}
	}

	opts.logger().Debug("payload imported",
		"subject", opts.Subject,
		"collapsed", opts.Collapsed,
		"steps", count,
	)

	result := ImportResult{
		Subject:     opts.Subject,
		Collapsed:   opts.Collapsed,
		StepCount:   count,
		AuxInputs:   len(auxIn),
		AuxOutputs:  len(auxOut),
		PayloadHash: ir.PayloadHash(payload),
	}
	return out.Success(result, func(w io.Writer) {
		granularity := "expanded"
		if result.Collapsed {
			granularity = "collapsed"
		}
		fmt.Fprintf(w, "Imported %d steps for %s (%s)\n", result.StepCount, result.Subject, granularity)
		if result.AuxInputs > 0 || result.AuxOutputs > 0 {
			fmt.Fprintf(w, "Auxiliary: %d inputs, %d outputs\n", result.AuxInputs, result.AuxOutputs)
		}
	})
}

// readAux loads an auxiliary collection file. An empty path returns nil.
func readAux(path string) ([]ir.EmbeddedRef, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read auxiliary collection", err)
	}
	refs, err := ingest.DecodeAux(data)
	if err != nil {
		return nil, WrapExitError(ExitFailure, fmt.Sprintf("invalid auxiliary collection %s", path), err)
	}
	return refs, nil
}

// problemDetails lists the payload problems in err, or nil when err is not
// a payload validation error.
func problemDetails(err error) []string {
	if me, ok := ir.AsMalformed(err); ok {
		details := make([]string, len(me.Problems))
		for i, p := range me.Problems {
			details[i] = p.String()
		}
		return details
	}
	var se *ingest.SchemaError
	if errors.As(err, &se) {
		return []string{se.Error()}
	}
	return nil
}
