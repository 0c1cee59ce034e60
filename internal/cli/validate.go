package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/provgraph/internal/graph"
	"github.com/roach88/provgraph/internal/ingest"
	"github.com/roach88/provgraph/internal/ir"
	"github.com/roach88/provgraph/internal/resolver"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// ValidationResult is the output of a successful validation.
type ValidationResult struct {
	Valid     bool   `json:"valid"`
	File      string `json:"file"`
	StepCount int    `json:"step_count"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <steps.json>",
		Short: "Validate a step-retrieval payload",
		Long: `Check a step-retrieval payload against the payload schema and the
step graph contract, then build its graph.

Reports every problem found rather than stopping at the first one.`,
		Example: `  provgraph validate steps.json
  provgraph validate --format json steps.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args[0])
		},
	}

	return cmd
}

func runValidate(cmd *cobra.Command, opts *ValidateOptions, path string) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	payload, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read payload", err)
	}

	steps, err := ingest.Decode(payload)
	if err == nil {
		var g ir.Graph
		g, err = graph.Build(steps, resolver.Resolve(steps), graph.BuildOptions{})
		if err == nil {
			result := ValidationResult{
				Valid:     true,
				File:      path,
				StepCount: len(steps),
				NodeCount: len(g.Nodes),
				EdgeCount: len(g.Edges),
			}
			return out.Success(result, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s is valid\n", path)
				fmt.Fprintf(w, "  Steps: %d\n", result.StepCount)
				fmt.Fprintf(w, "  Graph: %d nodes, %d edges\n", result.NodeCount, result.EdgeCount)
			})
		}
	}

	details := problemDetails(err)
	if details == nil {
		details = []string{err.Error()}
	}
	if outErr := out.Error(CodeInvalidPayload, fmt.Sprintf("%s is invalid", path), details); outErr != nil {
		return outErr
	}
	return NewExitError(ExitFailure, "validation failed")
}
