package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/provgraph/internal/graph"
	"github.com/roach88/provgraph/internal/ir"
	"github.com/roach88/provgraph/internal/loader"
	"github.com/roach88/provgraph/internal/store"
)

// DefaultLoadTimeout bounds how long the graph command waits for panels.
const DefaultLoadTimeout = 2 * time.Minute

// GraphOptions holds flags for the graph command.
type GraphOptions struct {
	*RootOptions
	Database string
	Endpoint string
	Subjects []string
	Identity string
	Timeout  time.Duration

	CollapseSimilarRuns bool
	ShowReferenceFiles  bool
	ShowParameters      bool
	ShowIndirectFiles   bool
	RowSpacing          string
	ColumnSpacing       int
}

// PanelResult is the settled state of one subject's panel.
type PanelResult struct {
	Subject      string       `json:"subject"`
	State        loader.State `json:"state"`
	Message      string       `json:"message,omitempty"`
	RequestToken string       `json:"request_token"`
	StepCount    int          `json:"step_count"`
	View         graph.View   `json:"view"`
}

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GraphOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Load and render provenance graphs for one or more subjects",
		Long: `Retrieve step records for each subject, build the provenance graph,
apply the view options and print the renderer payload.

Steps come from a snapshot database (--db) or a retrieval endpoint
(--endpoint). Each subject is loaded by its own panel; panels run
concurrently and a failing panel does not affect the others.`,
		Example: `  provgraph graph --db ./snap.db --subject run-1
  provgraph graph --endpoint https://example.org/api/provenance --subject run-1 --subject file-7
  provgraph graph --db ./snap.db --subject run-1 --collapse-similar-runs --show-parameters`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "snapshot database path")
	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "", "step retrieval endpoint URL")
	cmd.Flags().StringArrayVar(&opts.Subjects, "subject", nil, "subject identifier (repeatable, required)")
	cmd.Flags().StringVar(&opts.Identity, "identity", "", "identity to highlight (single subject only; defaults to the subject id)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", DefaultLoadTimeout, "maximum time to wait for all panels")
	cmd.Flags().BoolVar(&opts.CollapseSimilarRuns, "collapse-similar-runs", false, "request collapsed-granularity steps and group similar terminals")
	cmd.Flags().BoolVar(&opts.ShowReferenceFiles, "show-reference-files", false, "keep reference-file terminals")
	cmd.Flags().BoolVar(&opts.ShowParameters, "show-parameters", false, "keep parameter terminals")
	cmd.Flags().BoolVar(&opts.ShowIndirectFiles, "show-indirect-files", false, "keep terminals outside the primary data path")
	cmd.Flags().StringVar(&opts.RowSpacing, "row-spacing", "", "row spacing hint (compact|wide|stacked)")
	cmd.Flags().IntVar(&opts.ColumnSpacing, "column-spacing", 0, "column spacing hint")
	_ = cmd.MarkFlagRequired("subject")
	cmd.MarkFlagsMutuallyExclusive("db", "endpoint")

	return cmd
}

// viewSettings merges config defaults with the flags that were set.
func (o *GraphOptions) viewSettings(cmd *cobra.Command) (ir.ViewOptions, ir.RenderHints, error) {
	cfg := o.config()
	view, hints := cfg.Options, cfg.Hints

	flags := cmd.Flags()
	if flags.Changed("collapse-similar-runs") {
		view.CollapseSimilarRuns = o.CollapseSimilarRuns
	}
	if flags.Changed("show-reference-files") {
		view.ShowReferenceFiles = o.ShowReferenceFiles
	}
	if flags.Changed("show-parameters") {
		view.ShowParameters = o.ShowParameters
	}
	if flags.Changed("show-indirect-files") {
		view.ShowIndirectFiles = o.ShowIndirectFiles
	}
	if o.RowSpacing != "" {
		if !ir.ValidRowSpacing(o.RowSpacing) {
			return view, hints, fmt.Errorf("unknown row spacing %q", o.RowSpacing)
		}
		hints.RowSpacing = o.RowSpacing
	}
	if o.ColumnSpacing > 0 {
		hints.ColumnSpacing = o.ColumnSpacing
	}
	return view, hints, nil
}

func runGraph(cmd *cobra.Command, opts *GraphOptions) error {
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	logger := opts.logger()

	if opts.Identity != "" && len(opts.Subjects) > 1 {
		return NewExitError(ExitCommandError, "--identity requires a single --subject")
	}
	view, hints, err := opts.viewSettings(cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid view settings", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	src, err := openSource(ctx, opts)
	if err != nil {
		return err
	}
	defer src.close()

	results := make([]PanelResult, len(opts.Subjects))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range opts.Subjects {
		i, id := i, id // per-iteration copies (go 1.21 loop semantics)
		g.Go(func() error {
			subject := loader.Subject{ID: id, Identity: opts.Identity}
			if err := src.attachAux(gctx, &subject); err != nil {
				return err
			}

			l := loader.New(src.fetcher, append(src.loaderOptions(),
				loader.WithLogger(logger.With("subject", id)),
				loader.WithCollapseSimilarRuns(view.CollapseSimilarRuns),
			)...)
			l.Load(gctx, subject, view.CollapseSimilarRuns)
			if err := l.Wait(gctx); err != nil {
				return fmt.Errorf("subject %s: %w", id, err)
			}

			snap := l.Snapshot()
			results[i] = PanelResult{
				Subject:      id,
				State:        snap.State,
				Message:      snap.Message(),
				RequestToken: snap.RequestToken,
				StepCount:    snap.StepCount,
				View:         l.View(view, hints),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "failed to load panels", err)
	}

	if err := out.Success(results, func(w io.Writer) { writePanels(w, results) }); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.State == loader.StateFailed {
			failed++
		}
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d panels failed", failed, len(results)))
	}
	return nil
}

// source is where panels fetch steps from.
type source struct {
	fetcher loader.Fetcher
	store   *store.Store
	clock   *loader.Clock
}

// openSource picks the snapshot database or the endpoint. Flags win over
// config; the database wins when the config names both.
func openSource(ctx context.Context, opts *GraphOptions) (*source, error) {
	cfg := opts.config()
	dbPath, endpoint := opts.Database, opts.Endpoint
	if dbPath == "" && endpoint == "" {
		dbPath, endpoint = cfg.Database, cfg.Endpoint
	}

	switch {
	case dbPath != "":
		st, err := store.Open(dbPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		last, err := st.LastSeq(ctx)
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to read sequence", err)
		}
		return &source{fetcher: st, store: st, clock: loader.NewClockAt(last)}, nil

	case endpoint != "":
		f, err := loader.NewHTTPFetcher(endpoint)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid endpoint", err)
		}
		return &source{fetcher: f, clock: loader.NewClock()}, nil
	}
	return nil, NewExitError(ExitCommandError, "no step source: pass --db or --endpoint, or set one in the config")
}

// loaderOptions shares one clock across panels so load records from
// concurrent panels never reuse a seq. Loads are recorded when a database
// backs the panels.
func (s *source) loaderOptions() []loader.Option {
	opts := []loader.Option{loader.WithClock(s.clock)}
	if s.store != nil {
		opts = append(opts, loader.WithRecorder(s.store))
	}
	return opts
}

// attachAux fills the subject's auxiliary run collections from the
// database.
func (s *source) attachAux(ctx context.Context, subject *loader.Subject) error {
	if s.store == nil {
		return nil
	}
	in, err := s.store.ReadAux(ctx, subject.ID, ir.DirectionInput)
	if err != nil {
		return err
	}
	out, err := s.store.ReadAux(ctx, subject.ID, ir.DirectionOutput)
	if err != nil {
		return err
	}
	subject.AuxInputs, subject.AuxOutputs = in, out
	return nil
}

func (s *source) close() {
	if s.store != nil {
		s.store.Close()
	}
}

func writePanels(w io.Writer, results []PanelResult) {
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		switch r.State {
		case loader.StateFailed:
			fmt.Fprintf(w, "%s [failed] %s\n", r.Subject, r.Message)
			continue
		case loader.StateReady:
		default:
			fmt.Fprintf(w, "%s [%s]\n", r.Subject, r.State)
			continue
		}

		v := r.View
		if len(v.Nodes) == 0 {
			fmt.Fprintf(w, "%s [ready] no provenance\n", r.Subject)
			continue
		}
		fmt.Fprintf(w, "%s [ready] %d nodes, %d edges\n", r.Subject, len(v.Nodes), len(v.Edges))
		fmt.Fprintln(w, "  nodes:")
		for _, n := range v.Nodes {
			mark := " "
			if v.IsHighlighted(n.ID) {
				mark = "*"
			}
			fmt.Fprintf(w, "  %s %-32s %-12s %s\n", mark, n.ID, n.Kind, n.Name)
		}
		if len(v.Edges) > 0 {
			fmt.Fprintln(w, "  edges:")
			for _, e := range v.Edges {
				fmt.Fprintf(w, "    %s -> %s\n", e.Source, e.Target)
			}
		}
		var flags []string
		if v.HasReferenceFiles {
			flags = append(flags, "reference files")
		}
		if v.HasIndirectFiles {
			flags = append(flags, "indirect files")
		}
		if len(flags) > 0 {
			fmt.Fprintf(w, "  available: %s\n", strings.Join(flags, ", "))
		}
	}
}
