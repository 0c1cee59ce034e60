package loader

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/provgraph/internal/graph"
	"github.com/roach88/provgraph/internal/ir"
	"github.com/roach88/provgraph/internal/resolver"
)

// State is the loader lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Subject is the page subject whose provenance is shown.
type Subject struct {
	ID string `json:"id" yaml:"id"`

	// Identity is matched against node run data for highlighting.
	// Empty means ID.
	Identity string `json:"identity,omitempty" yaml:"identity,omitempty"`

	// AuxInputs and AuxOutputs are the subject's embedded run collections,
	// used as extra resolver sources.
	AuxInputs  []ir.EmbeddedRef `json:"aux_inputs,omitempty" yaml:"aux_inputs,omitempty"`
	AuxOutputs []ir.EmbeddedRef `json:"aux_outputs,omitempty" yaml:"aux_outputs,omitempty"`
}

// MatchIdentity returns the identity used by the context matcher.
func (s Subject) MatchIdentity() string {
	if s.Identity != "" {
		return s.Identity
	}
	return s.ID
}

// Recorder persists settled load attempts.
// Implemented by store.Store.
type Recorder interface {
	RecordLoad(ctx context.Context, rec ir.LoadRecord) error
}

// Snapshot is a consistent copy of the loader state.
type Snapshot struct {
	State               State
	Subject             Subject
	CollapseSimilarRuns bool

	// RequestToken identifies the latest admitted load.
	RequestToken string

	// Seq stamps the latest transition.
	Seq int64

	// Graph is the built graph while Ready, and empty otherwise.
	Graph ir.Graph

	// StepCount is the number of step records behind Graph.
	StepCount int

	// Err is the failure while Failed, nil otherwise.
	Err error
}

// Message returns the user-visible failure message.
func (s Snapshot) Message() string {
	return FailureMessage(s.Err)
}

// Loader drives step retrieval for one provenance panel.
//
// Thread-safety: all methods are safe for concurrent use. Fetches run on a
// goroutine per admitted load; at most one is outstanding.
type Loader struct {
	fetcher  Fetcher
	recorder Recorder
	tokens   TokenGenerator
	clock    Sequencer
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	subject   Subject
	collapse  bool
	token     string
	seq       int64
	graph     ir.Graph
	stepCount int
	err       error
	done      chan struct{} // closed when the outstanding load settles
}

// Option configures a Loader.
type Option func(*Loader)

// WithRecorder records every settled load attempt.
func WithRecorder(r Recorder) Option {
	return func(l *Loader) {
		l.recorder = r
	}
}

// WithTokens replaces the UUIDv7 request-token generator.
func WithTokens(g TokenGenerator) Option {
	return func(l *Loader) {
		l.tokens = g
	}
}

// WithClock replaces the logical clock.
func WithClock(c Sequencer) Option {
	return func(l *Loader) {
		l.clock = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithCollapseSimilarRuns sets the initial granularity.
func WithCollapseSimilarRuns(collapse bool) Option {
	return func(l *Loader) {
		l.collapse = collapse
	}
}

// New creates an Idle loader backed by fetcher.
func New(fetcher Fetcher, opts ...Option) *Loader {
	l := &Loader{
		fetcher: fetcher,
		tokens:  UUIDv7Tokens{},
		clock:   NewClock(),
		logger:  slog.Default(),
		state:   StateIdle,
		graph:   ir.EmptyGraph(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// request is one admitted load.
type request struct {
	token    string
	subject  Subject
	collapse bool
	done     chan struct{}
}

// Load requests the step records of subject at the given granularity.
//
// Returns false, changing nothing, when a load is already in flight.
// Otherwise the loader enters Loading and the fetch proceeds in the
// background; use Wait to block until it settles.
func (l *Loader) Load(ctx context.Context, subject Subject, collapse bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.admitLocked(ctx, subject, collapse)
}

// ToggleCollapseSimilarRuns flips the granularity and refetches. The
// previous response is never reused. Returns false, changing nothing, while
// a load is in flight or before any subject is set.
func (l *Loader) ToggleCollapseSimilarRuns(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subject.ID == "" {
		return false
	}
	return l.admitLocked(ctx, l.subject, !l.collapse)
}

// Retry reloads the current subject at the current granularity.
func (l *Loader) Retry(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subject.ID == "" {
		return false
	}
	return l.admitLocked(ctx, l.subject, l.collapse)
}

// Navigate makes subject current without fetching.
//
// If a load for another subject is in flight, its response will be
// discarded on arrival and the loader settles to Idle. Otherwise the
// loader drops any shown graph and becomes Idle immediately.
func (l *Loader) Navigate(subject Subject) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.subject = subject
	if l.state == StateLoading {
		return
	}
	l.transitionLocked(StateIdle, ir.EmptyGraph(), 0, nil)
}

// Snapshot returns the current state.
func (l *Loader) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		State:               l.state,
		Subject:             l.subject,
		CollapseSimilarRuns: l.collapse,
		RequestToken:        l.token,
		Seq:                 l.seq,
		Graph:               l.graph,
		StepCount:           l.stepCount,
		Err:                 l.err,
	}
}

// Wait blocks until no load is in flight or ctx is done.
func (l *Loader) Wait(ctx context.Context) error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View derives the renderer payload for the current graph. The collapse
// setting always follows the loader, not opts. Anything but Ready yields
// an empty view.
func (l *Loader) View(opts ir.ViewOptions, hints ir.RenderHints) graph.View {
	snap := l.Snapshot()
	if snap.State != StateReady {
		return graph.EmptyView(hints)
	}
	opts.CollapseSimilarRuns = snap.CollapseSimilarRuns
	return graph.Derive(snap.Graph, opts, snap.Subject.MatchIdentity(), hints)
}

func (l *Loader) admitLocked(ctx context.Context, subject Subject, collapse bool) bool {
	if l.state == StateLoading {
		l.logger.Debug("load rejected: busy",
			"subject", subject.ID,
			"in_flight", l.token,
		)
		return false
	}

	req := request{
		token:    l.tokens.Generate(),
		subject:  subject,
		collapse: collapse,
		done:     make(chan struct{}),
	}

	l.subject = subject
	l.collapse = collapse
	l.token = req.token
	l.done = req.done
	l.transitionLocked(StateLoading, ir.EmptyGraph(), 0, nil)

	l.logger.Info("load started",
		"request", req.token,
		"subject", subject.ID,
		"collapse_similar_runs", collapse,
		"seq", l.seq,
	)

	go l.fetch(ctx, req)
	return true
}

func (l *Loader) fetch(ctx context.Context, req request) {
	defer close(req.done)

	steps, err := l.fetcher.FetchSteps(ctx, req.subject.ID, req.collapse)
	rec := l.settle(req, steps, err)

	if l.recorder != nil {
		if rerr := l.recorder.RecordLoad(context.WithoutCancel(ctx), rec); rerr != nil {
			l.logger.Warn("record load failed",
				"request", req.token,
				"error", rerr,
			)
		}
	}
}

// settle applies the outcome of req and returns its load record.
func (l *Loader) settle(req request, steps []ir.StepRecord, fetchErr error) ir.LoadRecord {
	rec := ir.LoadRecord{
		RequestToken: req.token,
		SubjectID:    req.subject.ID,
		Collapsed:    req.collapse,
	}

	// Build outside the lock: it is pure and may be large.
	var g ir.Graph
	err := fetchErr
	if err == nil {
		resolved := resolver.Resolve(steps, req.subject.AuxInputs, req.subject.AuxOutputs)
		g, err = graph.Build(steps, resolved, graph.BuildOptions{
			GroupSimilar:    req.collapse,
			ContextIdentity: req.subject.MatchIdentity(),
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.subject.ID != req.subject.ID {
		l.transitionLocked(StateIdle, ir.EmptyGraph(), 0, nil)
		rec.Outcome = ir.OutcomeStale
		rec.Seq = l.seq
		l.logger.Debug("stale response discarded",
			"request", req.token,
			"subject", req.subject.ID,
			"current", l.subject.ID,
		)
		return rec
	}

	if err != nil {
		l.transitionLocked(StateFailed, ir.EmptyGraph(), 0, err)
		rec.Outcome = ir.OutcomeFailed
		rec.Message = FailureMessage(err)
		rec.Seq = l.seq
		l.logger.Error("load failed",
			"request", req.token,
			"subject", req.subject.ID,
			"transport", IsTransportError(err),
			"malformed", ir.IsMalformed(err),
			"error", err,
		)
		return rec
	}

	l.transitionLocked(StateReady, g, len(steps), nil)
	rec.Outcome = ir.OutcomeReady
	if len(steps) == 0 {
		rec.Outcome = ir.OutcomeEmpty
	}
	rec.NodeCount = len(g.Nodes)
	rec.EdgeCount = len(g.Edges)
	rec.Seq = l.seq
	if h, herr := ir.GraphHash(g); herr == nil {
		rec.GraphHash = h
	} else {
		l.logger.Warn("graph hash failed", "request", req.token, "error", herr)
	}

	l.logger.Info("load ready",
		"request", req.token,
		"subject", req.subject.ID,
		"steps", len(steps),
		"nodes", rec.NodeCount,
		"edges", rec.EdgeCount,
		"seq", l.seq,
	)
	return rec
}

func (l *Loader) transitionLocked(state State, g ir.Graph, stepCount int, err error) {
	l.state = state
	l.graph = g
	l.stepCount = stepCount
	l.err = err
	l.seq = l.clock.Next()
}
