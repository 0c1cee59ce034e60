package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/provgraph/internal/ingest"
	"github.com/roach88/provgraph/internal/ir"
	"github.com/roach88/provgraph/internal/loader"
	"github.com/roach88/provgraph/internal/store"
	"github.com/roach88/provgraph/internal/testutil"
)

// settleTimeout bounds how long the harness waits for one load to settle.
const settleTimeout = 10 * time.Second

// Harness is the test execution engine.
// It runs scenarios through a real Loader with a deterministic clock and
// sequential request tokens, so load logs and golden files are stable.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	loader   *loader.Loader

	mu   sync.Mutex
	gate chan struct{} // non-nil while a held fetch is outstanding
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database holding the load log
// 2. Execute the flow against a Loader serving the scenario payloads
// 3. Derive the view with the scenario options
// 4. Evaluate assertions against view, state and load log
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{scenario: scenario, store: st}
	h.loader = loader.New(loader.FetcherFunc(h.fetch),
		loader.WithRecorder(st),
		loader.WithTokens(testutil.NewSequentialTokens("req")),
		loader.WithClock(testutil.NewDeterministicClock()),
		loader.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), // Suppress logs in tests
	)

	ctx := context.Background()
	result := NewResult()

	flow := scenario.Flow
	if len(flow) == 0 {
		flow = []FlowStep{{Action: ActionLoad}}
	}
	for i, step := range flow {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("failed to execute flow: %w", err)
		}
	}

	snap := h.loader.Snapshot()
	result.State = snap.State
	result.Message = snap.Message()

	hints := ir.DefaultRenderHints()
	if scenario.Hints != nil {
		hints = *scenario.Hints
	}
	result.View = h.loader.View(scenario.Options, hints)

	if result.Loads, err = st.ReadLoadLog(ctx, ""); err != nil {
		return nil, fmt.Errorf("failed to read load log: %w", err)
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

// execute runs one flow step. Unless the step holds its fetch, it waits for
// the load to settle before returning.
func (h *Harness) execute(ctx context.Context, i int, step FlowStep, result *Result) error {
	if step.Hold {
		h.mu.Lock()
		h.gate = make(chan struct{})
		h.mu.Unlock()
	}

	var admitted bool
	switch step.Action {
	case ActionLoad:
		admitted = h.loader.Load(ctx, h.subject(step.Subject), step.Collapse)
	case ActionToggle:
		admitted = h.loader.ToggleCollapseSimilarRuns(ctx)
	case ActionRetry:
		admitted = h.loader.Retry(ctx)
	case ActionNavigate:
		h.loader.Navigate(h.subject(step.Subject))
		return nil
	case ActionRelease:
		h.release()
		return h.settle(ctx)
	default:
		return fmt.Errorf("flow[%d]: unknown action %q", i, step.Action)
	}

	if step.Admitted != nil && *step.Admitted != admitted {
		result.AddError(fmt.Sprintf("flow[%d]: %s admitted = %t, expected %t", i, step.Action, admitted, *step.Admitted))
	}

	switch {
	case step.Hold && !admitted:
		// No fetch captured the fresh gate.
		h.release()
		return nil
	case step.Hold, !admitted:
		return nil
	}
	return h.settle(ctx)
}

// subject returns the scenario subject, or a bare subject with the given
// id when it differs.
func (h *Harness) subject(id string) loader.Subject {
	if id == "" || id == h.scenario.Subject.ID {
		return h.scenario.Subject
	}
	return loader.Subject{ID: id}
}

func (h *Harness) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gate != nil {
		close(h.gate)
		h.gate = nil
	}
}

func (h *Harness) settle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, settleTimeout)
	defer cancel()
	if err := h.loader.Wait(ctx); err != nil {
		return fmt.Errorf("load did not settle: %w", err)
	}
	return nil
}

// fetch serves the scenario payloads the way the step-retrieval endpoint
// would: decoded at request time, so malformed payloads fail the load.
func (h *Harness) fetch(ctx context.Context, subjectID string, collapse bool) ([]ir.StepRecord, error) {
	h.mu.Lock()
	gate := h.gate
	h.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if h.scenario.FetchError != "" {
		return nil, &loader.TransportError{
			Code:      loader.ErrCodeErrorPayload,
			SubjectID: subjectID,
			Message:   h.scenario.FetchError,
		}
	}
	if subjectID != h.scenario.Subject.ID {
		return []ir.StepRecord{}, nil
	}
	return ingest.Decode(h.scenario.payload(collapse))
}
