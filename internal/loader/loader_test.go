package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/ir"
	"github.com/roach88/provgraph/internal/testutil"
)

type fetchCall struct {
	subjectID string
	collapse  bool
}

// stubFetcher serves canned steps keyed by "<subject>/<collapse>". When gate
// is set, every fetch blocks until gate is closed.
type stubFetcher struct {
	mu    sync.Mutex
	calls []fetchCall
	gate  chan struct{}
	steps map[string][]ir.StepRecord
	err   error
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{steps: make(map[string][]ir.StepRecord)}
}

func (f *stubFetcher) set(subjectID string, collapse bool, steps []ir.StepRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps[fmt.Sprintf("%s/%t", subjectID, collapse)] = steps
}

func (f *stubFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *stubFetcher) hold() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

func (f *stubFetcher) FetchSteps(ctx context.Context, subjectID string, collapse bool) ([]ir.StepRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{subjectID, collapse})
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.steps[fmt.Sprintf("%s/%t", subjectID, collapse)], nil
}

func (f *stubFetcher) callLog() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

type memRecorder struct {
	mu      sync.Mutex
	records []ir.LoadRecord
}

func (r *memRecorder) RecordLoad(_ context.Context, rec ir.LoadRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *memRecorder) all() []ir.LoadRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ir.LoadRecord(nil), r.records...)
}

func newTestLoader(f Fetcher, opts ...Option) (*Loader, *memRecorder) {
	rec := &memRecorder{}
	base := []Option{
		WithRecorder(rec),
		WithTokens(testutil.NewSequentialTokens("req")),
		WithClock(testutil.NewDeterministicClock()),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(f, append(base, opts...)...), rec
}

func wait(t *testing.T, l *Loader) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Wait(ctx))
}

func TestLoader_InitialState(t *testing.T) {
	l, _ := newTestLoader(newStubFetcher())
	snap := l.Snapshot()

	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Subject.ID)
	assert.NotNil(t, snap.Graph.Nodes)
	require.NoError(t, l.Wait(context.Background()))

	assert.False(t, l.Retry(context.Background()), "no subject yet")
	assert.False(t, l.ToggleCollapseSimilarRuns(context.Background()), "no subject yet")
}

func TestLoader_LoadReady(t *testing.T) {
	f := newStubFetcher()
	f.set("X", false, testutil.AlignmentPipeline())
	l, rec := newTestLoader(f)

	require.True(t, l.Load(context.Background(), Subject{ID: "X"}, false))
	wait(t, l)

	snap := l.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, "req-1", snap.RequestToken)
	assert.Equal(t, 2, snap.StepCount)
	assert.Len(t, snap.Graph.Nodes, 8)
	assert.NoError(t, snap.Err)
	assert.Equal(t, int64(2), snap.Seq, "loading then ready")

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, ir.OutcomeReady, records[0].Outcome)
	assert.Equal(t, "req-1", records[0].RequestToken)
	assert.Equal(t, 8, records[0].NodeCount)
	assert.Equal(t, 7, records[0].EdgeCount)
	assert.Equal(t, ir.MustGraphHash(snap.Graph), records[0].GraphHash)
}

func TestLoader_ZeroStepsIsReadyNotFailed(t *testing.T) {
	f := newStubFetcher()
	f.set("X", false, []ir.StepRecord{})
	l, rec := newTestLoader(f)

	require.True(t, l.Load(context.Background(), Subject{ID: "X"}, false))
	wait(t, l)

	snap := l.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Empty(t, snap.Graph.Nodes)
	assert.Empty(t, snap.Graph.Edges)
	assert.NotNil(t, snap.Graph.Nodes)
	assert.NoError(t, snap.Err)

	require.Len(t, rec.all(), 1)
	assert.Equal(t, ir.OutcomeEmpty, rec.all()[0].Outcome)
}

func TestLoader_AdmissionRejectsWhileLoading(t *testing.T) {
	f := newStubFetcher()
	f.set("A", false, testutil.AlignmentPipeline())
	f.set("B", false, []ir.StepRecord{testutil.FanOut("b", 2)})
	gate := f.hold()
	l, _ := newTestLoader(f)

	require.True(t, l.Load(context.Background(), Subject{ID: "A"}, false))
	before := l.Snapshot()
	require.Equal(t, StateLoading, before.State)

	assert.False(t, l.Load(context.Background(), Subject{ID: "B"}, false))
	assert.False(t, l.ToggleCollapseSimilarRuns(context.Background()))
	assert.False(t, l.Retry(context.Background()))

	after := l.Snapshot()
	assert.Equal(t, before, after, "rejected requests change nothing")

	close(gate)
	wait(t, l)

	snap := l.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, "A", snap.Subject.ID)
	assert.False(t, snap.CollapseSimilarRuns)
	assert.Equal(t, []fetchCall{{"A", false}}, f.callLog(), "no automatic retry for B")
}

func TestLoader_LoadWhileReadyStartsNewRetrieval(t *testing.T) {
	f := newStubFetcher()
	f.set("A", false, testutil.AlignmentPipeline())
	f.set("B", false, []ir.StepRecord{testutil.FanOut("b", 2)})
	l, _ := newTestLoader(f)

	require.True(t, l.Load(context.Background(), Subject{ID: "A"}, false))
	wait(t, l)
	require.True(t, l.Load(context.Background(), Subject{ID: "B"}, false))
	wait(t, l)

	snap := l.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, "B", snap.Subject.ID)
	assert.Equal(t, "req-2", snap.RequestToken)
	assert.Len(t, f.callLog(), 2)
}

func TestLoader_TransportFailureAndRetry(t *testing.T) {
	f := newStubFetcher()
	f.set("X", false, testutil.AlignmentPipeline())
	f.setErr(&TransportError{Code: ErrCodeBadStatus, SubjectID: "X", Status: 503, Message: "backend down"})
	l, rec := newTestLoader(f)

	require.True(t, l.Load(context.Background(), Subject{ID: "X"}, false))
	wait(t, l)

	snap := l.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.True(t, IsTransportError(snap.Err))
	assert.Equal(t, "backend down", snap.Message())
	assert.Empty(t, snap.Graph.Nodes, "no partial graph")

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, ir.OutcomeFailed, records[0].Outcome)
	assert.Equal(t, "backend down", records[0].Message)

	f.setErr(nil)
	require.True(t, l.Retry(context.Background()))
	wait(t, l)

	snap = l.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.NoError(t, snap.Err)
	assert.Len(t, f.callLog(), 2)
}

func TestLoader_MalformedIsDistinctFromTransport(t *testing.T) {
	bad := testutil.File("x", "FX")
	bad.Target = []ir.StepRef{{Step: "ghost"}}

	f := newStubFetcher()
	f.set("X", false, []ir.StepRecord{testutil.Step("a", nil, testutil.Out(bad))})
	l, _ := newTestLoader(f)

	require.True(t, l.Load(context.Background(), Subject{ID: "X"}, false))
	wait(t, l)

	snap := l.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.True(t, ir.IsMalformed(snap.Err))
	assert.False(t, IsTransportError(snap.Err))
	assert.Contains(t, snap.Message(), "ghost")
}

func TestLoader_ToggleAlwaysRefetches(t *testing.T) {
	f := newStubFetcher()
	f.set("X", false, []ir.StepRecord{testutil.FanOut("scatter", 4)})
	f.set("X", true, []ir.StepRecord{testutil.FanOut("scatter", 4)})
	l, _ := newTestLoader(f)

	require.True(t, l.Load(context.Background(), Subject{ID: "X"}, false))
	wait(t, l)
	assert.Len(t, l.Snapshot().Graph.Nodes, 6)

	require.True(t, l.ToggleCollapseSimilarRuns(context.Background()))
	wait(t, l)

	snap := l.Snapshot()
	assert.True(t, snap.CollapseSimilarRuns)
	assert.True(t, snap.Graph.Grouped)
	assert.Len(t, snap.Graph.Nodes, 3)

	require.True(t, l.ToggleCollapseSimilarRuns(context.Background()))
	wait(t, l)
	assert.False(t, l.Snapshot().CollapseSimilarRuns)

	assert.Equal(t, []fetchCall{{"X", false}, {"X", true}, {"X", false}}, f.callLog())
}

func TestLoader_StaleResponseDiscarded(t *testing.T) {
	f := newStubFetcher()
	f.set("A", false, testutil.AlignmentPipeline())
	gate := f.hold()
	l, rec := newTestLoader(f)

	require.True(t, l.Load(context.Background(), Subject{ID: "A"}, false))
	l.Navigate(Subject{ID: "B"})

	snap := l.Snapshot()
	assert.Equal(t, StateLoading, snap.State, "A is still outstanding")
	assert.Equal(t, "B", snap.Subject.ID)
	assert.False(t, l.Load(context.Background(), Subject{ID: "B"}, false))

	close(gate)
	wait(t, l)

	snap = l.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, "B", snap.Subject.ID)
	assert.Empty(t, snap.Graph.Nodes)
	assert.NoError(t, snap.Err)

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, ir.OutcomeStale, records[0].Outcome)
	assert.Equal(t, "A", records[0].SubjectID)

	require.True(t, l.Load(context.Background(), Subject{ID: "B"}, false))
	wait(t, l)
	assert.Equal(t, StateReady, l.Snapshot().State)
}

func TestLoader_NavigateWhileIdleClearsGraph(t *testing.T) {
	f := newStubFetcher()
	f.set("A", false, testutil.AlignmentPipeline())
	l, _ := newTestLoader(f)

	require.True(t, l.Load(context.Background(), Subject{ID: "A"}, false))
	wait(t, l)
	require.NotEmpty(t, l.Snapshot().Graph.Nodes)

	l.Navigate(Subject{ID: "B"})
	snap := l.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Graph.Nodes)
	assert.Len(t, f.callLog(), 1, "navigate never fetches")
}

func TestLoader_WaitHonoursContext(t *testing.T) {
	f := newStubFetcher()
	gate := f.hold()
	defer close(gate)
	l, _ := newTestLoader(f)

	require.True(t, l.Load(context.Background(), Subject{ID: "A"}, false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

func TestLoader_View(t *testing.T) {
	f := newStubFetcher()
	f.set("run-1", false, testutil.AlignmentPipeline())
	l, _ := newTestLoader(f)

	hints := ir.DefaultRenderHints()
	empty := l.View(ir.ViewOptions{}, hints)
	assert.Empty(t, empty.Nodes)
	assert.Equal(t, hints, empty.Hints)

	require.True(t, l.Load(context.Background(), Subject{ID: "run-1", Identity: "F2"}, false))
	wait(t, l)

	v := l.View(ir.ViewOptions{}, hints)
	assert.Len(t, v.Nodes, 5)
	assert.Equal(t, []string{"terminal:bam"}, v.Highlighted)
	assert.True(t, v.HasReferenceFiles)
	assert.True(t, v.HasIndirectFiles)

	// The collapse setting comes from the loader.
	v = l.View(ir.ViewOptions{CollapseSimilarRuns: true}, hints)
	assert.False(t, v.Grouped)
}

func TestLoader_AuxCollectionsFeedResolver(t *testing.T) {
	steps := []ir.StepRecord{
		testutil.Step("a", nil, testutil.Out(ir.Terminal{
			ID:      "x",
			Type:    ir.TypeFile,
			InPath:  true,
			RunData: &ir.EmbeddedRef{ID: "/files/FX/"},
		})),
	}
	f := newStubFetcher()
	f.set("run", false, steps)
	l, _ := newTestLoader(f)

	subject := Subject{
		ID:         "run",
		Identity:   "FX",
		AuxOutputs: []ir.EmbeddedRef{{ID: "/files/FX/", Accession: "FX", FileFormat: "bam"}},
	}
	require.True(t, l.Load(context.Background(), subject, false))
	wait(t, l)

	n, ok := l.Snapshot().Graph.Node("terminal:x")
	require.True(t, ok)
	require.NotNil(t, n.RunData)
	assert.Equal(t, "FX", n.RunData.Accession)
	assert.Equal(t, "bam", n.RunData.FileFormat)
	assert.Equal(t, []string{"terminal:x"}, l.View(ir.ViewOptions{}, ir.DefaultRenderHints()).Highlighted)
}

func TestSubject_MatchIdentity(t *testing.T) {
	assert.Equal(t, "S", Subject{ID: "S"}.MatchIdentity())
	assert.Equal(t, "F1", Subject{ID: "S", Identity: "F1"}.MatchIdentity())
}

func TestClock(t *testing.T) {
	c := NewClockAt(41)
	assert.Equal(t, int64(41), c.Current())
	assert.Equal(t, int64(42), c.Next())
	assert.Equal(t, int64(1), NewClock().Next())
}

func TestUUIDv7Tokens(t *testing.T) {
	var g UUIDv7Tokens
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Equal(t, "7", a[14:15], "version nibble")
}
