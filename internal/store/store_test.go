package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/ir"
	"github.com/roach88/provgraph/internal/loader"
	"github.com/roach88/provgraph/internal/testutil"
)

var (
	_ loader.Fetcher  = (*Store)(nil)
	_ loader.Recorder = (*Store)(nil)
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func pipelinePayload(t *testing.T) []byte {
	t.Helper()
	data, err := json.Marshal(testutil.AlignmentPipeline())
	require.NoError(t, err)
	return data
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.PutSteps(context.Background(), "X", false, pipelinePayload(t), 1)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	steps, err := s2.FetchSteps(context.Background(), "X", false)
	require.NoError(t, err)
	assert.Len(t, steps, 2)
}

func TestOpen_MigratesV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v0.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE step_payloads (
			subject_id   TEXT    NOT NULL,
			collapsed    INTEGER NOT NULL,
			payload      TEXT    NOT NULL,
			payload_hash TEXT    NOT NULL,
			seq          INTEGER NOT NULL,
			PRIMARY KEY (subject_id, collapsed)
		)
	`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO step_payloads VALUES ('X', 0, '[]', 'h', 3)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.verifyPragma("user_version", "1"))
	infos, err := s.ListPayloads(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 0, infos[0].StepCount)
	assert.Equal(t, int64(3), infos[0].Seq)
}

func TestPutSteps_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	payload := pipelinePayload(t)

	n, err := s.PutSteps(ctx, "X", false, payload, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	steps, err := s.FetchSteps(ctx, "X", false)
	require.NoError(t, err)
	assert.Equal(t, testutil.AlignmentPipeline(), steps)

	infos, err := s.ListPayloads(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, ir.PayloadHash(payload), infos[0].PayloadHash)
	assert.False(t, infos[0].Collapsed)
}

func TestPutSteps_Replaces(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.PutSteps(ctx, "X", false, pipelinePayload(t), 1)
	require.NoError(t, err)
	_, err = s.PutSteps(ctx, "X", false, []byte(`[]`), 2)
	require.NoError(t, err)

	steps, err := s.FetchSteps(ctx, "X", false)
	require.NoError(t, err)
	assert.Empty(t, steps)

	infos, err := s.ListPayloads(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, int64(2), infos[0].Seq)
}

func TestPutSteps_RejectsInvalid(t *testing.T) {
	s := createTestStore(t)

	_, err := s.PutSteps(context.Background(), "X", false, []byte(`[{"id":"a","name":"a","outputs":[{"id":"x","type":"file","target":[{"step":"ghost"}]}]}]`), 1)
	assert.True(t, ir.IsMalformed(err))

	_, err = s.PutSteps(context.Background(), "X", false, []byte(`{"not":"a list"}`), 1)
	assert.Error(t, err)

	infos, err := s.ListPayloads(context.Background())
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestFetchSteps_GranularityIsSeparate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.PutSteps(ctx, "X", true, pipelinePayload(t), 1)
	require.NoError(t, err)

	expanded, err := s.FetchSteps(ctx, "X", false)
	require.NoError(t, err)
	assert.NotNil(t, expanded)
	assert.Empty(t, expanded, "missing payload is an empty list")

	collapsed, err := s.FetchSteps(ctx, "X", true)
	require.NoError(t, err)
	assert.Len(t, collapsed, 2)
}

func TestAux_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	v := "42"
	refs := []ir.EmbeddedRef{
		{ID: "/files/F1/", Accession: "F1", FileFormat: "fastq", Status: "released"},
		{ID: "/values/v/", Value: &v, ValueType: "integer"},
	}
	require.NoError(t, s.PutAux(ctx, "run", ir.DirectionInput, refs))

	got, err := s.ReadAux(ctx, "run", ir.DirectionInput)
	require.NoError(t, err)
	assert.Equal(t, refs, got)

	outputs, err := s.ReadAux(ctx, "run", ir.DirectionOutput)
	require.NoError(t, err)
	assert.NotNil(t, outputs)
	assert.Empty(t, outputs)

	require.NoError(t, s.PutAux(ctx, "run", ir.DirectionInput, refs[:1]))
	got, err = s.ReadAux(ctx, "run", ir.DirectionInput)
	require.NoError(t, err)
	assert.Len(t, got, 1, "put replaces the collection")
}

func TestLoadLog(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	recs := []ir.LoadRecord{
		{RequestToken: "r1", SubjectID: "A", Outcome: ir.OutcomeReady, NodeCount: 3, EdgeCount: 2, GraphHash: "h", Seq: 2},
		{RequestToken: "r2", SubjectID: "B", Collapsed: true, Outcome: ir.OutcomeFailed, Message: "down", Seq: 4},
		{RequestToken: "r3", SubjectID: "A", Outcome: ir.OutcomeStale, Seq: 6},
	}
	for _, r := range recs {
		require.NoError(t, s.RecordLoad(ctx, r))
	}
	require.NoError(t, s.RecordLoad(ctx, recs[0]), "duplicate token is ignored")

	all, err := s.ReadLoadLog(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, recs, all)

	onlyA, err := s.ReadLoadLog(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []ir.LoadRecord{recs[0], recs[2]}, onlyA)

	none, err := s.ReadLoadLog(ctx, "Z")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	seq, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), seq)
}

func TestLastSeq_Empty(t *testing.T) {
	s := createTestStore(t)
	seq, err := s.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
}

func TestStore_BacksLoader(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.PutSteps(ctx, "run-1", false, pipelinePayload(t), 1)
	require.NoError(t, err)

	l := loader.New(s,
		loader.WithRecorder(s),
		loader.WithTokens(testutil.NewSequentialTokens("req")),
		loader.WithClock(loader.NewClockAt(1)),
		loader.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	require.True(t, l.Load(ctx, loader.Subject{ID: "run-1", Identity: "F2"}, false))
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, l.Wait(waitCtx))

	snap := l.Snapshot()
	require.Equal(t, loader.StateReady, snap.State)

	log, err := s.ReadLoadLog(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "req-1", log[0].RequestToken)
	assert.Equal(t, ir.OutcomeReady, log[0].Outcome)
	assert.Equal(t, int64(3), log[0].Seq)
	assert.Equal(t, ir.MustGraphHash(snap.Graph), log[0].GraphHash)

	// Nothing stored for the collapsed granularity: Ready and empty.
	require.True(t, l.ToggleCollapseSimilarRuns(ctx))
	require.NoError(t, l.Wait(waitCtx))
	assert.Equal(t, loader.StateReady, l.Snapshot().State)
	assert.Empty(t, l.Snapshot().Graph.Nodes)

	log, err = s.ReadLoadLog(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, ir.OutcomeEmpty, log[1].Outcome)
	assert.True(t, log[1].Collapsed)
}
