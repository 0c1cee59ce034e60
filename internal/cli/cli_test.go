package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/ir"
	"github.com/roach88/provgraph/internal/loader"
	"github.com/roach88/provgraph/internal/testutil"
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// writeJSON marshals v into a file under dir.
func writeJSON(t *testing.T, dir, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// importAlignment stores the alignment pipeline for run-1 and returns the
// database path.
func importAlignment(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "snap.db")
	steps := writeJSON(t, dir, "steps.json", testutil.AlignmentPipeline())

	_, err := runCLI(t, "import", "--db", db, "--subject", "run-1", steps)
	require.NoError(t, err)
	return db
}

type panelsResponse struct {
	Status string        `json:"status"`
	Data   []PanelResult `json:"data"`
}

func decodePanels(t *testing.T, out string) panelsResponse {
	t.Helper()
	var resp panelsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	return resp
}

func TestImport_Text(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "snap.db")
	steps := writeJSON(t, dir, "steps.json", testutil.AlignmentPipeline())
	aux := writeJSON(t, dir, "aux.json", []*ir.EmbeddedRef{testutil.FileRef("F1")})

	out, err := runCLI(t, "import", "--db", db, "--subject", "run-1", "--aux-inputs", aux, steps)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 steps for run-1 (expanded)")
	assert.Contains(t, out, "Auxiliary: 1 inputs, 0 outputs")
}

func TestImport_JSON(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "snap.db")
	steps := writeJSON(t, dir, "steps.json", []ir.StepRecord{testutil.FanOut("scatter", 3)})

	out, err := runCLI(t, "--format", "json", "import", "--db", db, "--subject", "run-2", "--collapsed", steps)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ImportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-2", resp.Data.Subject)
	assert.True(t, resp.Data.Collapsed)
	assert.Equal(t, 1, resp.Data.StepCount)
	assert.NotEmpty(t, resp.Data.PayloadHash)
}

func TestImport_RejectsMalformedPayload(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "snap.db")
	orphan := testutil.File("x", "X")
	orphan.Source = []ir.StepRef{{Step: "missing"}}
	bad := testutil.Step("orphan", testutil.In(orphan), nil)
	steps := writeJSON(t, dir, "steps.json", []ir.StepRecord{bad})

	out, err := runCLI(t, "--format", "json", "import", "--db", db, "--subject", "run-1", steps)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, CodeInvalidPayload)
	assert.Contains(t, out, string(ir.MalformedUnknownStep))
}

func TestImport_RequiresDatabase(t *testing.T) {
	dir := t.TempDir()
	steps := writeJSON(t, dir, "steps.json", testutil.AlignmentPipeline())

	_, err := runCLI(t, "import", "--subject", "run-1", steps)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGraph_FromDatabaseText(t *testing.T) {
	db := importAlignment(t)

	out, err := runCLI(t, "graph", "--db", db, "--subject", "run-1", "--identity", "F2")
	require.NoError(t, err)
	assert.Contains(t, out, "run-1 [ready] 5 nodes, 4 edges")
	assert.Contains(t, out, "* terminal:bam")
	assert.Contains(t, out, "terminal:reads -> step:align")
	assert.Contains(t, out, "available: reference files, indirect files")
	assert.NotContains(t, out, "terminal:threads")
}

func TestGraph_ShowEverything(t *testing.T) {
	db := importAlignment(t)

	out, err := runCLI(t, "--format", "json", "graph", "--db", db, "--subject", "run-1",
		"--show-reference-files", "--show-parameters", "--show-indirect-files",
		"--row-spacing", "wide")
	require.NoError(t, err)

	resp := decodePanels(t, out)
	require.Len(t, resp.Data, 1)
	panel := resp.Data[0]
	assert.Equal(t, loader.StateReady, panel.State)
	assert.Equal(t, 2, panel.StepCount)
	assert.Len(t, panel.View.Nodes, 8)
	assert.Len(t, panel.View.Edges, 7)
	assert.Equal(t, ir.RowSpacingWide, panel.View.Hints.RowSpacing)
}

func TestGraph_UnknownSubjectHasNoProvenance(t *testing.T) {
	db := importAlignment(t)

	out, err := runCLI(t, "graph", "--db", db, "--subject", "nothing-here")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing-here [ready] no provenance")
}

func TestGraph_RecordsLoadsInHistory(t *testing.T) {
	db := importAlignment(t)

	_, err := runCLI(t, "graph", "--db", db, "--subject", "run-1", "--subject", "other")
	require.NoError(t, err)

	out, err := runCLI(t, "--format", "json", "history", "--db", db, "--subject", "run-1")
	require.NoError(t, err)

	var resp struct {
		Data []ir.LoadRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, ir.OutcomeReady, resp.Data[0].Outcome)
	assert.Equal(t, 8, resp.Data[0].NodeCount)
	assert.Greater(t, resp.Data[0].Seq, int64(1), "loader clock resumes after the import seq")

	out, err = runCLI(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, "empty")
}

func TestGraph_FromEndpoint(t *testing.T) {
	payload, err := json.Marshal(testutil.AlignmentPipeline())
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("subject") {
		case "run-1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(payload)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"search service unavailable"}`))
		}
	}))
	defer server.Close()

	out, err := runCLI(t, "graph", "--endpoint", server.URL, "--subject", "run-1", "--subject", "run-9")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 of 2 panels failed")

	assert.Contains(t, out, "run-1 [ready] 5 nodes, 4 edges")
	assert.Contains(t, out, "run-9 [failed] search service unavailable")
}

func TestGraph_IdentityNeedsSingleSubject(t *testing.T) {
	db := importAlignment(t)

	_, err := runCLI(t, "graph", "--db", db, "--subject", "a", "--subject", "b", "--identity", "F2")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGraph_RequiresSource(t *testing.T) {
	_, err := runCLI(t, "graph", "--subject", "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no step source")
}

func TestGraph_RejectsBadRowSpacing(t *testing.T) {
	db := importAlignment(t)

	_, err := runCLI(t, "graph", "--db", db, "--subject", "run-1", "--row-spacing", "diagonal")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGraph_ConfigSuppliesDefaults(t *testing.T) {
	db := importAlignment(t)
	cfgPath := filepath.Join(t.TempDir(), "provgraph.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"database: "+db+"\n"+
			"options:\n  show_parameters: true\n"+
			"hints:\n  column_spacing: 140\n"), 0o644))

	out, err := runCLI(t, "--config", cfgPath, "--format", "json", "graph", "--subject", "run-1")
	require.NoError(t, err)

	panel := decodePanels(t, out).Data[0]
	assert.Len(t, panel.View.Nodes, 6, "parameter terminal kept")
	assert.Equal(t, 140, panel.View.Hints.ColumnSpacing)
	assert.Equal(t, ir.RowSpacingCompact, panel.View.Hints.RowSpacing)

	out, err = runCLI(t, "--config", cfgPath, "--format", "json", "graph", "--subject", "run-1", "--show-parameters=false")
	require.NoError(t, err)
	assert.Len(t, decodePanels(t, out).Data[0].View.Nodes, 5, "flag overrides config")
}

func TestHistory_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "snap.db")

	out, err := runCLI(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No loads recorded")
}
