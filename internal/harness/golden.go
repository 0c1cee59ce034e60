package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/provgraph/internal/ir"
)

// ViewSnapshot captures what a scenario hands the renderer, plus the load
// log. Graph hashes are left out so snapshots stay reviewable by eye.
type ViewSnapshot struct {
	ScenarioName string
	Result       *Result
}

// toCanonicalMap converts a ViewSnapshot to a map[string]any for canonical
// JSON serialization.
func (s *ViewSnapshot) toCanonicalMap() map[string]any {
	v := s.Result.View

	nodes := make([]any, len(v.Nodes))
	for i, n := range v.Nodes {
		m := map[string]any{
			"id":   n.ID,
			"kind": string(n.Kind),
			"name": n.Name,
		}
		if n.Count > 0 {
			m["count"] = n.Count
		}
		nodes[i] = m
	}

	edges := make([]any, len(v.Edges))
	for i, e := range v.Edges {
		edges[i] = e.Source + "->" + e.Target
	}

	loads := make([]any, len(s.Result.Loads))
	for i, rec := range s.Result.Loads {
		m := map[string]any{
			"request_token": rec.RequestToken,
			"subject_id":    rec.SubjectID,
			"outcome":       string(rec.Outcome),
			"node_count":    rec.NodeCount,
			"edge_count":    rec.EdgeCount,
			"seq":           rec.Seq,
		}
		if rec.Collapsed {
			m["collapsed"] = true
		}
		if rec.Message != "" {
			m["message"] = rec.Message
		}
		loads[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"state":         string(s.Result.State),
		"nodes":         nodes,
		"edges":         edges,
		"highlighted":   v.Highlighted,
		"flags": map[string]any{
			"has_reference_files": v.HasReferenceFiles,
			"has_indirect_files":  v.HasIndirectFiles,
		},
		"loads": loads,
	}
}

// Marshal returns the canonical JSON of the snapshot.
func (s *ViewSnapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the view snapshot against
// a golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against its golden
// file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := ViewSnapshot{ScenarioName: scenarioName, Result: result}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
