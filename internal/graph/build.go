package graph

import (
	"fmt"

	"github.com/roach88/provgraph/internal/ingest"
	"github.com/roach88/provgraph/internal/ir"
)

// BuildOptions controls graph construction.
type BuildOptions struct {
	// GroupSimilar collapses structurally-equivalent terminals of one step
	// into group nodes.
	GroupSimilar bool

	// ContextIdentity is the page subject's identity. Terminals matching it
	// are never collapsed into a group.
	ContextIdentity string
}

// StepNodeID returns the node id of a step.
func StepNodeID(stepID string) string {
	return "step:" + stepID
}

// TerminalNodeID returns the node id of a terminal.
func TerminalNodeID(terminalID string) string {
	return "terminal:" + terminalID
}

// Build converts an ordered sequence of step records into a DAG.
//
// Each step yields one step node. Each terminal yields one terminal node,
// reused by terminal id across steps, with an edge input → step or
// step → output. Source refs on inputs add producer → terminal edges and
// target refs on outputs add terminal → consumer edges. Run data is attached
// from resolved when the embedded identifier is present there.
//
// Build fails with *ir.MalformedStepGraphError when the steps violate the
// backend contract or the artifact flow is cyclic; no partial graph is
// returned.
func Build(steps []ir.StepRecord, resolved ir.IdentifierMap, opts BuildOptions) (ir.Graph, error) {
	if err := ingest.Validate(steps); err != nil {
		return ir.Graph{}, err
	}

	b := newBuilder()

	for _, step := range steps {
		name := step.Name
		if name == "" {
			name = step.ID
		}
		b.addNode(ir.Node{
			ID:     StepNodeID(step.ID),
			Kind:   ir.NodeStep,
			Name:   name,
			StepID: step.ID,
			InPath: true,
		})
	}

	for _, step := range steps {
		stepNode := StepNodeID(step.ID)

		for _, term := range step.Inputs {
			id := b.terminal(step.ID, term, ir.NodeInput, resolved)
			b.addEdge(id, stepNode)
			for _, ref := range term.Source {
				b.addEdge(StepNodeID(ref.Step), id)
			}
		}

		for _, term := range step.Outputs {
			id := b.terminal(step.ID, term, ir.NodeOutput, resolved)
			b.addEdge(stepNode, id)
			for _, ref := range term.Target {
				b.addEdge(id, StepNodeID(ref.Step))
			}
		}
	}

	g := ir.Graph{Nodes: b.nodes, Edges: b.edges}

	if err := detectCycles(g); err != nil {
		return ir.Graph{}, err
	}
	if err := Verify(g); err != nil {
		return ir.Graph{}, fmt.Errorf("build: %w", err)
	}

	if opts.GroupSimilar {
		g = groupSimilar(g, opts.ContextIdentity)
	}
	return g, nil
}

// builder accumulates nodes and de-duplicated edges in emission order.
type builder struct {
	nodes []ir.Node
	edges []ir.Edge
	index map[string]int
	seen  map[ir.Edge]bool
}

func newBuilder() *builder {
	return &builder{
		nodes: []ir.Node{},
		edges: []ir.Edge{},
		index: make(map[string]int),
		seen:  make(map[ir.Edge]bool),
	}
}

func (b *builder) addNode(n ir.Node) {
	b.index[n.ID] = len(b.nodes)
	b.nodes = append(b.nodes, n)
}

func (b *builder) addEdge(source, target string) {
	e := ir.Edge{Source: source, Target: target}
	if b.seen[e] {
		return
	}
	b.seen[e] = true
	b.edges = append(b.edges, e)
}

// terminal emits the node for term, or merges term into the node already
// emitted for the same terminal id, and returns the node id.
func (b *builder) terminal(stepID string, term ir.Terminal, kind ir.NodeKind, resolved ir.IdentifierMap) string {
	id := TerminalNodeID(term.ID)

	var runData *ir.Resolved
	if term.RunData != nil {
		runData = resolved[term.RunData.ID]
	}

	if i, ok := b.index[id]; ok {
		n := &b.nodes[i]
		n.InPath = n.InPath || term.InPath
		if n.RunData == nil {
			n.RunData = runData
		}
		return id
	}

	name := term.Name
	if name == "" {
		name = term.ID
	}
	b.addNode(ir.Node{
		ID:         id,
		Kind:       kind,
		Name:       name,
		Type:       term.Type,
		StepID:     stepID,
		TerminalID: term.ID,
		InPath:     term.InPath,
		RunData:    runData,
	})
	return id
}

// detectCycles checks for artifact flow looping back into a step using DFS.
func detectCycles(g ir.Graph) error {
	out := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		out[e.Source] = append(out[e.Source], e.Target)
	}

	visiting := make(map[string]bool)
	visited := make(map[string]bool)

	var visit func(id string) error
	visit = func(id string) error {
		visiting[id] = true
		for _, next := range out[id] {
			if visiting[next] {
				return ir.NewMalformed(ir.MalformedCycle, "", "", fmt.Sprintf("cycle detected involving %q", next))
			}
			if !visited[next] {
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		delete(visiting, id)
		visited[id] = true
		return nil
	}

	for _, n := range g.Nodes {
		if !visited[n.ID] {
			if err := visit(n.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Verify checks the renderer contract: node ids are unique and every edge
// endpoint is a node of g.
func Verify(g ir.Graph) error {
	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if ids[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		ids[n.ID] = true
	}
	for _, e := range g.Edges {
		if !ids[e.Source] {
			return fmt.Errorf("edge %s->%s: unknown source", e.Source, e.Target)
		}
		if !ids[e.Target] {
			return fmt.Errorf("edge %s->%s: unknown target", e.Source, e.Target)
		}
	}
	return nil
}
