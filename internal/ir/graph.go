package ir

import "slices"

// NodeKind is the variant tag of a graph node.
type NodeKind string

const (
	NodeStep        NodeKind = "step"
	NodeInput       NodeKind = "input"
	NodeOutput      NodeKind = "output"
	NodeInputGroup  NodeKind = "input-group"
	NodeOutputGroup NodeKind = "output-group"
)

// IsGroup reports whether the kind is a collapsed aggregate.
func (k NodeKind) IsGroup() bool {
	return k == NodeInputGroup || k == NodeOutputGroup
}

// IsTerminal reports whether the kind wraps a single terminal.
func (k NodeKind) IsTerminal() bool {
	return k == NodeInput || k == NodeOutput
}

// Node is one renderable vertex of a provenance graph.
type Node struct {
	ID   string   `json:"id"`
	Kind NodeKind `json:"kind"`
	Name string   `json:"name"`

	// Type is the terminal type tag. Empty for step nodes.
	Type string `json:"type,omitempty"`

	// StepID is the wrapped step for step nodes, the first step touching
	// the terminal for terminal nodes, and the owning step for groups.
	StepID string `json:"step_id,omitempty"`

	// TerminalID is the backing terminal id. Empty for step and group nodes.
	TerminalID string `json:"terminal_id,omitempty"`

	InPath  bool      `json:"in_path"`
	RunData *Resolved `json:"run_data,omitempty"`

	// Count and Members describe group nodes.
	Count   int      `json:"count,omitempty"`
	Members []string `json:"members,omitempty"`
}

// Edge is an ordered pair of node ids.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is a built provenance DAG.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	// Grouped is true once structurally-equivalent terminals were collapsed.
	Grouped bool `json:"grouped"`
}

// EmptyGraph returns a graph with non-nil, empty node and edge slices.
func EmptyGraph() Graph {
	return Graph{Nodes: []Node{}, Edges: []Edge{}}
}

// Node returns the node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodeIDs returns the sorted node id set.
func (g Graph) NodeIDs() []string {
	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	slices.Sort(ids)
	return ids
}

// EdgeKeys returns the sorted edge set as "source->target" strings.
func (g Graph) EdgeKeys() []string {
	keys := make([]string, len(g.Edges))
	for i, e := range g.Edges {
		keys[i] = e.Source + "->" + e.Target
	}
	slices.Sort(keys)
	return keys
}
