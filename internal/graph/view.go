package graph

import (
	"slices"

	"github.com/roach88/provgraph/internal/ir"
)

// View is the payload handed to the external renderer.
type View struct {
	Nodes []ir.Node `json:"nodes"`
	Edges []ir.Edge `json:"edges"`

	// Highlighted holds the sorted ids of nodes matching the page subject.
	Highlighted []string `json:"highlighted"`

	// HasReferenceFiles and HasIndirectFiles are computed before filtering,
	// so toggling a filter never disables its own checkbox.
	HasReferenceFiles bool `json:"has_reference_files"`
	HasIndirectFiles  bool `json:"has_indirect_files"`

	Grouped bool           `json:"grouped"`
	Hints   ir.RenderHints `json:"hints"`
}

// Derive applies the view options to g and stamps the highlight set.
func Derive(g ir.Graph, opts ir.ViewOptions, identity string, hints ir.RenderHints) View {
	filtered := Apply(g, Filters(opts, identity)...)
	return View{
		Nodes:             filtered.Nodes,
		Edges:             filtered.Edges,
		Highlighted:       Highlight(filtered, identity),
		HasReferenceFiles: HasReferenceFiles(g),
		HasIndirectFiles:  HasIndirectFiles(g),
		Grouped:           filtered.Grouped,
		Hints:             hints,
	}
}

// EmptyView returns the view of a subject without provenance.
func EmptyView(hints ir.RenderHints) View {
	return View{
		Nodes:       []ir.Node{},
		Edges:       []ir.Edge{},
		Highlighted: []string{},
		Hints:       hints,
	}
}

// IsHighlighted reports whether the node id is flagged for highlighting.
func (v View) IsHighlighted(id string) bool {
	_, found := slices.BinarySearch(v.Highlighted, id)
	return found
}

// Graph returns the filtered graph behind the view.
func (v View) Graph() ir.Graph {
	return ir.Graph{Nodes: v.Nodes, Edges: v.Edges, Grouped: v.Grouped}
}
