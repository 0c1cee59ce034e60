package graph

import (
	"github.com/roach88/provgraph/internal/ir"
)

// Filter is one stage of the view pipeline. Filters return a new graph and
// never add nodes or edges.
type Filter func(ir.Graph) ir.Graph

// DropParameters removes parameter nodes and every edge touching them.
func DropParameters(g ir.Graph) ir.Graph {
	return dropWhere(g, func(n ir.Node) bool {
		return n.Type == ir.TypeParameter
	})
}

// DropIndirect removes nodes whose backing terminal lies off the direct
// input → output path, and every edge touching them.
func DropIndirect(g ir.Graph) ir.Graph {
	return dropWhere(g, isIndirect)
}

// DropReference removes reference-file nodes and every edge touching them.
func DropReference(g ir.Graph) ir.Graph {
	return dropWhere(g, func(n ir.Node) bool {
		return n.Type == ir.TypeReferenceFile
	})
}

// DropAllRunsExpansion re-derives the grouped view from an ungrouped graph
// without a refetch. It is a no-op on graphs the builder already grouped.
func DropAllRunsExpansion(identity string) Filter {
	return func(g ir.Graph) ir.Graph {
		if g.Grouped {
			return g
		}
		return groupSimilar(g, identity)
	}
}

// Filters selects the pipeline stages implied by opts. The expansion stage,
// when present, runs first so grouping sees the unfiltered topology; the drop
// stages commute.
func Filters(opts ir.ViewOptions, identity string) []Filter {
	var fs []Filter
	if opts.CollapseSimilarRuns {
		fs = append(fs, DropAllRunsExpansion(identity))
	}
	if !opts.ShowParameters {
		fs = append(fs, DropParameters)
	}
	if !opts.ShowIndirectFiles {
		fs = append(fs, DropIndirect)
	}
	if !opts.ShowReferenceFiles {
		fs = append(fs, DropReference)
	}
	return fs
}

// Apply runs filters in order.
func Apply(g ir.Graph, filters ...Filter) ir.Graph {
	for _, f := range filters {
		g = f(g)
	}
	return g
}

// HasReferenceFiles reports whether any reference-file node exists.
func HasReferenceFiles(g ir.Graph) bool {
	for _, n := range g.Nodes {
		if n.Type == ir.TypeReferenceFile {
			return true
		}
	}
	return false
}

// HasIndirectFiles reports whether any indirect node exists.
func HasIndirectFiles(g ir.Graph) bool {
	for _, n := range g.Nodes {
		if isIndirect(n) {
			return true
		}
	}
	return false
}

func isIndirect(n ir.Node) bool {
	return n.Kind != ir.NodeStep && !n.InPath
}

// dropWhere returns a copy of g without the nodes matching drop and without
// any edge touching them.
func dropWhere(g ir.Graph, drop func(ir.Node) bool) ir.Graph {
	removed := make(map[string]bool)
	nodes := make([]ir.Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if drop(n) {
			removed[n.ID] = true
			continue
		}
		nodes = append(nodes, n)
	}

	edges := make([]ir.Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if removed[e.Source] || removed[e.Target] {
			continue
		}
		edges = append(edges, e)
	}

	return ir.Graph{Nodes: nodes, Edges: edges, Grouped: g.Grouped}
}
