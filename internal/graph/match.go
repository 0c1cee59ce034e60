package graph

import (
	"slices"

	"github.com/roach88/provgraph/internal/ir"
)

// Matches reports whether n represents the page subject.
//
// Only input and output nodes qualify, and only when their resolved run
// data carries identity as accession or embedded id. Step, group and
// parameter nodes never match.
func Matches(n ir.Node, identity string) bool {
	if identity == "" || !n.Kind.IsTerminal() || n.Type == ir.TypeParameter || n.RunData == nil {
		return false
	}
	return n.RunData.Accession == identity || n.RunData.ID == identity
}

// Highlight returns the sorted ids of the nodes matching identity.
func Highlight(g ir.Graph, identity string) []string {
	ids := []string{}
	for _, n := range g.Nodes {
		if Matches(n, identity) {
			ids = append(ids, n.ID)
		}
	}
	slices.Sort(ids)
	return ids
}
