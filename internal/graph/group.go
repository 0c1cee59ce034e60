package graph

import (
	"fmt"

	"github.com/roach88/provgraph/internal/ir"
)

// groupKey identifies structurally-equivalent terminals of one step.
// Members must agree on in-path so DropIndirect stays exact on groups.
type groupKey struct {
	dir    ir.Direction
	typ    string
	inPath bool
}

type bucket struct {
	key     groupKey
	members []string // node ids in edge order
}

// groupSimilar collapses, per step and direction, every set of two or more
// terminals sharing type and in-path into one group node.
//
// Only terminals attached to exactly one edge (pure sources feeding this
// step, or pure sinks it produces) are candidates, so grouping never changes
// which steps are connected. Terminals matching identity stay individual.
func groupSimilar(g ir.Graph, identity string) ir.Graph {
	byID := make(map[string]ir.Node, len(g.Nodes))
	degree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}
	for _, e := range g.Edges {
		degree[e.Source]++
		degree[e.Target]++
	}

	candidate := func(id string) bool {
		n, ok := byID[id]
		return ok && n.Kind.IsTerminal() && degree[id] == 1 && !Matches(n, identity)
	}

	memberOf := make(map[string]string) // member node id -> group node id
	groups := make(map[string]ir.Node)  // group node id -> node
	groupEdge := make(map[string]ir.Edge)

	for _, step := range g.Nodes {
		if step.Kind != ir.NodeStep {
			continue
		}

		var buckets []*bucket
		find := func(k groupKey) *bucket {
			for _, b := range buckets {
				if b.key == k {
					return b
				}
			}
			b := &bucket{key: k}
			buckets = append(buckets, b)
			return b
		}

		for _, e := range g.Edges {
			var termID string
			var dir ir.Direction
			switch {
			case e.Target == step.ID && candidate(e.Source):
				termID, dir = e.Source, ir.DirectionInput
			case e.Source == step.ID && candidate(e.Target):
				termID, dir = e.Target, ir.DirectionOutput
			default:
				continue
			}
			n := byID[termID]
			b := find(groupKey{dir: dir, typ: n.Type, inPath: n.InPath})
			b.members = append(b.members, termID)
		}

		for _, b := range buckets {
			if len(b.members) < 2 {
				continue
			}
			gn := newGroupNode(step.StepID, b, byID)
			groups[gn.ID] = gn
			if b.key.dir == ir.DirectionInput {
				groupEdge[gn.ID] = ir.Edge{Source: gn.ID, Target: step.ID}
			} else {
				groupEdge[gn.ID] = ir.Edge{Source: step.ID, Target: gn.ID}
			}
			for _, m := range b.members {
				memberOf[m] = gn.ID
			}
		}
	}

	if len(groups) == 0 {
		return ir.Graph{Nodes: g.Nodes, Edges: g.Edges, Grouped: true}
	}

	// Each group takes the position of its first member, in both the node
	// and the edge sequence.
	nodes := make([]ir.Node, 0, len(g.Nodes))
	placed := make(map[string]bool)
	for _, n := range g.Nodes {
		gid, ok := memberOf[n.ID]
		if !ok {
			nodes = append(nodes, n)
			continue
		}
		if !placed[gid] {
			placed[gid] = true
			nodes = append(nodes, groups[gid])
		}
	}

	edges := make([]ir.Edge, 0, len(g.Edges))
	placedEdge := make(map[string]bool)
	for _, e := range g.Edges {
		gid, ok := memberOf[e.Source]
		if !ok {
			gid, ok = memberOf[e.Target]
		}
		if !ok {
			edges = append(edges, e)
			continue
		}
		if !placedEdge[gid] {
			placedEdge[gid] = true
			edges = append(edges, groupEdge[gid])
		}
	}

	return ir.Graph{Nodes: nodes, Edges: edges, Grouped: true}
}

func newGroupNode(stepID string, b *bucket, byID map[string]ir.Node) ir.Node {
	kind := ir.NodeOutputGroup
	if b.key.dir == ir.DirectionInput {
		kind = ir.NodeInputGroup
	}

	members := make([]string, len(b.members))
	for i, id := range b.members {
		members[i] = byID[id].TerminalID
	}

	return ir.Node{
		ID:      ir.GroupNodeID(stepID, b.key.dir, b.key.typ, b.key.inPath),
		Kind:    kind,
		Name:    fmt.Sprintf("%d %s %ss", len(members), b.key.typ, b.key.dir),
		Type:    b.key.typ,
		StepID:  stepID,
		InPath:  b.key.inPath,
		Count:   len(members),
		Members: members,
	}
}
