// Package graph turns validated step records into renderable provenance
// graphs and derives filtered, highlighted views of them.
//
// Everything here is synchronous, pure and CPU-only:
//
//   - Build: steps + identifier map → ungrouped or grouped DAG
//   - Filters: DropParameters, DropIndirect, DropReference and
//     DropAllRunsExpansion, each (graph) → graph, only ever removing nodes
//     and edges (or collapsing them, for the last)
//   - Matches/Highlight: the current-context matcher
//   - Derive: pre-filter flags + filters + highlight set → View
//
// # Node identity
//
// Step nodes are "step:<step id>", terminal nodes "terminal:<terminal id>"
// (a terminal id shared between one step's output and another's input is a
// single node), and group nodes carry a content hash of their owning step,
// direction, type and in-path flag. No id depends on build order or
// randomness, so rebuilding unchanged steps yields identical id sets and the
// renderer may diff across rebuilds.
package graph
