// Package ir provides the typed data model for provenance graphs.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Step and terminal records are validated at ingestion, never probed
//   - Nodes, edges and graphs are values; transformations return new slices
//   - Node ids are derived from record ids only, so rebuilds are stable
//   - All JSON tags use snake_case (embedded object ids keep the backend's "@id")
package ir
