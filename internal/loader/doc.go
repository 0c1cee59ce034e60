// Package loader owns asynchronous retrieval of step records for one
// provenance panel.
//
// A Loader is a small state machine: Idle → Loading → {Ready, Failed}.
// At most one retrieval is outstanding at a time; a load requested while
// Loading is rejected rather than queued, so responses fetched with two
// different collapse settings can never be mixed. A response whose subject
// is no longer current when it arrives is discarded.
//
// Graph building and filtering after a response are synchronous and pure;
// the fetch is the only suspension point.
package loader
