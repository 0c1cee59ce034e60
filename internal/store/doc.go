// Package store provides SQLite-backed storage for provenance snapshots.
//
// The store is a local stand-in for the step-retrieval endpoint and keeps
// an append-only log of load attempts:
//   - Step payloads: raw step-record lists per (subject, granularity)
//   - Aux records: the subject's embedded run collections
//   - Load log: one row per settled load attempt
//
// Store implements loader.Fetcher and loader.Recorder.
//
// # Ordering
//
// All ordering uses the logical seq column, never timestamps. Reads are
// ORDER BY seq ASC, id ASC so results are identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
