// Package ingest turns raw step-retrieval payloads into validated step
// records.
//
// Ingestion runs in three stages:
//  1. Shape: the payload is unified with an embedded CUE schema (schema.cue).
//     Violations are reported as *SchemaError with the CUE position.
//  2. Decode: encoding/json into ir.StepRecord values.
//  3. Contract: Validate checks identifiers, ref directions and step
//     references. Violations are reported as *ir.MalformedStepGraphError.
//
// Downstream packages never probe untyped fields; everything that reaches
// the graph builder has passed all three stages.
package ingest
