package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/provgraph/internal/ir"
)

// ErrorPayload is the backend's error body: a JSON object with a
// human-readable message.
type ErrorPayload struct {
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// ParseErrorPayload reports whether body is an error payload and returns
// its message.
func ParseErrorPayload(body []byte) (string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}
	var ep ErrorPayload
	if err := json.Unmarshal(trimmed, &ep); err != nil {
		return "", false
	}
	if ep.Message == "" {
		return "", false
	}
	return ep.Message, true
}

// Decode validates and decodes a step-retrieval payload.
//
// An empty list decodes to an empty, non-nil slice: absence of provenance is
// not an error. Shape violations return *SchemaError; contract violations
// return *ir.MalformedStepGraphError.
func Decode(payload []byte) ([]ir.StepRecord, error) {
	if err := checkShape(defSteps, "steps.json", payload); err != nil {
		return nil, err
	}

	var steps []ir.StepRecord
	if err := json.Unmarshal(payload, &steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	if steps == nil {
		steps = []ir.StepRecord{}
	}

	if err := Validate(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// DecodeAux validates and decodes an auxiliary run collection: a list of
// possibly partial embedded objects.
func DecodeAux(payload []byte) ([]ir.EmbeddedRef, error) {
	if err := checkShape(defAux, "aux.json", payload); err != nil {
		return nil, err
	}

	var refs []ir.EmbeddedRef
	if err := json.Unmarshal(payload, &refs); err != nil {
		return nil, fmt.Errorf("decode aux collection: %w", err)
	}
	if refs == nil {
		refs = []ir.EmbeddedRef{}
	}
	return refs, nil
}
