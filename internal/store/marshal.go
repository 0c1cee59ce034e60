package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/provgraph/internal/ir"
)

// marshalRef converts an embedded object to canonical JSON TEXT for storage.
// Empty fields are omitted so partial objects round-trip unchanged.
func marshalRef(ref ir.EmbeddedRef) (string, error) {
	m := map[string]any{"@id": ref.ID}
	put := func(key, val string) {
		if val != "" {
			m[key] = val
		}
	}
	put("accession", ref.Accession)
	put("display_title", ref.DisplayTitle)
	put("file_format", ref.FileFormat)
	put("status", ref.Status)
	put("value_type", ref.ValueType)
	if ref.Value != nil {
		m["value"] = *ref.Value
	}

	data, err := ir.MarshalCanonical(m)
	if err != nil {
		return "", fmt.Errorf("marshal ref %s: %w", ref.ID, err)
	}
	return string(data), nil
}

// unmarshalRef converts stored JSON TEXT back to an embedded object.
func unmarshalRef(s string) (ir.EmbeddedRef, error) {
	var ref ir.EmbeddedRef
	if err := json.Unmarshal([]byte(s), &ref); err != nil {
		return ir.EmbeddedRef{}, fmt.Errorf("unmarshal ref: %w", err)
	}
	return ref, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
