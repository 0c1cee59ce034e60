// Package resolver builds the identifier → metadata table attached to
// terminal nodes.
//
// Sources are the run data embedded in step records and any auxiliary run
// collections the page subject already carries. Embedded objects may be
// partial; records are merged field by field in observation order, so a
// later, more complete record fills in or overwrites what an earlier, sparser
// one left out. A later empty field never erases an earlier value.
package resolver

import (
	"github.com/roach88/provgraph/internal/ir"
)

// Resolve returns one entry per distinct embedded identifier observed in
// steps (inputs before outputs, in step order) followed by the auxiliary
// collections in argument order. No entry is synthesized for identifiers
// never observed. The result is freshly allocated on every call.
func Resolve(steps []ir.StepRecord, aux ...[]ir.EmbeddedRef) ir.IdentifierMap {
	m := make(ir.IdentifierMap)

	for _, step := range steps {
		for _, term := range step.Inputs {
			observe(m, term.RunData)
		}
		for _, term := range step.Outputs {
			observe(m, term.RunData)
		}
	}

	for _, collection := range aux {
		for i := range collection {
			observe(m, &collection[i])
		}
	}

	return m
}

func observe(m ir.IdentifierMap, ref *ir.EmbeddedRef) {
	if ref == nil || ref.ID == "" {
		return
	}

	r, ok := m[ref.ID]
	if !ok {
		r = &ir.Resolved{ID: ref.ID, Kind: ir.KindFile}
		m[ref.ID] = r
	}
	merge(r, ref)
}

// merge copies every non-empty field of ref onto r.
func merge(r *ir.Resolved, ref *ir.EmbeddedRef) {
	if ref.IsValue() {
		r.Kind = ir.KindValue
	}
	if ref.Accession != "" {
		r.Accession = ref.Accession
	}
	if ref.DisplayTitle != "" {
		r.Title = ref.DisplayTitle
	}
	if ref.FileFormat != "" {
		r.FileFormat = ref.FileFormat
	}
	if ref.Status != "" {
		r.Status = ref.Status
	}
	if ref.Value != nil {
		r.Value = *ref.Value
	}
	if ref.ValueType != "" {
		r.ValueType = ref.ValueType
	}
}

// Completeness counts the populated descriptive fields of r. Used to report
// how much of a partially-embedded object could be resolved.
func Completeness(r *ir.Resolved) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, f := range []string{r.Accession, r.Title, r.FileFormat, r.Status, r.Value, r.ValueType} {
		if f != "" {
			n++
		}
	}
	return n
}
