// Package testutil provides deterministic helpers and step-record fixtures
// shared by package tests and the conformance harness.
package testutil

import (
	"fmt"

	"github.com/roach88/provgraph/internal/ir"
)

// FileRef returns an embedded file object for accession.
func FileRef(accession string) *ir.EmbeddedRef {
	return &ir.EmbeddedRef{
		ID:        "/files/" + accession + "/",
		Accession: accession,
	}
}

// File returns a file terminal carrying accession as run data.
// An empty accession yields a terminal without run data.
func File(id, accession string) ir.Terminal {
	t := ir.Terminal{ID: id, Type: ir.TypeFile, InPath: true}
	if accession != "" {
		t.RunData = FileRef(accession)
	}
	return t
}

// IndirectFile returns a file terminal off the direct path.
func IndirectFile(id, accession string) ir.Terminal {
	t := File(id, accession)
	t.InPath = false
	return t
}

// Reference returns a reference-file terminal. Reference files are
// auxiliary context and never on the direct path.
func Reference(id, accession string) ir.Terminal {
	t := File(id, accession)
	t.Type = ir.TypeReferenceFile
	t.InPath = false
	return t
}

// Param returns a parameter terminal holding value.
func Param(id, value string) ir.Terminal {
	v := value
	return ir.Terminal{
		ID:     id,
		Type:   ir.TypeParameter,
		InPath: true,
		RunData: &ir.EmbeddedRef{
			ID:        "/values/" + id + "/",
			Value:     &v,
			ValueType: "string",
		},
	}
}

// Step returns a step record.
func Step(id string, inputs []ir.Terminal, outputs []ir.Terminal) ir.StepRecord {
	return ir.StepRecord{ID: id, Name: id, Inputs: inputs, Outputs: outputs}
}

// In is shorthand for a terminal list.
func In(ts ...ir.Terminal) []ir.Terminal { return ts }

// Out is shorthand for a terminal list.
func Out(ts ...ir.Terminal) []ir.Terminal { return ts }

// AlignmentPipeline returns a two-step pipeline:
//
//	reads(F1) ─┐
//	genome(REF)┼─► align ─► bam(F2) ─► dedup ─► dedup_bam(F3)
//	threads   ─┘                          ▲
//	                            log(LOG) ◄┘ (indirect output of dedup)
func AlignmentPipeline() []ir.StepRecord {
	return []ir.StepRecord{
		Step("align",
			In(File("reads", "F1"), Reference("genome", "REF"), Param("threads", "8")),
			Out(File("bam", "F2")),
		),
		Step("dedup",
			In(File("bam", "F2")),
			Out(File("dedup_bam", "F3"), IndirectFile("log", "LOG")),
		),
	}
}

// FanOut returns one step with n file outputs named out-1..out-n, each
// carrying accession O<i>.
func FanOut(stepID string, n int) ir.StepRecord {
	outs := make([]ir.Terminal, n)
	for i := range outs {
		outs[i] = File(fmt.Sprintf("out-%d", i+1), fmt.Sprintf("O%d", i+1))
	}
	return Step(stepID, In(File("src", "SRC")), outs)
}

// RunDataRefs collects every embedded object referenced by steps.
func RunDataRefs(steps []ir.StepRecord) []ir.EmbeddedRef {
	var refs []ir.EmbeddedRef
	for _, s := range steps {
		for _, t := range append(append([]ir.Terminal{}, s.Inputs...), s.Outputs...) {
			if t.RunData != nil {
				refs = append(refs, *t.RunData)
			}
		}
	}
	return refs
}
