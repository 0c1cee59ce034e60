package ingest

import (
	"fmt"

	"github.com/roach88/provgraph/internal/ir"
)

// Validate checks step records against the backend contract.
// Returns all problems found (does not fail-fast) in one
// *ir.MalformedStepGraphError, or nil.
func Validate(steps []ir.StepRecord) error {
	var problems []ir.Problem
	add := func(code ir.MalformedCode, stepID, terminalID, format string, args ...any) {
		problems = append(problems, ir.Problem{
			Code:       code,
			StepID:     stepID,
			TerminalID: terminalID,
			Message:    fmt.Sprintf(format, args...),
		})
	}

	known := make(map[string]bool, len(steps))
	for i, step := range steps {
		if step.ID == "" {
			add(ir.MalformedMissingID, "", "", "step at index %d has no id", i)
			continue
		}
		if known[step.ID] {
			add(ir.MalformedDuplicateStep, step.ID, "", "duplicate step id")
			continue
		}
		known[step.ID] = true
	}

	for _, step := range steps {
		if step.ID == "" {
			continue
		}
		for _, dir := range []ir.Direction{ir.DirectionInput, ir.DirectionOutput} {
			seen := make(map[string]bool)
			for i, term := range step.Terminals(dir) {
				if term.ID == "" {
					add(ir.MalformedMissingID, step.ID, "", "%s at index %d has no id", dir, i)
					continue
				}
				if seen[term.ID] {
					add(ir.MalformedDuplicateTerminal, step.ID, term.ID, "duplicate %s id", dir)
				}
				seen[term.ID] = true

				if term.RunData != nil && term.RunData.ID == "" {
					add(ir.MalformedMissingID, step.ID, term.ID, "run data without @id")
				}

				switch {
				case dir == ir.DirectionInput && len(term.Target) > 0:
					add(ir.MalformedDirection, step.ID, term.ID, "input declares target steps")
				case dir == ir.DirectionOutput && len(term.Source) > 0:
					add(ir.MalformedDirection, step.ID, term.ID, "output declares source steps")
				}

				for _, ref := range append(append([]ir.StepRef{}, term.Source...), term.Target...) {
					if !known[ref.Step] {
						add(ir.MalformedUnknownStep, step.ID, term.ID, "references unknown step %q", ref.Step)
					}
				}
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &ir.MalformedStepGraphError{Problems: problems}
}
