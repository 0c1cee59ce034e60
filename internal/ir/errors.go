package ir

import (
	"errors"
	"fmt"
	"strings"
)

// MalformedCode categorizes backend-contract violations in step records.
type MalformedCode string

const (
	// MalformedDuplicateStep indicates two steps share an id.
	MalformedDuplicateStep MalformedCode = "DUPLICATE_STEP"

	// MalformedDuplicateTerminal indicates two terminals of one step and
	// direction share an id.
	MalformedDuplicateTerminal MalformedCode = "DUPLICATE_TERMINAL"

	// MalformedUnknownStep indicates a terminal references a step id that is
	// not part of the response.
	MalformedUnknownStep MalformedCode = "UNKNOWN_STEP"

	// MalformedDirection indicates a source ref on an output or a target ref
	// on an input.
	MalformedDirection MalformedCode = "INCONSISTENT_DIRECTION"

	// MalformedMissingID indicates a step, terminal or embedded object
	// without an identifier.
	MalformedMissingID MalformedCode = "MISSING_ID"

	// MalformedCycle indicates artifact flow that loops back into a step.
	MalformedCycle MalformedCode = "CYCLE"
)

// Problem is one contract violation found in a step payload.
type Problem struct {
	Code       MalformedCode `json:"code"`
	StepID     string        `json:"step_id,omitempty"`
	TerminalID string        `json:"terminal_id,omitempty"`
	Message    string        `json:"message"`
}

func (p Problem) String() string {
	switch {
	case p.StepID != "" && p.TerminalID != "":
		return fmt.Sprintf("%s: %s (step=%s, terminal=%s)", p.Code, p.Message, p.StepID, p.TerminalID)
	case p.StepID != "":
		return fmt.Sprintf("%s: %s (step=%s)", p.Code, p.Message, p.StepID)
	default:
		return fmt.Sprintf("%s: %s", p.Code, p.Message)
	}
}

// MalformedStepGraphError reports step records that violate the backend
// contract. Graph construction aborts rather than rendering a partial graph.
type MalformedStepGraphError struct {
	Problems []Problem
}

// Error implements the error interface.
func (e *MalformedStepGraphError) Error() string {
	if len(e.Problems) == 1 {
		return "malformed step graph: " + e.Problems[0].String()
	}
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return fmt.Sprintf("malformed step graph: %d problems: %s", len(e.Problems), strings.Join(parts, "; "))
}

// NewMalformed creates a MalformedStepGraphError holding a single problem.
func NewMalformed(code MalformedCode, stepID, terminalID, message string) *MalformedStepGraphError {
	return &MalformedStepGraphError{Problems: []Problem{{
		Code:       code,
		StepID:     stepID,
		TerminalID: terminalID,
		Message:    message,
	}}}
}

// IsMalformed returns true if err is or wraps a MalformedStepGraphError.
func IsMalformed(err error) bool {
	var me *MalformedStepGraphError
	return errors.As(err, &me)
}

// AsMalformed extracts a MalformedStepGraphError from err.
func AsMalformed(err error) (*MalformedStepGraphError, bool) {
	var me *MalformedStepGraphError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}
