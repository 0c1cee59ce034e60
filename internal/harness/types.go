package harness

import (
	"github.com/roach88/provgraph/internal/graph"
	"github.com/roach88/provgraph/internal/ir"
	"github.com/roach88/provgraph/internal/loader"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every flow expectation and assertion holds.
	Pass bool `json:"pass"`

	// State is the loader state after the flow.
	State loader.State `json:"state"`

	// Message is the failure message while Failed.
	Message string `json:"message,omitempty"`

	// View is the renderer payload derived after the flow.
	View graph.View `json:"view"`

	// Loads is the load log in seq order.
	Loads []ir.LoadRecord `json:"loads"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		State:  loader.StateIdle,
		Loads:  []ir.LoadRecord{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
