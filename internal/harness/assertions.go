package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/provgraph/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string          // Assertion type for categorization
	Expected string          // Human-readable expected outcome
	Actual   string          // Human-readable actual outcome
	Nodes    []string        // View node ids for debugging context
	Loads    []ir.LoadRecord // Load log for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Nodes) > 0 {
		fmt.Fprintf(&buf, "\nView nodes:\n")
		for _, id := range e.Nodes {
			fmt.Fprintf(&buf, "  %s\n", id)
		}
	}
	if len(e.Loads) > 0 {
		fmt.Fprintf(&buf, "\nLoad log:\n")
		for i, rec := range e.Loads {
			fmt.Fprintf(&buf, "  [%d] %s %s collapsed=%t %s\n", i+1, rec.RequestToken, rec.SubjectID, rec.Collapsed, rec.Outcome)
		}
	}

	return buf.String()
}

func (r *Result) fail(typ, expected, actual string) error {
	return &AssertionError{
		Type:     typ,
		Expected: expected,
		Actual:   actual,
		Nodes:    r.View.Graph().NodeIDs(),
		Loads:    r.Loads,
	}
}

func assertCount(r *Result, a Assertion, actual int) error {
	if actual != a.Count {
		return r.fail(a.Type, fmt.Sprintf("%d", a.Count), fmt.Sprintf("%d", actual))
	}
	return nil
}

func assertNode(r *Result, a Assertion, wantPresent bool) error {
	_, present := r.View.Graph().Node(a.Node)
	if present == wantPresent {
		return nil
	}
	if wantPresent {
		return r.fail(a.Type, "node "+a.Node+" in view", "not found")
	}
	return r.fail(a.Type, "node "+a.Node+" filtered out", "present")
}

func assertHighlighted(r *Result, a Assertion) error {
	want := slices.Clone(a.Nodes)
	slices.Sort(want)
	if !slices.Equal(want, r.View.Highlighted) {
		return r.fail(a.Type, fmt.Sprintf("%v", want), fmt.Sprintf("%v", r.View.Highlighted))
	}
	return nil
}

func assertFlags(r *Result, a Assertion) error {
	if a.HasReferenceFiles != nil && *a.HasReferenceFiles != r.View.HasReferenceFiles {
		return r.fail(a.Type,
			fmt.Sprintf("has_reference_files=%t", *a.HasReferenceFiles),
			fmt.Sprintf("has_reference_files=%t", r.View.HasReferenceFiles))
	}
	if a.HasIndirectFiles != nil && *a.HasIndirectFiles != r.View.HasIndirectFiles {
		return r.fail(a.Type,
			fmt.Sprintf("has_indirect_files=%t", *a.HasIndirectFiles),
			fmt.Sprintf("has_indirect_files=%t", r.View.HasIndirectFiles))
	}
	return nil
}

func assertLoadOutcomes(r *Result, a Assertion) error {
	actual := make([]string, len(r.Loads))
	for i, rec := range r.Loads {
		actual[i] = string(rec.Outcome)
	}
	if !slices.Equal(a.Outcomes, actual) {
		return r.fail(a.Type, fmt.Sprintf("%v", a.Outcomes), fmt.Sprintf("%v", actual))
	}
	return nil
}

func groupCount(r *Result) int {
	n := 0
	for _, node := range r.View.Nodes {
		if node.Kind.IsGroup() {
			n++
		}
	}
	return n
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertState:
			if string(result.State) != a.State {
				err = result.fail(a.Type, a.State, string(result.State))
			}
		case AssertNodeCount:
			err = assertCount(result, a, len(result.View.Nodes))
		case AssertEdgeCount:
			err = assertCount(result, a, len(result.View.Edges))
		case AssertGroupCount:
			err = assertCount(result, a, groupCount(result))
		case AssertNodePresent:
			err = assertNode(result, a, true)
		case AssertNodeAbsent:
			err = assertNode(result, a, false)
		case AssertHighlighted:
			err = assertHighlighted(result, a)
		case AssertFlags:
			err = assertFlags(result, a)
		case AssertLoadOutcomes:
			err = assertLoadOutcomes(result, a)
		case AssertFailureMessage:
			if !strings.Contains(result.Message, a.Contains) {
				err = result.fail(a.Type, "message containing "+a.Contains, result.Message)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
