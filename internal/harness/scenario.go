package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/provgraph/internal/ingest"
	"github.com/roach88/provgraph/internal/ir"
	"github.com/roach88/provgraph/internal/loader"
)

// Scenario defines a conformance test scenario: the payloads the
// step-retrieval endpoint serves for one subject, a flow of loader
// actions, and assertions on the resulting view and load log.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Subject is the page subject loaded by default.
	Subject loader.Subject `yaml:"subject"`

	// Steps is the expanded step payload, inline as YAML.
	Steps any `yaml:"steps,omitempty"`

	// StepsFile is a JSON step payload, relative to the scenario file.
	// Mutually exclusive with Steps.
	StepsFile string `yaml:"steps_file,omitempty"`

	// CollapsedSteps is served when similar runs are collapsed. When
	// absent, the collapsed granularity has no provenance.
	CollapsedSteps any `yaml:"collapsed_steps,omitempty"`

	// FetchError makes every fetch fail with this transport message.
	FetchError string `yaml:"fetch_error,omitempty"`

	// Options are the view options used to derive the final view.
	Options ir.ViewOptions `yaml:"options,omitempty"`

	// Hints are passed through to the view. Defaults to compact rows.
	Hints *ir.RenderHints `yaml:"hints,omitempty"`

	// Flow lists loader actions. Defaults to a single load.
	Flow []FlowStep `yaml:"flow,omitempty"`

	// Assertions validate the final view, state and load log.
	Assertions []Assertion `yaml:"assertions"`

	// expanded and collapsed are the decoded payload bytes.
	expanded  []byte
	collapsed []byte
}

// FlowStep is one loader action.
type FlowStep struct {
	// Action is one of load, toggle, retry, navigate, release.
	Action string `yaml:"action"`

	// Subject overrides the scenario subject for load and navigate.
	Subject string `yaml:"subject,omitempty"`

	// Collapse is the granularity requested by load.
	Collapse bool `yaml:"collapse,omitempty"`

	// Hold keeps the fetch started by this step outstanding until a
	// release step.
	Hold bool `yaml:"hold,omitempty"`

	// Admitted is the expected admission result of load, toggle and retry.
	Admitted *bool `yaml:"admitted,omitempty"`
}

// Flow action constants.
const (
	ActionLoad     = "load"
	ActionToggle   = "toggle"
	ActionRetry    = "retry"
	ActionNavigate = "navigate"
	ActionRelease  = "release"
)

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type specifies the assertion type; see the Assert* constants.
	Type string `yaml:"type"`

	// Count is used by node_count, edge_count and group_count.
	Count int `yaml:"count,omitempty"`

	// Node is used by node_present and node_absent.
	Node string `yaml:"node,omitempty"`

	// Nodes is the exact sorted highlight set (highlighted).
	Nodes []string `yaml:"nodes,omitempty"`

	// State is the expected loader state (state).
	State string `yaml:"state,omitempty"`

	// HasReferenceFiles and HasIndirectFiles are checked by flags when set.
	HasReferenceFiles *bool `yaml:"has_reference_files,omitempty"`
	HasIndirectFiles  *bool `yaml:"has_indirect_files,omitempty"`

	// Outcomes is the expected load-log outcome sequence (load_outcomes).
	Outcomes []string `yaml:"outcomes,omitempty"`

	// Contains is a substring of the failure message (failure_message).
	Contains string `yaml:"contains,omitempty"`
}

// Assertion type constants.
const (
	AssertState          = "state"
	AssertNodeCount      = "node_count"
	AssertEdgeCount      = "edge_count"
	AssertNodePresent    = "node_present"
	AssertNodeAbsent     = "node_absent"
	AssertHighlighted    = "highlighted"
	AssertGroupCount     = "group_count"
	AssertFlags          = "flags"
	AssertLoadOutcomes   = "load_outcomes"
	AssertFailureMessage = "failure_message"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML. StepsFile is resolved relative to
// baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	if err := scenario.preparePayloads(baseDir); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// preparePayloads converts the YAML step payloads to the JSON the endpoint
// would serve. Payloads are not validated here: a scenario may describe a
// backend answering with malformed data.
func (s *Scenario) preparePayloads(baseDir string) error {
	var err error
	switch {
	case s.StepsFile != "":
		path := s.StepsFile
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		if s.expanded, err = os.ReadFile(path); err != nil {
			return fmt.Errorf("steps_file: %w", err)
		}
	case s.Steps != nil:
		if s.expanded, err = json.Marshal(s.Steps); err != nil {
			return fmt.Errorf("steps: %w", err)
		}
	default:
		s.expanded = []byte(`[]`)
	}

	if s.CollapsedSteps != nil {
		if s.collapsed, err = json.Marshal(s.CollapsedSteps); err != nil {
			return fmt.Errorf("collapsed_steps: %w", err)
		}
	} else {
		s.collapsed = []byte(`[]`)
	}
	return nil
}

// payload returns the bytes served for the given granularity.
func (s *Scenario) payload(collapse bool) []byte {
	if collapse {
		return s.collapsed
	}
	return s.expanded
}

// Payload returns the expanded step payload as the endpoint would serve it.
func (s *Scenario) Payload() []byte {
	return s.expanded
}

// DecodeSteps decodes the expanded payload, reporting schema and contract
// violations the way a load would.
func (s *Scenario) DecodeSteps() ([]ir.StepRecord, error) {
	return ingest.Decode(s.expanded)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Subject.ID == "" {
		return fmt.Errorf("subject.id is required")
	}

	if s.Steps != nil && s.StepsFile != "" {
		return fmt.Errorf("steps and steps_file are mutually exclusive")
	}

	if s.Hints != nil && !ir.ValidRowSpacing(s.Hints.RowSpacing) {
		return fmt.Errorf("hints.row_spacing: unknown style %q", s.Hints.RowSpacing)
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	held := false
	for i, step := range s.Flow {
		switch step.Action {
		case ActionLoad, ActionToggle, ActionRetry:
			if step.Hold {
				if held {
					return fmt.Errorf("flow[%d]: a fetch is already held", i)
				}
				held = true
			}
		case ActionNavigate:
			if step.Subject == "" {
				return fmt.Errorf("flow[%d]: subject is required for navigate", i)
			}
			if step.Hold {
				return fmt.Errorf("flow[%d]: hold is not valid for navigate", i)
			}
		case ActionRelease:
			if !held {
				return fmt.Errorf("flow[%d]: release without a held fetch", i)
			}
			held = false
		case "":
			return fmt.Errorf("flow[%d]: action is required", i)
		default:
			return fmt.Errorf("flow[%d]: unknown action %q", i, step.Action)
		}
	}
	if held {
		return fmt.Errorf("flow: held fetch is never released")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertState:
		switch loader.State(a.State) {
		case loader.StateIdle, loader.StateLoading, loader.StateReady, loader.StateFailed:
		default:
			return fmt.Errorf("assertions[%d]: unknown state %q", index, a.State)
		}
	case AssertNodeCount, AssertEdgeCount, AssertGroupCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertNodePresent, AssertNodeAbsent:
		if a.Node == "" {
			return fmt.Errorf("assertions[%d]: node is required for %s", index, a.Type)
		}
	case AssertHighlighted:
		// An empty list asserts that nothing is highlighted.
	case AssertFlags:
		if a.HasReferenceFiles == nil && a.HasIndirectFiles == nil {
			return fmt.Errorf("assertions[%d]: flags needs has_reference_files or has_indirect_files", index)
		}
	case AssertLoadOutcomes:
		if len(a.Outcomes) == 0 {
			return fmt.Errorf("assertions[%d]: outcomes list is required for load_outcomes", index)
		}
	case AssertFailureMessage:
		if a.Contains == "" {
			return fmt.Errorf("assertions[%d]: contains is required for failure_message", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
