package ir

// Terminal type tags as shipped by the step-retrieval endpoint.
const (
	TypeFile          = "file"
	TypeParameter     = "parameter"
	TypeReferenceFile = "reference file"
)

// Direction is the role a terminal plays for its step.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// StepRecord represents one backend-supplied computational step.
type StepRecord struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Inputs  []Terminal `json:"inputs,omitempty"`
	Outputs []Terminal `json:"outputs,omitempty"`
}

// Terminals returns the step's terminals for one direction.
func (s StepRecord) Terminals(dir Direction) []Terminal {
	if dir == DirectionInput {
		return s.Inputs
	}
	return s.Outputs
}

// Terminal represents one input or output slot of a step.
//
// The terminal ID is the edge-forming key: the same ID on one step's output
// and another step's input denotes the same artifact.
type Terminal struct {
	ID      string       `json:"id"`
	Name    string       `json:"name,omitempty"`
	Type    string       `json:"type"`
	InPath  bool         `json:"in_path"`
	RunData *EmbeddedRef `json:"run_data,omitempty"`

	// Source lists steps producing this artifact. Only legal on inputs.
	Source []StepRef `json:"source,omitempty"`

	// Target lists steps consuming this artifact. Only legal on outputs.
	Target []StepRef `json:"target,omitempty"`
}

// StepRef names a step (and optionally its terminal) on the other end of
// an artifact flow.
type StepRef struct {
	Step string `json:"step"`
	Name string `json:"name,omitempty"`
}

// EmbeddedRef is an embedded object as the backend ships it.
// Any field but ID may be missing. Objects carrying Value or ValueType are
// scalars; everything else is a file.
type EmbeddedRef struct {
	ID           string  `json:"@id" yaml:"@id"`
	Accession    string  `json:"accession,omitempty" yaml:"accession,omitempty"`
	DisplayTitle string  `json:"display_title,omitempty" yaml:"display_title,omitempty"`
	FileFormat   string  `json:"file_format,omitempty" yaml:"file_format,omitempty"`
	Status       string  `json:"status,omitempty" yaml:"status,omitempty"`
	Value        *string `json:"value,omitempty" yaml:"value,omitempty"`
	ValueType    string  `json:"value_type,omitempty" yaml:"value_type,omitempty"`
}

// IsValue reports whether the object describes a scalar rather than a file.
func (e EmbeddedRef) IsValue() bool {
	return e.Value != nil || e.ValueType != ""
}

// ResolvedKind distinguishes resolved files from resolved scalar values.
type ResolvedKind string

const (
	KindFile  ResolvedKind = "file"
	KindValue ResolvedKind = "value"
)

// Resolved is the metadata attached to terminal nodes: a ResolvedFile or a
// ResolvedValue depending on Kind. One Resolved is shared by every node
// using the same embedded identifier.
type Resolved struct {
	ID         string       `json:"@id"`
	Kind       ResolvedKind `json:"kind"`
	Accession  string       `json:"accession,omitempty"`
	Title      string       `json:"title,omitempty"`
	FileFormat string       `json:"file_format,omitempty"`
	Status     string       `json:"status,omitempty"`
	Value      string       `json:"value,omitempty"`
	ValueType  string       `json:"value_type,omitempty"`
}

// Identity returns the identity used for current-context matching:
// the accession when known, otherwise the embedded identifier.
func (r *Resolved) Identity() string {
	if r == nil {
		return ""
	}
	if r.Accession != "" {
		return r.Accession
	}
	return r.ID
}

// IdentifierMap maps embedded-object identifiers to resolved metadata.
type IdentifierMap map[string]*Resolved
