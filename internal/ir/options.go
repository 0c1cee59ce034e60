package ir

// ViewOptions are the caller-owned view toggles.
//
// CollapseSimilarRuns changes what is requested from the backend, not only
// what is displayed.
type ViewOptions struct {
	ShowReferenceFiles  bool `json:"show_reference_files" yaml:"show_reference_files"`
	ShowParameters      bool `json:"show_parameters" yaml:"show_parameters"`
	ShowIndirectFiles   bool `json:"show_indirect_files" yaml:"show_indirect_files"`
	CollapseSimilarRuns bool `json:"collapse_similar_runs" yaml:"collapse_similar_runs"`
}

// Row spacing styles understood by the renderer.
const (
	RowSpacingCompact = "compact"
	RowSpacingWide    = "wide"
	RowSpacingStacked = "stacked"
)

// RenderHints are layout preferences handed to the external renderer.
type RenderHints struct {
	RowSpacing    string `json:"row_spacing" yaml:"row_spacing"`
	ColumnSpacing int    `json:"column_spacing" yaml:"column_spacing"`
}

// DefaultRenderHints returns the hints used when the caller sets none.
func DefaultRenderHints() RenderHints {
	return RenderHints{RowSpacing: RowSpacingCompact, ColumnSpacing: 100}
}

// ValidRowSpacing reports whether s names a known row spacing style.
func ValidRowSpacing(s string) bool {
	switch s {
	case RowSpacingCompact, RowSpacingWide, RowSpacingStacked:
		return true
	}
	return false
}
