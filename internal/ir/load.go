package ir

// LoadOutcome is how a load attempt settled.
type LoadOutcome string

const (
	OutcomeReady  LoadOutcome = "ready"
	OutcomeEmpty  LoadOutcome = "empty"
	OutcomeFailed LoadOutcome = "failed"
	OutcomeStale  LoadOutcome = "stale"
)

// LoadRecord describes one settled load attempt.
type LoadRecord struct {
	RequestToken string      `json:"request_token"`
	SubjectID    string      `json:"subject_id"`
	Collapsed    bool        `json:"collapsed"`
	Outcome      LoadOutcome `json:"outcome"`

	// Message is the failure message. Empty unless Outcome is failed.
	Message string `json:"message,omitempty"`

	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
	GraphHash string `json:"graph_hash,omitempty"`
	Seq       int64  `json:"seq"`
}
