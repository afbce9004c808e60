// Package decision builds and validates standardized decision events.
//
// A decision event is a signal record, never a conclusion: it carries
// evidence references and a content hash, not raw content or verdicts.
// A run that emits zero decision events is a contract violation.
package decision

import "time"

// Signal is one detection signal inside an event.
type Signal struct {
	SignalType  string   `json:"signal_type"`
	Category    string   `json:"category"`
	Severity    string   `json:"severity"`
	Confidence  float64  `json:"confidence"`
	Count       int      `json:"count"`
	EvidenceIDs []string `json:"evidence_ids"`
}

// EvidenceRef points to the basis for a signal without raw sensitive
// content.
type EvidenceRef struct {
	EvidenceType string  `json:"evidence_type"`
	SourceID     string  `json:"source_id"`
	Position     *int    `json:"position,omitempty"`
	Confidence   float64 `json:"confidence"`
}

// ConstraintApplied records which policy rules shaped this event.
type ConstraintApplied struct {
	PolicyID string   `json:"policy_id"`
	RuleIDs  []string `json:"rule_ids"`
}

// Event is a standardized, evidence-backed detection signal.
type Event struct {
	EventID string `json:"event_id"`

	// Identity — resolved from process-scoped state set at startup.
	SourceAgent string `json:"source_agent"`
	Domain      string `json:"domain"`
	Phase       string `json:"phase"`
	Layer       string `json:"layer"`

	EventType    string    `json:"event_type"`
	ExecutionRef string    `json:"execution_ref"`
	Timestamp    time.Time `json:"timestamp"`
	DurationMs   int64     `json:"duration_ms"`
	Confidence   float64   `json:"confidence"`

	// InputsHash is the SHA-256 digest of the canonicalized inputs,
	// never the raw content.
	InputsHash string `json:"inputs_hash"`

	Signals            []Signal            `json:"signals"`
	EvidenceRefs       []EvidenceRef       `json:"evidence_refs"`
	ConstraintsApplied []ConstraintApplied `json:"constraints_applied"`
}
