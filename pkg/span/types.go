// Package span tracks the Core→Repo→Agent execution tree for one
// external invocation.
//
// Spans live in an arena keyed by span id with explicit parent/child
// index maps; the arena's lifetime equals one execution. The nested
// tree form is materialized only on output.
//
// Invariants:
//   - exactly one repo-level span per entering execution
//   - a repo span's children are all agent-type
//   - spans and artifacts are append-only
//   - finalizing a repo span with zero children is an error
package span

import "time"

// Type is the position of a span in the execution hierarchy.
type Type string

const (
	TypeCore  Type = "core"
	TypeRepo  Type = "repo"
	TypeAgent Type = "agent"
)

// Status is the lifecycle state of a span. Transitions are one-way:
// running → completed or running → error, terminal.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// ArtifactType classifies a span artifact.
type ArtifactType string

const (
	ArtifactDetectionSignal ArtifactType = "detection_signal"
	ArtifactEvidenceRef     ArtifactType = "evidence_ref"
	ArtifactDecisionEvent   ArtifactType = "decision_event"
	ArtifactMetric          ArtifactType = "metric"
)

// Artifact is an immutable, timestamped record appended to an agent span.
type Artifact struct {
	ArtifactID string       `json:"artifact_id"`
	Type       ArtifactType `json:"artifact_type"`
	Data       any          `json:"data"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Span is the materialized tree form of one execution node.
type Span struct {
	SpanID       string            `json:"span_id"`
	Type         Type              `json:"span_type"`
	ParentSpanID string            `json:"parent_span_id"`
	ExecutionID  string            `json:"execution_id"`
	Name         string            `json:"name"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      *time.Time        `json:"end_time"`
	Status       Status            `json:"status"`
	DurationMs   *int64            `json:"duration_ms"`
	Artifacts    []Artifact        `json:"artifacts"`
	Children     []*Span           `json:"children"`
}

// Output is the finalized result of one execution tree.
type Output struct {
	ExecutionID string `json:"execution_id"`
	RepoSpan    *Span  `json:"repo_span"`
}
