package span

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// record is the arena-resident form of a span. Children are tracked in
// the tracker's index, not on the record, so appends never walk an
// ownership chain.
type record struct {
	spanID       string
	spanType     Type
	parentSpanID string
	executionID  string
	name         string
	attributes   map[string]string
	startTime    time.Time
	endTime      *time.Time
	status       Status
	durationMs   *int64
	artifacts    []Artifact
}

// Tracker owns the span arena for one or more executions. Each
// execution id produces its own repo span owned exclusively by the call
// that created it; the tracker itself is safe for concurrent append.
type Tracker struct {
	mu       sync.Mutex
	clock    func() time.Time
	spans    map[string]*record
	children map[string][]string // parent span id -> child span ids, in creation order
	repoByID map[string]string   // execution id -> repo span id
}

// NewTracker creates an empty span arena.
func NewTracker() *Tracker {
	return &Tracker{
		clock:    time.Now,
		spans:    make(map[string]*record),
		children: make(map[string][]string),
		repoByID: make(map[string]string),
	}
}

// WithClock overrides the clock for deterministic testing.
func (t *Tracker) WithClock(clock func() time.Time) *Tracker {
	t.clock = clock
	return t
}

// StartRepoSpan creates the single repo-level span for an execution.
// Both ids come from the orchestrating core and must be non-empty.
func (t *Tracker) StartRepoSpan(executionID, parentSpanID, name string) (string, error) {
	if executionID == "" || parentSpanID == "" {
		return "", &TrackerError{Code: ErrSpanMissingContext, Message: "execution_id and parent_span_id are required"}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.repoByID[executionID]; ok {
		return "", &TrackerError{
			Code:    ErrSpanWrongType,
			SpanID:  existing,
			Message: "execution already has a repo span",
		}
	}

	id := uuid.New().String()
	t.spans[id] = &record{
		spanID:       id,
		spanType:     TypeRepo,
		parentSpanID: parentSpanID,
		executionID:  executionID,
		name:         name,
		attributes:   make(map[string]string),
		startTime:    t.clock().UTC(),
		status:       StatusRunning,
		artifacts:    make([]Artifact, 0),
	}
	t.repoByID[executionID] = id
	return id, nil
}

// StartAgentSpan appends a new agent-type child under a running repo span.
// The child's parent_span_id is the repo span id.
func (t *Tracker) StartAgentSpan(repoSpanID, name, agentKey string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.spans[repoSpanID]
	if !ok {
		return "", &TrackerError{Code: ErrSpanNotFound, SpanID: repoSpanID, Message: "unknown repo span"}
	}
	if parent.spanType != TypeRepo {
		return "", &TrackerError{Code: ErrSpanWrongType, SpanID: repoSpanID, Message: "agent spans attach to repo spans only"}
	}
	if parent.status != StatusRunning {
		return "", &TrackerError{Code: ErrSpanTerminal, SpanID: repoSpanID, Message: "repo span is terminal"}
	}

	id := uuid.New().String()
	attrs := make(map[string]string)
	if agentKey != "" {
		attrs["agent_key"] = agentKey
	}
	t.spans[id] = &record{
		spanID:       id,
		spanType:     TypeAgent,
		parentSpanID: repoSpanID,
		executionID:  parent.executionID,
		name:         name,
		attributes:   attrs,
		startTime:    t.clock().UTC(),
		status:       StatusRunning,
		artifacts:    make([]Artifact, 0),
	}
	t.children[repoSpanID] = append(t.children[repoSpanID], id)
	return id, nil
}

// AttachArtifact appends a timestamped artifact to a running agent span.
// Attachment to core or repo spans is rejected.
func (t *Tracker) AttachArtifact(spanID string, at ArtifactType, data any) (*Artifact, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.spans[spanID]
	if !ok {
		return nil, &TrackerError{Code: ErrSpanNotFound, SpanID: spanID, Message: "unknown span"}
	}
	if rec.spanType != TypeAgent {
		return nil, &TrackerError{Code: ErrArtifactNonAgentSpan, SpanID: spanID, Message: "artifacts attach to agent spans only"}
	}
	if rec.status != StatusRunning {
		return nil, &TrackerError{Code: ErrSpanTerminal, SpanID: spanID, Message: "span is terminal"}
	}

	artifact := Artifact{
		ArtifactID: uuid.New().String(),
		Type:       at,
		Data:       data,
		Timestamp:  t.clock().UTC(),
	}
	rec.artifacts = append(rec.artifacts, artifact)
	return &artifact, nil
}

// CompleteSpan transitions a running span to completed.
func (t *Tracker) CompleteSpan(spanID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finishLocked(spanID, StatusCompleted, "")
}

// FailSpan transitions a running span to error and appends a metric
// artifact carrying the failure reason. Failures are never silent.
func (t *Tracker) FailSpan(spanID, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.spans[spanID]
	if !ok {
		return &TrackerError{Code: ErrSpanNotFound, SpanID: spanID, Message: "unknown span"}
	}
	if rec.status != StatusRunning {
		return &TrackerError{Code: ErrSpanTerminal, SpanID: spanID, Message: "span is terminal"}
	}

	rec.artifacts = append(rec.artifacts, Artifact{
		ArtifactID: uuid.New().String(),
		Type:       ArtifactMetric,
		Data:       map[string]any{"failure_reason": reason},
		Timestamp:  t.clock().UTC(),
	})
	return t.finishLocked(spanID, StatusError, reason)
}

func (t *Tracker) finishLocked(spanID string, status Status, _ string) error {
	rec, ok := t.spans[spanID]
	if !ok {
		return &TrackerError{Code: ErrSpanNotFound, SpanID: spanID, Message: "unknown span"}
	}
	if rec.status != StatusRunning {
		return &TrackerError{Code: ErrSpanTerminal, SpanID: spanID, Message: "span is terminal"}
	}

	end := t.clock().UTC()
	if end.Before(rec.startTime) {
		end = rec.startTime
	}
	dur := end.Sub(rec.startTime).Milliseconds()
	rec.endTime = &end
	rec.durationMs = &dur
	rec.status = status
	return nil
}

// FinalizeRepoSpan closes out an execution. A repo span with zero agent
// children is an invariant violation — the execution produced no agent
// work and no output is returned. A still-running repo span is
// auto-completed.
func (t *Tracker) FinalizeRepoSpan(repoSpanID string) (*Output, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.spans[repoSpanID]
	if !ok {
		return nil, &TrackerError{Code: ErrSpanNotFound, SpanID: repoSpanID, Message: "unknown repo span"}
	}
	if rec.spanType != TypeRepo {
		return nil, &TrackerError{Code: ErrSpanWrongType, SpanID: repoSpanID, Message: "not a repo span"}
	}

	if len(t.children[repoSpanID]) == 0 {
		return nil, &InvariantViolated{ExecutionID: rec.executionID, RepoSpanID: repoSpanID}
	}

	if rec.status == StatusRunning {
		if err := t.finishLocked(repoSpanID, StatusCompleted, ""); err != nil {
			return nil, err
		}
	}

	return &Output{
		ExecutionID: rec.executionID,
		RepoSpan:    t.treeLocked(repoSpanID),
	}, nil
}

// Tree materializes the nested form of the subtree rooted at spanID.
// Returns nil for an unknown span.
func (t *Tracker) Tree(spanID string) *Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.treeLocked(spanID)
}

func (t *Tracker) treeLocked(spanID string) *Span {
	rec, ok := t.spans[spanID]
	if !ok {
		return nil
	}

	node := &Span{
		SpanID:       rec.spanID,
		Type:         rec.spanType,
		ParentSpanID: rec.parentSpanID,
		ExecutionID:  rec.executionID,
		Name:         rec.name,
		StartTime:    rec.startTime,
		EndTime:      rec.endTime,
		Status:       rec.status,
		DurationMs:   rec.durationMs,
		Artifacts:    append([]Artifact(nil), rec.artifacts...),
		Children:     make([]*Span, 0, len(t.children[spanID])),
	}
	if len(rec.attributes) > 0 {
		node.Attributes = make(map[string]string, len(rec.attributes))
		for k, v := range rec.attributes {
			node.Attributes[k] = v
		}
	}
	for _, childID := range t.children[spanID] {
		if child := t.treeLocked(childID); child != nil {
			node.Children = append(node.Children, child)
		}
	}
	return node
}

// Marshal returns the canonical JSON form of an output tree.
func Marshal(out *Output) ([]byte, error) {
	return json.Marshal(out)
}
