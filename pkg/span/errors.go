package span

import "fmt"

// Deterministic error codes for span tracking violations.
const (
	ErrSpanMissingContext   = "ERR_SPAN_MISSING_CONTEXT"
	ErrSpanNotFound         = "ERR_SPAN_NOT_FOUND"
	ErrSpanWrongType        = "ERR_SPAN_WRONG_TYPE"
	ErrSpanTerminal         = "ERR_SPAN_TERMINAL"
	ErrArtifactNonAgentSpan = "ERR_ARTIFACT_NON_AGENT_SPAN"
	ErrExecutionNoAgentWork = "ERR_EXECUTION_NO_AGENT_WORK"
)

// TrackerError is a typed span tracking failure.
type TrackerError struct {
	Code    string `json:"code"`
	SpanID  string `json:"span_id,omitempty"`
	Message string `json:"message"`
}

func (e *TrackerError) Error() string {
	if e.SpanID != "" {
		return fmt.Sprintf("%s: span %s: %s", e.Code, e.SpanID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// InvariantViolated reports a repo span finalized with no agent work.
// Callers must treat it as an abort signal, not something to catch and
// continue.
type InvariantViolated struct {
	ExecutionID string `json:"execution_id"`
	RepoSpanID  string `json:"repo_span_id"`
}

func (e *InvariantViolated) Error() string {
	return fmt.Sprintf("%s: execution %s produced no agent-level work (repo span %s)",
		ErrExecutionNoAgentWork, e.ExecutionID, e.RepoSpanID)
}
