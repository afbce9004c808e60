package decision

import "context"

// PersistResult reports the outcome of a persistence attempt.
type PersistResult struct {
	Success bool   `json:"success"`
	EventID string `json:"event_id,omitempty"`
	Err     string `json:"error,omitempty"`
}

// Store is the persistence collaborator for decision events.
// Persistence is best-effort and non-blocking for the governed path: a
// failed write must never fail the detection response.
type Store interface {
	PersistDecisionEvent(ctx context.Context, e *Event) (*PersistResult, error)
	GetDecisionEvent(ctx context.Context, executionRef string) (*Event, error)
}
