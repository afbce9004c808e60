package decision

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aegisflow/trustplane/pkg/audit"
)

var hashPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Deterministic error codes for emission failures.
const (
	ErrDecisionInvalid          = "ERR_DECISION_INVALID"
	ErrContractNoDecisionEvents = "ERR_CONTRACT_NO_DECISION_EVENTS"
)

// ContractViolation reports a completed run that emitted zero decision
// events. Fatal, not retryable.
type ContractViolation struct {
	ExecutionRef string `json:"execution_ref"`
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("%s: run %s emitted zero decision events", ErrContractNoDecisionEvents, e.ExecutionRef)
}

// InvalidEventError carries the validation errors for a rejected event.
type InvalidEventError struct {
	Errors []string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDecisionInvalid, strings.Join(e.Errors, "; "))
}

// ValidationResult is the outcome of validating an event.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// EmissionContext counts emissions for one execution. It is an explicit
// per-run object threaded through the call chain, safe for concurrent
// increment.
type EmissionContext struct {
	executionRef string
	emitted      atomic.Int64
}

// NewEmissionContext creates a counter scoped to one execution.
func NewEmissionContext(executionRef string) *EmissionContext {
	return &EmissionContext{executionRef: executionRef}
}

// Count returns the number of events emitted in this run.
func (ec *EmissionContext) Count() int64 {
	return ec.emitted.Load()
}

// ExecutionRef returns the execution this context belongs to.
func (ec *EmissionContext) ExecutionRef() string {
	return ec.executionRef
}

// CreateParams are the caller-supplied fields of a decision event.
// Identity fields are resolved by the factory, never by the caller.
type CreateParams struct {
	EventType    string
	ExecutionRef string
	DurationMs   int64
	Confidence   float64
	InputsHash   string
	Signals      []Signal
	EvidenceRefs []EvidenceRef
	Constraints  []ConstraintApplied
}

// Factory builds, validates and emits decision events.
type Factory struct {
	identity *IdentityState
	log      audit.Logger
	store    Store
	clock    func() time.Time

	// totalEmitted is a process-wide counter kept for metrics only;
	// contract enforcement uses the per-run EmissionContext.
	totalEmitted atomic.Int64
}

// NewFactory creates a factory bound to the given identity state.
func NewFactory(identity *IdentityState) *Factory {
	if identity == nil {
		identity = NewUninitialized()
	}
	return &Factory{
		identity: identity,
		log:      audit.Nop(),
		clock:    time.Now,
	}
}

// WithAuditLogger attaches an audit sink for emission records.
func (f *Factory) WithAuditLogger(l audit.Logger) *Factory {
	if l != nil {
		f.log = l
	}
	return f
}

// WithStore attaches a best-effort persistence collaborator.
func (f *Factory) WithStore(s Store) *Factory {
	f.store = s
	return f
}

// WithClock overrides the clock for deterministic testing.
func (f *Factory) WithClock(clock func() time.Time) *Factory {
	f.clock = clock
	return f
}

// Create builds an event, resolving agent identity from the factory's
// identity state. Uninitialized identity yields "unknown" placeholders,
// which will not pass Validate.
func (f *Factory) Create(p CreateParams) *Event {
	id, _ := f.identity.Resolve()

	e := &Event{
		EventID:            uuid.New().String(),
		SourceAgent:        id.SourceAgent,
		Domain:             id.Domain,
		Phase:              id.Phase,
		Layer:              id.Layer,
		EventType:          p.EventType,
		ExecutionRef:       p.ExecutionRef,
		Timestamp:          f.clock().UTC(),
		DurationMs:         p.DurationMs,
		Confidence:         p.Confidence,
		InputsHash:         p.InputsHash,
		Signals:            p.Signals,
		EvidenceRefs:       p.EvidenceRefs,
		ConstraintsApplied: p.Constraints,
	}
	if e.Signals == nil {
		e.Signals = make([]Signal, 0)
	}
	if e.EvidenceRefs == nil {
		e.EvidenceRefs = make([]EvidenceRef, 0)
	}
	if e.ConstraintsApplied == nil {
		e.ConstraintsApplied = make([]ConstraintApplied, 0)
	}
	return e
}

// Validate checks an event against the decision-event contract.
func (f *Factory) Validate(e *Event) ValidationResult {
	var errs []string

	if e == nil {
		return ValidationResult{Valid: false, Errors: []string{"event is nil"}}
	}

	for _, field := range []struct{ name, value string }{
		{"source_agent", e.SourceAgent},
		{"domain", e.Domain},
		{"phase", e.Phase},
		{"layer", e.Layer},
	} {
		if field.value == "" || field.value == unknownPlaceholder {
			errs = append(errs, fmt.Sprintf("identity field %s is unresolved", field.name))
		}
	}

	if e.EventType == "" {
		errs = append(errs, "event_type is required")
	}
	if e.ExecutionRef == "" {
		errs = append(errs, "execution_ref is required")
	}
	if !hashPattern.MatchString(e.InputsHash) {
		errs = append(errs, "inputs_hash must be a 64-char lowercase hex SHA-256 digest")
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		errs = append(errs, "confidence must be within [0,1]")
	}
	if e.Signals == nil {
		errs = append(errs, "signals must be an array")
	}
	if e.EvidenceRefs == nil {
		errs = append(errs, "evidence_refs must be an array")
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Emit validates and records an event. Invalid events are rejected with
// a typed error. Persistence is best-effort: a store failure is logged
// as a persistence-error signal and never fails the emission.
func (f *Factory) Emit(ctx context.Context, ec *EmissionContext, e *Event) error {
	if ec == nil {
		return fmt.Errorf("emission context is required")
	}

	result := f.Validate(e)
	if !result.Valid {
		return &InvalidEventError{Errors: result.Errors}
	}

	_ = f.log.Record(ctx, audit.EventEmission, "decision_emitted", e.ExecutionRef, map[string]any{
		"event_id":   e.EventID,
		"event_type": e.EventType,
		"signals":    len(e.Signals),
		"confidence": e.Confidence,
	})

	ec.emitted.Add(1)
	f.totalEmitted.Add(1)

	if f.store != nil {
		if res, err := f.store.PersistDecisionEvent(ctx, e); err != nil || (res != nil && !res.Success) {
			detail := ""
			if err != nil {
				detail = err.Error()
			} else if res != nil {
				detail = res.Err
			}
			_ = f.log.Record(ctx, audit.EventSystem, "persistence_error", e.ExecutionRef, map[string]any{
				"event_id": e.EventID,
				"error":    detail,
			})
		}
	}

	return nil
}

// AssertEmitted enforces the end-of-run contract: at least one decision
// event per execution. Called at the end of every agent run.
func (f *Factory) AssertEmitted(ec *EmissionContext) error {
	if ec == nil || ec.Count() == 0 {
		ref := ""
		if ec != nil {
			ref = ec.executionRef
		}
		return &ContractViolation{ExecutionRef: ref}
	}
	return nil
}

// TotalEmitted returns the process-wide emission count.
func (f *Factory) TotalEmitted() int64 {
	return f.totalEmitted.Load()
}
