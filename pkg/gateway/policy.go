package gateway

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Error code for an authorization refusal.
const ErrPolicyDenied = "ERR_POLICY_DENIED"

// PolicyDeniedError reports an authorization refusal with an optional
// reason.
type PolicyDeniedError struct {
	Operation string `json:"operation"`
	Reason    string `json:"reason,omitempty"`
}

func (e *PolicyDeniedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: operation %q denied: %s", ErrPolicyDenied, e.Operation, e.Reason)
	}
	return fmt.Sprintf("%s: operation %q denied", ErrPolicyDenied, e.Operation)
}

// Policy is the pluggable authorization rule evaluated per gateway
// operation. Implementations return a PolicyDeniedError to refuse.
type Policy interface {
	Authorize(ctx context.Context, gc *Context, operation string) error
}

// AllowAllPolicy is the default policy: every authenticated caller may
// perform every operation.
type AllowAllPolicy struct{}

func (AllowAllPolicy) Authorize(context.Context, *Context, string) error {
	return nil
}

// CELPolicy authorizes operations with a compiled CEL expression over
// caller_id, operation and execution_id. A non-true result denies.
type CELPolicy struct {
	expr    string
	program cel.Program
}

// NewCELPolicy compiles expr once; evaluation reuses the program.
func NewCELPolicy(expr string) (*CELPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("caller_id", cel.StringType),
		cel.Variable("operation", cel.StringType),
		cel.Variable("execution_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile: %w", issues.Err())
	}
	program, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000), // hard limit on evaluation complexity
	)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}

	return &CELPolicy{expr: expr, program: program}, nil
}

func (p *CELPolicy) Authorize(_ context.Context, gc *Context, operation string) error {
	callerID := ""
	executionID := ""
	if gc != nil {
		executionID = gc.ExecutionID
		if gc.Caller != nil {
			callerID = gc.Caller.CallerID
		}
	}

	out, _, err := p.program.Eval(map[string]any{
		"caller_id":    callerID,
		"operation":    operation,
		"execution_id": executionID,
	})
	if err != nil {
		// Fail closed on evaluation errors.
		return &PolicyDeniedError{Operation: operation, Reason: fmt.Sprintf("policy evaluation failed: %v", err)}
	}

	allowed, ok := out.Value().(bool)
	if !ok || !allowed {
		return &PolicyDeniedError{Operation: operation, Reason: "policy expression evaluated false"}
	}
	return nil
}
