package gateway

import (
	"context"
	"fmt"

	"github.com/aegisflow/trustplane/pkg/token"
)

// Error code for a call arriving without execution context.
const ErrMissingExecutionContext = "ERR_MISSING_EXECUTION_CONTEXT"

// ContextError is a typed execution-context failure.
type ContextError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Context is the mandatory governance context on every gateway call.
// Both ids are supplied by the orchestrating core.
type Context struct {
	ExecutionID  string             `json:"execution_id"`
	ParentSpanID string             `json:"parent_span_id"`
	Caller       *token.CallerToken `json:"caller"`
}

// Validate checks that the context carries the required ids and a caller.
func (c *Context) Validate() error {
	if c == nil {
		return &ContextError{Code: ErrMissingExecutionContext, Message: "gateway context is required"}
	}
	if c.ExecutionID == "" {
		return &ContextError{Code: ErrMissingExecutionContext, Message: "execution_id is required"}
	}
	if c.ParentSpanID == "" {
		return &ContextError{Code: ErrMissingExecutionContext, Message: "parent_span_id is required"}
	}
	if c.Caller == nil {
		return &ContextError{Code: ErrMissingExecutionContext, Message: "caller token is required"}
	}
	return nil
}

// callerKey scopes the caller token to one delegated call. The token is
// placed on the call context just before engine delegation and released
// when the call returns; it never lives in a shared global.
type callerKey struct{}

func withCaller(ctx context.Context, t *token.CallerToken) context.Context {
	return context.WithValue(ctx, callerKey{}, t)
}

// CallerFromContext returns the caller token attached to a delegated
// scan call, if any. Scan engines use this to attribute work.
func CallerFromContext(ctx context.Context) (*token.CallerToken, bool) {
	t, ok := ctx.Value(callerKey{}).(*token.CallerToken)
	return t, ok
}
