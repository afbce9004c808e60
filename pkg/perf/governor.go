// Package perf enforces per-execution resource ceilings: token spend,
// wall-clock latency, and external call count.
//
// Ceilings are fixed and conservative. Violations are fail-fast: the
// governor returns a typed boundary error the instant a ceiling is
// crossed and logs an agent_abort audit record. There is no retry path.
package perf

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aegisflow/trustplane/pkg/audit"
)

// Fixed ceilings for one governed execution.
const (
	MaxTokens      int64 = 800
	MaxLatencyMs   int64 = 1500
	MaxCallsPerRun int64 = 2
)

// Deterministic error codes for boundary violations.
const (
	ErrPerfMaxTokens      = "ERR_PERF_MAX_TOKENS"
	ErrPerfMaxLatencyMs   = "ERR_PERF_MAX_LATENCY_MS"
	ErrPerfMaxCallsPerRun = "ERR_PERF_MAX_CALLS_PER_RUN"
)

// BoundaryError is a typed ceiling violation. It carries the limit and
// the observed value so agents can report the breach precisely.
type BoundaryError struct {
	Code   string `json:"code"`
	Limit  int64  `json:"limit"`
	Actual int64  `json:"actual"`
}

func (e *BoundaryError) Error() string {
	return fmt.Sprintf("%s: limit=%d, actual=%d", e.Code, e.Limit, e.Actual)
}

// Snapshot is the point-in-time counter state for one execution.
// Counters are scoped to a single run and discarded at run end.
type Snapshot struct {
	StartTime  time.Time `json:"start_time"`
	TokenCount int64     `json:"token_count"`
	CallCount  int64     `json:"call_count"`
}

// Governor tracks resource consumption for one execution. Each
// concurrent worker owns its own governor; state is never shared across
// executions.
type Governor struct {
	mu           sync.Mutex
	executionRef string
	start        time.Time
	tokenCount   int64
	callCount    int64
	clock        func() time.Time
	log          audit.Logger
}

// NewGovernor creates a governor for one execution. The latency clock
// starts at construction.
func NewGovernor(executionRef string) *Governor {
	g := &Governor{
		executionRef: executionRef,
		clock:        time.Now,
		log:          audit.Nop(),
	}
	g.start = g.clock()
	return g
}

// WithClock overrides the clock for deterministic testing. The start
// time is re-anchored to the new clock.
func (g *Governor) WithClock(clock func() time.Time) *Governor {
	g.clock = clock
	g.start = clock()
	return g
}

// WithAuditLogger attaches an audit sink for abort records.
func (g *Governor) WithAuditLogger(l audit.Logger) *Governor {
	if l != nil {
		g.log = l
	}
	return g
}

// EstimateTokens is the conservative token estimate for content.
func EstimateTokens(content string) int64 {
	return int64(len(content) / 4)
}

// TrackTokens adds n to the token count and fails the instant the
// ceiling is crossed.
func (g *Governor) TrackTokens(n int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.tokenCount += n
	if g.tokenCount > MaxTokens {
		return g.abortLocked(&BoundaryError{Code: ErrPerfMaxTokens, Limit: MaxTokens, Actual: g.tokenCount})
	}
	return nil
}

// TrackCall counts one external call and fails the instant the ceiling
// is crossed.
func (g *Governor) TrackCall() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.callCount++
	if g.callCount > MaxCallsPerRun {
		return g.abortLocked(&BoundaryError{Code: ErrPerfMaxCallsPerRun, Limit: MaxCallsPerRun, Actual: g.callCount})
	}
	return nil
}

// CheckLatency is an explicit checkpoint callable anywhere in a
// pipeline. Checkpoints are synchronous and deterministic, not
// cancellable mid-flight; callers must check between work units.
func (g *Governor) CheckLatency() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	elapsed := g.clock().Sub(g.start).Milliseconds()
	if elapsed > MaxLatencyMs {
		return g.abortLocked(&BoundaryError{Code: ErrPerfMaxLatencyMs, Limit: MaxLatencyMs, Actual: elapsed})
	}
	return nil
}

// Snapshot returns the current counter state.
func (g *Governor) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{StartTime: g.start, TokenCount: g.tokenCount, CallCount: g.callCount}
}

func (g *Governor) abortLocked(err *BoundaryError) error {
	_ = g.log.Record(context.Background(), audit.EventAbort, "agent_abort", g.executionRef, map[string]any{
		"code":   err.Code,
		"limit":  err.Limit,
		"actual": err.Actual,
	})
	return err
}
