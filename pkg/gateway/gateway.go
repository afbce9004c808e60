// Package gateway implements the security gateway: the sole authorized
// path from callers to the external scan engine.
//
// Every call passes the same gate: execution context validation, caller
// token verification, pluggable policy authorization, optional rate
// limiting and option-schema checks, then delegation inside a
// call-scoped context carrying the caller token. The gate is fail-fast;
// none of its checks are retried.
package gateway

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/aegisflow/trustplane/pkg/audit"
	"github.com/aegisflow/trustplane/pkg/token"
)

// ScanResult is the engine's classification outcome. The gateway treats
// it as opaque and returns it unchanged.
type ScanResult struct {
	Flagged    bool     `json:"flagged"`
	Confidence float64  `json:"confidence"`
	Categories []string `json:"categories,omitempty"`
	ScannerID  string   `json:"scanner_id,omitempty"`
	Detail     string   `json:"detail,omitempty"`
}

// ScanEngine is the external text-classification collaborator.
type ScanEngine interface {
	ScanPrompt(ctx context.Context, text string, options map[string]any) (*ScanResult, error)
	ScanOutput(ctx context.Context, text string, options map[string]any) (*ScanResult, error)
	ScanBatch(ctx context.Context, texts []string, options map[string]any) ([]*ScanResult, error)
}

// ConfigurableEngine is implemented by engines that accept a scanner
// configuration at gateway construction.
type ConfigurableEngine interface {
	Configure(cfg ScannerConfig) error
}

// ScannerConfig selects the underlying scanner set and its execution
// shape.
type ScannerConfig struct {
	Scanners               []string `json:"scanners"`
	Parallel               bool     `json:"parallel"`
	MaxConcurrency         int      `json:"max_concurrency"`
	ShortCircuitConfidence float64  `json:"short_circuit_confidence"`
}

// Gateway is the sole authorized entry point for scanning operations.
type Gateway struct {
	secret           string
	deriveCallerKeys bool
	ttl              time.Duration
	authority        *token.Authority
	policy           Policy
	engine           ScanEngine
	firewall         *OptionFirewall
	limiter          *callerLimiter
	log              audit.Logger
}

// Operation names used for policy and schema checks.
const (
	OpScanPrompt = "scan_prompt"
	OpScanOutput = "scan_output"
	OpScanBatch  = "scan_batch"
)

// ScanPrompt validates the call and delegates prompt scanning.
func (g *Gateway) ScanPrompt(ctx context.Context, gc *Context, text string, options map[string]any) (*ScanResult, error) {
	callCtx, err := g.gate(ctx, gc, OpScanPrompt, options)
	if err != nil {
		return nil, err
	}
	return g.engine.ScanPrompt(callCtx, norm.NFC.String(text), options)
}

// ScanOutput validates the call and delegates output scanning.
func (g *Gateway) ScanOutput(ctx context.Context, gc *Context, text string, options map[string]any) (*ScanResult, error) {
	callCtx, err := g.gate(ctx, gc, OpScanOutput, options)
	if err != nil {
		return nil, err
	}
	return g.engine.ScanOutput(callCtx, norm.NFC.String(text), options)
}

// ScanBatch validates the call and delegates batch scanning.
func (g *Gateway) ScanBatch(ctx context.Context, gc *Context, texts []string, options map[string]any) ([]*ScanResult, error) {
	callCtx, err := g.gate(ctx, gc, OpScanBatch, options)
	if err != nil {
		return nil, err
	}
	normalized := make([]string, len(texts))
	for i, t := range texts {
		normalized[i] = norm.NFC.String(t)
	}
	return g.engine.ScanBatch(callCtx, normalized, options)
}

// Authorize runs the full gate without delegating to the engine.
// Callers that short-circuit the engine (e.g. on a cache hit) use this
// so no path skips governance.
func (g *Gateway) Authorize(ctx context.Context, gc *Context, operation string, options map[string]any) error {
	_, err := g.gate(ctx, gc, operation, options)
	return err
}

// gate runs the full governance check sequence and returns the
// call-scoped context carrying the caller token. The token is released
// with the returned context — it never outlives the delegated call.
func (g *Gateway) gate(ctx context.Context, gc *Context, operation string, options map[string]any) (context.Context, error) {
	if err := gc.Validate(); err != nil {
		return nil, err
	}

	secret, err := g.callerSecret(gc.Caller.CallerID)
	if err != nil {
		return nil, err
	}
	if err := g.authority.Validate(gc.Caller, secret, g.ttl); err != nil {
		_ = g.log.Record(ctx, audit.EventPolicy, "token_rejected", gc.ExecutionID, map[string]any{
			"caller_id": gc.Caller.CallerID,
			"operation": operation,
		})
		return nil, err
	}

	if g.limiter != nil && !g.limiter.allow(gc.Caller.CallerID) {
		return nil, &RateLimitedError{CallerID: gc.Caller.CallerID}
	}

	if err := g.policy.Authorize(ctx, gc, operation); err != nil {
		_ = g.log.Record(ctx, audit.EventPolicy, "policy_denied", gc.ExecutionID, map[string]any{
			"caller_id": gc.Caller.CallerID,
			"operation": operation,
		})
		return nil, err
	}

	if err := g.firewall.Check(operation, options); err != nil {
		return nil, err
	}

	return withCaller(ctx, gc.Caller), nil
}

func (g *Gateway) callerSecret(callerID string) (string, error) {
	if !g.deriveCallerKeys {
		return g.secret, nil
	}
	derived, err := token.DeriveCallerSecret(g.secret, callerID)
	if err != nil {
		return "", fmt.Errorf("caller key derivation: %w", err)
	}
	return derived, nil
}
