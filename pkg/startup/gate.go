// Package startup validates environment and dependency health before
// the process serves traffic. Startup failures are fatal: there is no
// partial-degraded mode.
package startup

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/aegisflow/trustplane/pkg/audit"
	"github.com/aegisflow/trustplane/pkg/decision"
)

// Error code for fatal startup validation failures.
const ErrStartupInvalidEnv = "ERR_STARTUP_INVALID_ENV"

// Environment variable names consumed by the gate.
const (
	EnvAgentName      = "TRUSTPLANE_AGENT_NAME"
	EnvDomain         = "TRUSTPLANE_DOMAIN"
	EnvPhase          = "TRUSTPLANE_PHASE"
	EnvLayer          = "TRUSTPLANE_LAYER"
	EnvPersistURL     = "TRUSTPLANE_PERSIST_URL"
	EnvPersistAPIKey  = "TRUSTPLANE_PERSIST_API_KEY"
	EnvProfileVersion = "TRUSTPLANE_PROFILE_VERSION"
)

var requiredVars = []string{
	EnvAgentName,
	EnvDomain,
	EnvPhase,
	EnvLayer,
	EnvPersistURL,
	EnvPersistAPIKey,
}

var allowedPhases = map[string]bool{
	"ingress": true,
	"egress":  true,
	"batch":   true,
}

var allowedLayers = map[string]bool{
	"core":  true,
	"repo":  true,
	"agent": true,
}

// ValidationError carries every environment violation found.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrStartupInvalidEnv, strings.Join(e.Violations, "; "))
}

// Resolved is the environment configuration cached on success.
type Resolved struct {
	Identity      decision.Identity
	PersistURL    string
	PersistAPIKey string
}

// Gate validates startup requirements. The zero-value dependencies
// default to the real process environment and os.Exit.
type Gate struct {
	getenv     func(string) string
	exit       func(int)
	banner     io.Writer
	log        audit.Logger
	minProfile *semver.Constraints
	health     *HealthChecker
}

// NewGate creates a startup gate bound to the process environment.
func NewGate() *Gate {
	return &Gate{
		getenv: os.Getenv,
		exit:   os.Exit,
		banner: os.Stderr,
		log:    audit.NewLogger("startup"),
		health: NewHealthChecker(),
	}
}

// WithEnv overrides environment lookup for testing.
func (g *Gate) WithEnv(vars map[string]string) *Gate {
	g.getenv = func(k string) string { return vars[k] }
	return g
}

// WithExit overrides process termination for testing.
func (g *Gate) WithExit(exit func(int)) *Gate {
	g.exit = exit
	return g
}

// WithBanner overrides the fatal banner destination.
func (g *Gate) WithBanner(w io.Writer) *Gate {
	g.banner = w
	return g
}

// WithAuditLogger overrides the audit sink.
func (g *Gate) WithAuditLogger(l audit.Logger) *Gate {
	if l != nil {
		g.log = l
	}
	return g
}

// WithMinProfileVersion enforces a minimum deployment profile version,
// expressed as a semver constraint such as ">= 1.2.0".
func (g *Gate) WithMinProfileVersion(constraint string) (*Gate, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("profile version constraint: %w", err)
	}
	g.minProfile = c
	return g, nil
}

// WithHealthChecker overrides the dependency health checker.
func (g *Gate) WithHealthChecker(h *HealthChecker) *Gate {
	if h != nil {
		g.health = h
	}
	return g
}

// ValidateEnvironment checks that all required variables are present
// and non-blank, phase/layer are in the allow-list, and URL-shaped
// variables parse. All violations are collected before returning.
func (g *Gate) ValidateEnvironment() (*Resolved, error) {
	var violations []string

	values := make(map[string]string, len(requiredVars))
	for _, name := range requiredVars {
		v := strings.TrimSpace(g.getenv(name))
		if v == "" {
			violations = append(violations, fmt.Sprintf("%s is required", name))
		}
		values[name] = v
	}

	if phase := values[EnvPhase]; phase != "" && !allowedPhases[phase] {
		violations = append(violations, fmt.Sprintf("%s=%q is not in the allowed set", EnvPhase, phase))
	}
	if layer := values[EnvLayer]; layer != "" && !allowedLayers[layer] {
		violations = append(violations, fmt.Sprintf("%s=%q is not in the allowed set", EnvLayer, layer))
	}

	if raw := values[EnvPersistURL]; raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			violations = append(violations, fmt.Sprintf("%s=%q is not a valid http(s) URL", EnvPersistURL, raw))
		}
	}

	if g.minProfile != nil {
		raw := strings.TrimSpace(g.getenv(EnvProfileVersion))
		if raw == "" {
			violations = append(violations, fmt.Sprintf("%s is required", EnvProfileVersion))
		} else if v, err := semver.NewVersion(raw); err != nil {
			violations = append(violations, fmt.Sprintf("%s=%q is not a semantic version", EnvProfileVersion, raw))
		} else if !g.minProfile.Check(v) {
			violations = append(violations, fmt.Sprintf("%s=%q does not satisfy %s", EnvProfileVersion, raw, g.minProfile))
		}
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	return &Resolved{
		Identity: decision.Identity{
			SourceAgent: values[EnvAgentName],
			Domain:      values[EnvDomain],
			Phase:       values[EnvPhase],
			Layer:       values[EnvLayer],
		},
		PersistURL:    values[EnvPersistURL],
		PersistAPIKey: values[EnvPersistAPIKey],
	}, nil
}

// AssertStartupRequirements runs environment validation and the
// dependency health check. On any failure it logs a structured abort
// event, prints a fatal banner, and terminates the process. On success
// it returns the initialized identity state.
func (g *Gate) AssertStartupRequirements(ctx context.Context) *decision.IdentityState {
	resolved, err := g.ValidateEnvironment()
	if err != nil {
		g.abort(ctx, "environment_invalid", map[string]any{"error": err.Error()})
		return nil
	}

	result := g.health.Check(ctx, resolved.PersistURL, resolved.PersistAPIKey)
	if result.Status != StatusHealthy {
		g.abort(ctx, "dependency_unhealthy", map[string]any{
			"status":      string(result.Status),
			"status_code": result.StatusCode,
			"error":       result.Err,
		})
		return nil
	}

	identity, err := decision.NewInitialized(resolved.Identity)
	if err != nil {
		g.abort(ctx, "identity_invalid", map[string]any{"error": err.Error()})
		return nil
	}

	_ = g.log.Record(ctx, audit.EventSystem, "startup_complete", "", map[string]any{
		"source_agent": resolved.Identity.SourceAgent,
		"phase":        resolved.Identity.Phase,
		"layer":        resolved.Identity.Layer,
	})
	return identity
}

func (g *Gate) abort(ctx context.Context, reason string, metadata map[string]any) {
	_ = g.log.Record(ctx, audit.EventAbort, "startup_abort", "", mergeReason(reason, metadata))
	fmt.Fprintf(g.banner, "FATAL: startup requirements not met (%s); refusing to serve\n", reason)
	g.exit(1)
}

func mergeReason(reason string, metadata map[string]any) map[string]any {
	if metadata == nil {
		metadata = make(map[string]any, 1)
	}
	metadata["reason"] = reason
	return metadata
}
