package gateway

import (
	"fmt"
	"time"

	"github.com/aegisflow/trustplane/pkg/audit"
	"github.com/aegisflow/trustplane/pkg/token"
)

// Error code for a gateway built without a shared secret.
const ErrGatewayNoSecret = "ERR_GATEWAY_NO_SECRET"

// Preset selects a pre-defined scanner configuration.
type Preset string

const (
	PresetStandard   Preset = "standard"
	PresetStrict     Preset = "strict"
	PresetPermissive Preset = "permissive"
)

var presetConfigs = map[Preset]ScannerConfig{
	PresetStandard: {
		Scanners:               []string{"credential", "pii", "toxicity"},
		Parallel:               true,
		MaxConcurrency:         4,
		ShortCircuitConfidence: 0.95,
	},
	PresetStrict: {
		Scanners:               []string{"credential", "pii", "toxicity", "prompt_injection", "secrets_entropy"},
		Parallel:               false,
		MaxConcurrency:         1,
		ShortCircuitConfidence: 0.80,
	},
	PresetPermissive: {
		Scanners:               []string{"credential"},
		Parallel:               true,
		MaxConcurrency:         8,
		ShortCircuitConfidence: 0.99,
	},
}

// New creates a gateway from a preset with the default allow-all policy.
func New(preset Preset, secret string, engine ScanEngine) (*Gateway, error) {
	return NewBuilder().WithPreset(preset).WithSecret(secret).WithEngine(engine).Build()
}

// Builder assembles a gateway with custom scanner lists, policy, rate
// limits and option schemas.
type Builder struct {
	secret           string
	deriveCallerKeys bool
	ttl              time.Duration
	preset           Preset
	scanners         []string
	parallel         *bool
	maxConcurrency   int
	shortCircuit     float64
	policy           Policy
	engine           ScanEngine
	schemas          map[string]string
	rateRPS          float64
	rateBurst        int
	log              audit.Logger
}

func NewBuilder() *Builder {
	return &Builder{
		preset:  PresetStandard,
		ttl:     token.DefaultTTL,
		schemas: make(map[string]string),
	}
}

func (b *Builder) WithSecret(secret string) *Builder {
	b.secret = secret
	return b
}

// WithDerivedCallerKeys makes the gateway verify each caller against an
// HKDF subkey of the shared secret instead of the raw secret.
func (b *Builder) WithDerivedCallerKeys() *Builder {
	b.deriveCallerKeys = true
	return b
}

func (b *Builder) WithTokenTTL(ttl time.Duration) *Builder {
	b.ttl = ttl
	return b
}

func (b *Builder) WithPreset(p Preset) *Builder {
	b.preset = p
	return b
}

// WithScanners overrides the preset's scanner list.
func (b *Builder) WithScanners(scanners ...string) *Builder {
	b.scanners = scanners
	return b
}

func (b *Builder) WithParallelism(parallel bool, maxConcurrency int) *Builder {
	b.parallel = &parallel
	b.maxConcurrency = maxConcurrency
	return b
}

// WithShortCircuitConfidence sets the confidence at which scanning
// stops early.
func (b *Builder) WithShortCircuitConfidence(c float64) *Builder {
	b.shortCircuit = c
	return b
}

func (b *Builder) WithPolicy(p Policy) *Builder {
	b.policy = p
	return b
}

func (b *Builder) WithEngine(e ScanEngine) *Builder {
	b.engine = e
	return b
}

// WithOptionSchema registers a JSON Schema for an operation's options.
func (b *Builder) WithOptionSchema(operation, schema string) *Builder {
	b.schemas[operation] = schema
	return b
}

// WithRateLimit enables per-caller rate limiting.
func (b *Builder) WithRateLimit(rps float64, burst int) *Builder {
	b.rateRPS = rps
	b.rateBurst = burst
	return b
}

func (b *Builder) WithAuditLogger(l audit.Logger) *Builder {
	b.log = l
	return b
}

// Build assembles the gateway. It fails without a configured shared
// secret or engine — there is no unauthenticated or engine-less mode.
func (b *Builder) Build() (*Gateway, error) {
	if b.secret == "" {
		return nil, fmt.Errorf("%s: gateway requires a shared secret", ErrGatewayNoSecret)
	}
	if b.engine == nil {
		return nil, fmt.Errorf("gateway requires a scan engine (fail-closed)")
	}

	cfg, ok := presetConfigs[b.preset]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q", b.preset)
	}
	if len(b.scanners) > 0 {
		cfg.Scanners = b.scanners
	}
	if b.parallel != nil {
		cfg.Parallel = *b.parallel
		if b.maxConcurrency > 0 {
			cfg.MaxConcurrency = b.maxConcurrency
		}
	}
	if b.shortCircuit > 0 {
		cfg.ShortCircuitConfidence = b.shortCircuit
	}

	if configurable, ok := b.engine.(ConfigurableEngine); ok {
		if err := configurable.Configure(cfg); err != nil {
			return nil, fmt.Errorf("engine configuration: %w", err)
		}
	}

	firewall := NewOptionFirewall()
	for op, schema := range b.schemas {
		if err := firewall.SetSchema(op, schema); err != nil {
			return nil, err
		}
	}

	policy := b.policy
	if policy == nil {
		policy = AllowAllPolicy{}
	}

	log := b.log
	if log == nil {
		log = audit.Nop()
	}

	var limiter *callerLimiter
	if b.rateRPS > 0 {
		limiter = newCallerLimiter(b.rateRPS, b.rateBurst)
	}

	return &Gateway{
		secret:           b.secret,
		deriveCallerKeys: b.deriveCallerKeys,
		ttl:              b.ttl,
		authority:        token.NewAuthority(),
		policy:           policy,
		engine:           b.engine,
		firewall:         firewall,
		limiter:          limiter,
		log:              log,
	}, nil
}
