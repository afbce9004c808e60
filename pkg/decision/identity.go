package decision

import (
	"fmt"
	"sync"
)

// unknownPlaceholder marks an identity field that was never resolved.
// Events carrying it fail validation, so it cannot silently reach a
// production emission path.
const unknownPlaceholder = "unknown"

// Identity names the agent emitting decision events.
type Identity struct {
	SourceAgent string `json:"source_agent"`
	Domain      string `json:"domain"`
	Phase       string `json:"phase"`
	Layer       string `json:"layer"`
}

// IdentityState is a two-state holder: Uninitialized or
// Initialized(identity). The startup gate resolves and caches the
// initialized state once at boot.
type IdentityState struct {
	mu          sync.RWMutex
	initialized bool
	identity    Identity
}

// NewUninitialized returns an identity state that resolves to
// placeholder values. Test-only path; emitted events will not validate.
func NewUninitialized() *IdentityState {
	return &IdentityState{}
}

// NewInitialized returns an identity state with all fields resolved.
func NewInitialized(id Identity) (*IdentityState, error) {
	if id.SourceAgent == "" || id.Domain == "" || id.Phase == "" || id.Layer == "" {
		return nil, fmt.Errorf("identity requires source_agent, domain, phase and layer")
	}
	return &IdentityState{initialized: true, identity: id}, nil
}

// Resolve returns the identity and whether it was initialized. An
// uninitialized state yields "unknown" placeholders.
func (s *IdentityState) Resolve() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return Identity{
			SourceAgent: unknownPlaceholder,
			Domain:      unknownPlaceholder,
			Phase:       unknownPlaceholder,
			Layer:       unknownPlaceholder,
		}, false
	}
	return s.identity, true
}
