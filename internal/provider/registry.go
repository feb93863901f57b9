package provider

import "sync"

// Registry maps a provider enum value (registry.Config.Provider) to its
// Provider implementation and static Capabilities. The router looks
// providers up by name through Get rather than importing every concrete
// adapter; no caller outside this package reads Capabilities
// (SPEC_FULL.md supplemented feature 1).
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register associates name (e.g. "anthropic", "openai", "bedrock",
// "subprocess") with its Provider implementation.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get returns the Provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Capabilities returns the static Capabilities for name, or the zero value
// (all unsupported, BillingUnknown) if name is not registered.
func (r *Registry) Capabilities(name string) Capabilities {
	p, ok := r.Get(name)
	if !ok {
		return Capabilities{BillingModel: BillingUnknown}
	}
	return p.Capabilities()
}
