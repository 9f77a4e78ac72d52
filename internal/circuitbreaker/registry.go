package circuitbreaker

import "sync"

// Registry returns named singleton breakers so state is shared across all
// callers for the same dependency (spec §4.C: "A registry returns named
// singletons").
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults Config
	overrides map[string]Config
}

// NewRegistry builds a registry with a default config and optional
// per-dependency overrides (spec §4.C: "Per-dependency overrides configurable").
func NewRegistry(defaults Config, overrides map[string]Config) *Registry {
	return &Registry{
		breakers:  make(map[string]*Breaker),
		defaults:  defaults.withDefaults(),
		overrides: overrides,
	}
}

// Get returns the named breaker, creating it with its configured (or
// default) parameters on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	cfg := r.defaults
	if override, ok := r.overrides[name]; ok {
		cfg = override.withDefaults()
	}
	b = New(name, cfg)
	r.breakers[name] = b
	return b
}

// Snapshots returns a diagnostic snapshot for every breaker created so far.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}

// OpenNames returns the names of every currently OPEN breaker.
func (r *Registry) OpenNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, b := range r.breakers {
		if b.State() == Open {
			names = append(names, name)
		}
	}
	return names
}

// ResetAll forces every breaker back to CLOSED.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}
