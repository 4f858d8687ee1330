// Package registry owns the name -> adapter-factory map and its alias
// table. It is a value-typed *Registry threaded through Configuration/
// Manager construction, with RegisterBuiltins populating the built-in
// adapters explicitly rather than lazily on first access. There is no
// process-default instance; NewBuiltinRegistry builds a pre-seeded one.
package registry

import (
	"sync"

	"github.com/TakumaLee/dispatch/internal/adapter"
	"github.com/TakumaLee/dispatch/internal/dispatcherr"
	"github.com/TakumaLee/dispatch/internal/subprocess"
)

// Registry maps canonical provider names (and their aliases) to the
// factory that constructs an Adapter for them.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]adapter.Factory
	aliases   map[string]string
}

// New returns an empty Registry with no built-ins registered.
func New() *Registry {
	return &Registry{
		factories: make(map[string]adapter.Factory),
		aliases:   make(map[string]string),
	}
}

// NewBuiltinRegistry returns a Registry pre-seeded with the eight built-in
// provider adapters and their aliases (§6).
func NewBuiltinRegistry() *Registry {
	r := New()
	r.RegisterBuiltins()
	return r
}

// RegisterBuiltins registers the eight built-in adapters. Safe to call more
// than once; later calls simply re-register the same factories.
func (r *Registry) RegisterBuiltins() {
	r.Register("claude", adapter.NewClaude, "anthropic")
	r.Register("cursor", adapter.NewCursor)
	r.Register("gemini", adapter.NewGemini)
	r.Register("github_copilot", adapter.NewCopilot, "copilot")
	r.Register("codex", adapter.NewCodex)
	r.Register("aider", adapter.NewAider)
	r.Register("opencode", adapter.NewOpenCode)
	r.Register("kilocode", adapter.NewKilocode)
}

// Register adds factory under name, plus any aliases that resolve to it.
func (r *Registry) Register(name string, factory adapter.Factory, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	for _, alias := range aliases {
		r.aliases[alias] = name
	}
}

// canonical resolves an alias (or passes through a canonical name unchanged).
func (r *Registry) canonical(name string) string {
	if canon, ok := r.aliases[name]; ok {
		return canon
	}
	return name
}

// Get resolves name (through aliases) and returns its factory, or a
// ProviderNotFoundError if nothing is registered under it.
func (r *Registry) Get(name string) (adapter.Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	canon := r.canonical(name)
	f, ok := r.factories[canon]
	if !ok {
		return nil, dispatcherr.NewProviderNotFoundError(name)
	}
	return f, nil
}

// Registered reports whether name (or an alias of it) is registered.
func (r *Registry) Registered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[r.canonical(name)]
	return ok
}

// All returns every canonical provider name registered.
func (r *Registry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Available returns the canonical names of providers whose factory, when
// instantiated against runner with a zero-value adapter.Config, reports
// Available() true (i.e. its backing binary is on PATH).
func (r *Registry) Available(runner subprocess.Runner) []string {
	r.mu.RLock()
	factories := make(map[string]adapter.Factory, len(r.factories))
	for name, f := range r.factories {
		factories[name] = f
	}
	r.mu.RUnlock()

	var available []string
	for name, f := range factories {
		a, err := f(runner, adapter.Config{})
		if err != nil {
			continue
		}
		if a.Available() {
			available = append(available, name)
		}
	}
	return available
}

// Reset clears every registration. Mainly useful for tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]adapter.Factory)
	r.aliases = make(map[string]string)
}
