// Package manager implements the provider manager (§4.H): it instantiates
// adapters, owns one circuit breaker, rate-limit tracker, and health window
// per enabled provider, and decides which provider a call should use.
package manager

import (
	"sync"
	"time"

	"github.com/TakumaLee/dispatch/internal/adapter"
	"github.com/TakumaLee/dispatch/internal/circuit"
	"github.com/TakumaLee/dispatch/internal/config"
	"github.com/TakumaLee/dispatch/internal/dispatcherr"
	"github.com/TakumaLee/dispatch/internal/health"
	"github.com/TakumaLee/dispatch/internal/ratelimit"
	"github.com/TakumaLee/dispatch/internal/subprocess"
)

// ProviderHealth is one entry of Manager.HealthStatus.
type ProviderHealth struct {
	Provider     string
	Healthy      bool
	CircuitState circuit.State
	RateLimited  bool
}

// Manager owns the per-provider orchestration state and the cached adapter
// instances built from the configuration's registry.
type Manager struct {
	cfg    *config.Configuration
	runner subprocess.Runner

	circuits *circuit.Registry
	limiters *ratelimit.Registry
	healths  *health.Registry

	adaptersMu sync.Mutex
	adapters   map[string]adapter.Adapter

	currentMu sync.Mutex
	current   string
}

// New constructs a Manager for cfg, using runner as the subprocess executor
// every adapter is built against.
func New(cfg *config.Configuration, runner subprocess.Runner) *Manager {
	m := &Manager{
		cfg:      cfg,
		runner:   runner,
		adapters: make(map[string]adapter.Adapter),
		current:  cfg.DefaultProvider,
	}

	breakerCfg := cfg.Orchestration.CircuitBreaker
	m.circuits = circuit.NewRegistry(breakerCfg, circuit.Listeners{
		OnOpen:  cfg.Callbacks.EmitCircuitOpen,
		OnClose: cfg.Callbacks.EmitCircuitClose,
	})
	m.limiters = ratelimit.NewRegistry(cfg.Orchestration.RateLimit)
	m.healths = health.NewRegistry(cfg.Orchestration.Health)

	return m
}

// CurrentProvider returns the provider the manager will use when a caller
// passes no preference.
func (m *Manager) CurrentProvider() string {
	m.currentMu.Lock()
	defer m.currentMu.Unlock()
	return m.current
}

func (m *Manager) setCurrentProvider(name string) {
	m.currentMu.Lock()
	defer m.currentMu.Unlock()
	m.current = name
}

// getAdapter returns the cached Adapter for name, constructing it via the
// registry on first access.
func (m *Manager) getAdapter(name string) (adapter.Adapter, error) {
	m.adaptersMu.Lock()
	defer m.adaptersMu.Unlock()

	if a, ok := m.adapters[name]; ok {
		return a, nil
	}

	factory, err := m.cfg.Registry.Get(name)
	if err != nil {
		return nil, err
	}
	pc, ok := m.cfg.Providers[name]
	if !ok {
		return nil, dispatcherr.NewProviderNotFoundError(name)
	}
	a, err := factory(m.runner, adapter.Config{
		Model:         pc.Model,
		DefaultFlags:  pc.DefaultFlags,
		Timeout:       pc.Timeout,
		BinaryPath:    pc.BinaryPath,
		DangerousMode: pc.DangerousMode,
	})
	if err != nil {
		return nil, dispatcherr.NewProviderUnavailableError(name, err)
	}
	m.adapters[name] = a
	return a, nil
}

// fallbackChain returns [p] ++ config.FallbackProviders ++ all enabled
// providers (in declared order), deduplicated preserving first occurrence.
// Order matters: tests depend on it (§9).
func (m *Manager) fallbackChain(p string) []string {
	seen := make(map[string]bool)
	var chain []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		pc, ok := m.cfg.Providers[name]
		if !ok || !pc.Enabled {
			return
		}
		seen[name] = true
		chain = append(chain, name)
	}
	add(p)
	for _, name := range m.cfg.FallbackProviders {
		add(name)
	}
	for _, name := range m.cfg.ProviderOrder {
		add(name)
	}
	return chain
}

// circuitState performs the lazy open->half-open transition and returns the
// current state, without consuming a half-open admission slot.
func (m *Manager) circuitState(p string) circuit.State {
	if !m.cfg.Orchestration.CircuitBreaker.Enabled {
		return circuit.Closed
	}
	return m.circuits.Get(p).State()
}

func (m *Manager) rateLimited(p string) bool {
	return m.limiters.Get(p).Limited()
}

func (m *Manager) healthy(p string) bool {
	return m.healths.Get(p).Healthy()
}

// viable reports whether p is currently a candidate select() would return:
// circuit not open, not rate limited, and healthy.
func (m *Manager) viable(p string) bool {
	return m.circuitState(p) != circuit.Open && !m.rateLimited(p) && m.healthy(p)
}

// Select implements §4.H's central decision: it returns the adapter for
// preferred (or the current provider, if preferred is empty) if it is
// viable, otherwise the first viable entry of its fallback chain.
func (m *Manager) Select(preferred string) (adapter.Adapter, error) {
	p := preferred
	if p == "" {
		p = m.CurrentProvider()
	}
	if m.viable(p) {
		return m.getAdapter(p)
	}

	reason := "circuit_open"
	switch {
	case m.circuitState(p) == circuit.Open:
	case m.rateLimited(p):
		reason = "rate_limited"
	case !m.healthy(p):
		reason = "unhealthy"
	}
	return m.selectFallback(p, reason)
}

// SelectDirect returns the adapter for name with no viability check, no
// fallback, and no orchestration bookkeeping, for callers that want to
// bypass the manager's decision entirely.
func (m *Manager) SelectDirect(name string) (adapter.Adapter, error) {
	if name == "" {
		name = m.CurrentProvider()
	}
	return m.getAdapter(name)
}

// selectFallback walks p's fallback chain (skipping p itself) for the first
// viable candidate. NoProvidersAvailableError is terminal: callers must not
// retry around it or wrap it further (§9).
func (m *Manager) selectFallback(p, reason string) (adapter.Adapter, error) {
	chain := m.fallbackChain(p)
	attempted := []string{p}
	errs := map[string]string{p: reason}

	for _, candidate := range chain {
		if candidate == p {
			continue
		}
		attempted = append(attempted, candidate)
		if !m.viable(candidate) {
			errs[candidate] = "unavailable"
			continue
		}
		return m.getAdapter(candidate)
	}
	return nil, dispatcherr.NewNoProvidersAvailableError(attempted, errs)
}

// Admit enforces the circuit breaker's half-open admission cap for an
// actual invocation of provider p, right before the adapter is called. It
// mutates breaker state (unlike the pure reads Select/viable use) so the
// corresponding RecordSuccess/RecordFailure must always be called exactly
// once for every Admit that returns true.
func (m *Manager) Admit(p string) bool {
	return m.circuits.Get(p).Allow()
}

// SwitchProvider finds a fallback for the current provider, updates
// CurrentProvider to it, emits provider_switch, and returns the new
// adapter.
func (m *Manager) SwitchProvider(reason string, ctx map[string]any) (adapter.Adapter, error) {
	from := m.CurrentProvider()
	a, err := m.selectFallback(from, reason)
	if err != nil {
		return nil, err
	}
	to := a.Name()
	m.setCurrentProvider(to)
	m.cfg.Callbacks.EmitProviderSwitch(config.SwitchEvent{From: from, To: to, Reason: reason, Context: ctx, At: time.Now()})
	return a, nil
}

// RecordSuccess updates the health window and circuit breaker for p after a
// successful call.
func (m *Manager) RecordSuccess(p string) {
	m.healths.Get(p).RecordSuccess()
	m.circuits.Get(p).RecordSuccess()
}

// RecordFailure updates the health window and circuit breaker for p after a
// failed call; may transition the circuit to open.
func (m *Manager) RecordFailure(p string) {
	m.healths.Get(p).RecordFailure()
	m.circuits.Get(p).RecordFailure()
}

// MarkRateLimited records that p reported a rate limit, expiring at
// resetAt (zero value uses the configured default reset delay).
func (m *Manager) MarkRateLimited(p string, resetAt time.Time) {
	m.limiters.Get(p).MarkLimited(resetAt, 0)
}

// AvailableProviders returns the names of providers currently viable for
// selection.
func (m *Manager) AvailableProviders() []string {
	var names []string
	for _, name := range m.cfg.ProviderOrder {
		if m.viable(name) {
			names = append(names, name)
		}
	}
	return names
}

// HealthStatus returns a reporting snapshot for every configured provider.
func (m *Manager) HealthStatus() []ProviderHealth {
	statuses := make([]ProviderHealth, 0, len(m.cfg.ProviderOrder))
	for _, name := range m.cfg.ProviderOrder {
		statuses = append(statuses, ProviderHealth{
			Provider:     name,
			Healthy:      m.healthy(name),
			CircuitState: m.circuitState(name),
			RateLimited:  m.rateLimited(name),
		})
	}
	return statuses
}

// Reset returns every circuit breaker, rate limiter, and health window to
// its initial state, and resets CurrentProvider to the configured default.
func (m *Manager) Reset() {
	m.circuits.ResetAll()
	m.limiters.ResetAll()
	m.healths.ResetAll()
	m.setCurrentProvider(m.cfg.DefaultProvider)
}
