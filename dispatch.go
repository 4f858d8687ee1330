// Package dispatch is the caller-facing surface of the provider
// dispatcher: SendMessage for orchestrated calls, Configure to build a
// Configuration, Provider to reach a single adapter directly, and the
// Dispatcher's TokenTracker, which aggregates every on_tokens_used event.
package dispatch

import (
	"context"

	"github.com/TakumaLee/dispatch/internal/adapter"
	"github.com/TakumaLee/dispatch/internal/conductor"
	"github.com/TakumaLee/dispatch/internal/config"
	"github.com/TakumaLee/dispatch/internal/manager"
	"github.com/TakumaLee/dispatch/internal/subprocess"
	"github.com/TakumaLee/dispatch/internal/tokens"
)

// Re-exported so callers importing this package alone can build a
// Configuration and catch its typed errors without reaching into internal/.
type (
	Configuration  = config.Configuration
	ProviderConfig = config.ProviderConfig
	RetryConfig    = config.RetryConfig
	TokenEvent     = config.TokenEvent
	SwitchEvent    = config.SwitchEvent
	Response       = adapter.Response
	Request        = adapter.Request
)

// Options is the per-call override surface for Send.
type Options = conductor.Options

// Dispatcher wires a Configuration, its Manager, and its Conductor into one
// handle, plus the default in-memory TokenTracker attached to its callback
// bus.
type Dispatcher struct {
	cfg       *config.Configuration
	manager   *manager.Manager
	conductor *conductor.Conductor
	tracker   *tokens.Tracker
}

// New builds a Dispatcher from cfg, running adapters against the real
// subprocess executor.
func New(cfg *config.Configuration) *Dispatcher {
	tracker := tokens.New()
	tracker.Attach(cfg.Callbacks)

	mgr := manager.New(cfg, subprocess.New())
	return &Dispatcher{
		cfg:       cfg,
		manager:   mgr,
		conductor: conductor.New(cfg, mgr),
		tracker:   tracker,
	}
}

// Configure builds a Configuration through the fluent builder DSL and wraps
// it in a ready-to-use Dispatcher. build receives a *config.Builder.
func Configure(build func(b *config.Builder)) (*Dispatcher, error) {
	b := config.NewBuilder()
	build(b)
	cfg, err := b.Build()
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

// SendMessage dispatches prompt through the orchestrated loop: provider
// selection, retry, and fallback all apply.
func (d *Dispatcher) SendMessage(ctx context.Context, prompt, preferred, model string, opts Options) (Response, error) {
	return d.conductor.Send(ctx, prompt, preferred, model, opts)
}

// ExecuteDirect calls provider directly, bypassing all orchestration.
func (d *Dispatcher) ExecuteDirect(ctx context.Context, prompt, provider, model string, opts Options) (Response, error) {
	return d.conductor.ExecuteDirect(ctx, prompt, provider, model, opts)
}

// Provider returns the live adapter for name, constructing it on first use.
func (d *Dispatcher) Provider(name string) (adapter.Adapter, error) {
	return d.manager.SelectDirect(name)
}

// TokenTracker returns the Dispatcher's default in-memory token_tracker.
func (d *Dispatcher) TokenTracker() *tokens.Tracker {
	return d.tracker
}

// Status reports the dispatcher's live provider/health/metrics state.
func (d *Dispatcher) Status() conductor.Status {
	return d.conductor.Status()
}

// Reset resets every circuit breaker, rate limiter, health window, and
// metrics counter back to its initial state.
func (d *Dispatcher) Reset() {
	d.conductor.Reset()
}
