package config

import (
	"time"

	"github.com/TakumaLee/dispatch/internal/adapter"
	"github.com/TakumaLee/dispatch/internal/circuit"
	"github.com/TakumaLee/dispatch/internal/health"
	"github.com/TakumaLee/dispatch/internal/ratelimit"
	"github.com/TakumaLee/dispatch/internal/registry"
)

// Builder assembles a Configuration. The zero value is not usable; start
// from NewBuilder.
type Builder struct {
	defaultProvider   string
	fallbackProviders []string
	providers         map[string]ProviderConfig
	providerOrder     []string
	orchestration     OrchestrationConfig
	callbacks         *Callbacks
	registry          *registry.Registry
}

// NewBuilder starts a Configuration builder pre-seeded with the eight
// built-in provider adapters and sensible orchestration defaults.
func NewBuilder() *Builder {
	return &Builder{
		providers: make(map[string]ProviderConfig),
		registry:  registry.NewBuiltinRegistry(),
		callbacks: NewCallbacks(),
		orchestration: OrchestrationConfig{
			CircuitBreaker:    circuit.Config{Enabled: true, FailThreshold: 5, OpenTimeout: 30 * time.Second, SuccessThreshold: 2, HalfOpenMaxCalls: 1},
			Retry:             RetryConfig{Enabled: true}.defaulted(),
			RateLimit:         ratelimit.Config{DefaultResetAfter: 60 * time.Second},
			Health:            health.Config{Enabled: true, Window: 100, Threshold: 0.5},
			AutoSwitchOnError: true,
		},
	}
}

// DefaultProvider sets the provider used when a caller doesn't name one.
func (b *Builder) DefaultProvider(name string) *Builder {
	b.defaultProvider = name
	return b
}

// FallbackProviders sets the ordered fallback chain consulted after the
// preferred/default provider.
func (b *Builder) FallbackProviders(names ...string) *Builder {
	b.fallbackProviders = names
	return b
}

// Provider declares (or replaces) a provider's configuration. name must be
// registered in the registry (built-in or via RegisterProvider).
func (b *Builder) Provider(name string, cfg ProviderConfig) *Builder {
	cfg.Name = name
	if _, exists := b.providers[name]; !exists {
		b.providerOrder = append(b.providerOrder, name)
	}
	b.providers[name] = cfg
	return b
}

// RegisterProvider adds a custom adapter factory to the builder's registry.
func (b *Builder) RegisterProvider(name string, factory adapter.Factory, aliases ...string) *Builder {
	b.registry.Register(name, factory, aliases...)
	return b
}

// CircuitBreaker overrides the orchestration-wide circuit breaker config.
func (b *Builder) CircuitBreaker(cfg circuit.Config) *Builder {
	b.orchestration.CircuitBreaker = cfg
	return b
}

// Retry overrides the orchestration-wide retry config.
func (b *Builder) Retry(cfg RetryConfig) *Builder {
	b.orchestration.Retry = cfg.defaulted()
	return b
}

// RateLimit overrides the orchestration-wide rate-limit defaults.
func (b *Builder) RateLimit(cfg ratelimit.Config) *Builder {
	b.orchestration.RateLimit = cfg
	return b
}

// Health overrides the orchestration-wide health-monitor config.
func (b *Builder) Health(cfg health.Config) *Builder {
	b.orchestration.Health = cfg
	return b
}

// AutoSwitchOnError toggles whether the conductor switches providers on
// failure (vs. retrying the same provider only).
func (b *Builder) AutoSwitchOnError(on bool) *Builder {
	b.orchestration.AutoSwitchOnError = on
	return b
}

// OnTokensUsed registers a token-usage listener.
func (b *Builder) OnTokensUsed(fn func(TokenEvent)) *Builder {
	b.callbacks.OnTokensUsed(fn)
	return b
}

// OnProviderSwitch registers a provider-switch listener.
func (b *Builder) OnProviderSwitch(fn func(SwitchEvent)) *Builder {
	b.callbacks.OnProviderSwitch(fn)
	return b
}

// OnCircuitOpen registers a circuit_open listener.
func (b *Builder) OnCircuitOpen(fn func(provider string)) *Builder {
	b.callbacks.OnCircuitOpen(fn)
	return b
}

// OnCircuitClose registers a circuit_close listener.
func (b *Builder) OnCircuitClose(fn func(provider string)) *Builder {
	b.callbacks.OnCircuitClose(fn)
	return b
}

// Build validates and returns the assembled Configuration.
func (b *Builder) Build() (*Configuration, error) {
	cfg := &Configuration{
		DefaultProvider:   b.defaultProvider,
		FallbackProviders: b.fallbackProviders,
		Providers:         b.providers,
		ProviderOrder:     b.providerOrder,
		Orchestration:     b.orchestration,
		Callbacks:         b.callbacks,
		Registry:          b.registry,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
