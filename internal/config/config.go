// Package config defines the dispatcher's process-scoped Configuration
// record, the builder DSL used to construct one, and the callback bus that
// delivers token-usage, provider-switch, and circuit-breaker events to
// whatever the host process wired up. Loading a Configuration from a file
// (see config_loader.go) is an ambient convenience the orchestrator itself
// never imports.
package config

import (
	"fmt"
	"time"

	"github.com/TakumaLee/dispatch/internal/circuit"
	"github.com/TakumaLee/dispatch/internal/dispatcherr"
	"github.com/TakumaLee/dispatch/internal/health"
	"github.com/TakumaLee/dispatch/internal/ratelimit"
	"github.com/TakumaLee/dispatch/internal/registry"
)

// ProviderConfig is the per-provider record the manager and adapters read
// from. Immutable for the lifetime of one call.
type ProviderConfig struct {
	Name          string
	Enabled       bool
	Priority      int
	Models        []string
	Model         string
	DefaultFlags  []string
	Timeout       time.Duration
	BinaryPath    string
	DangerousMode bool
}

// RetryConfig controls the conductor's retry-with-backoff behavior.
type RetryConfig struct {
	Enabled bool
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
	// ExponentialBase is accepted and stored but deliberately NOT applied
	// by calculateRetryDelay, which computes base_delay+jitter without
	// compounding by exponential_base^attempt despite exposing this field.
	// Surfaced here, not silently "fixed".
	ExponentialBase float64
}

func (r RetryConfig) defaulted() RetryConfig {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 3
	}
	if r.BaseDelay <= 0 {
		r.BaseDelay = 500 * time.Millisecond
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = 30 * time.Second
	}
	if r.ExponentialBase <= 0 {
		r.ExponentialBase = 2
	}
	return r
}

// OrchestrationConfig groups the sub-configurations of every stateful
// per-provider component the manager owns.
type OrchestrationConfig struct {
	CircuitBreaker    circuit.Config
	Retry             RetryConfig
	RateLimit         ratelimit.Config
	Health            health.Config
	AutoSwitchOnError bool
}

// Configuration is the process-scoped record the conductor and manager
// share read-only after Build() returns.
type Configuration struct {
	DefaultProvider   string
	FallbackProviders []string
	Providers         map[string]ProviderConfig
	// ProviderOrder preserves the order providers were registered in the
	// builder; Go maps have no iteration order, and the fallback-chain
	// construction (§4.H) depends on a stable "all providers" tail.
	ProviderOrder []string
	Orchestration OrchestrationConfig
	Callbacks     *Callbacks
	Registry      *registry.Registry
}

// Validate checks that a Configuration is usable: a non-empty provider set
// with a resolvable default.
func (c *Configuration) Validate() error {
	if len(c.Providers) == 0 {
		return dispatcherr.NewConfigurationError("configuration must declare at least one provider")
	}
	if _, ok := c.Providers[c.DefaultProvider]; !ok {
		return dispatcherr.NewConfigurationError(fmt.Sprintf("default_provider %q is not in providers", c.DefaultProvider))
	}
	return nil
}
