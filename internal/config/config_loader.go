package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TakumaLee/dispatch/internal/circuit"
	"github.com/TakumaLee/dispatch/internal/health"
	"github.com/TakumaLee/dispatch/internal/ratelimit"
)

// fileProvider is one entry of a YAML config file's providers map, shaped
// like Tetora's own provider config but flattened to what an adapter needs.
type fileProvider struct {
	Type          string   `yaml:"type"`
	Path          string   `yaml:"path"`
	Model         string   `yaml:"model"`
	Models        []string `yaml:"models"`
	Enabled       *bool    `yaml:"enabled"`
	Priority      int      `yaml:"priority"`
	Timeout       string   `yaml:"timeout"`
	DefaultFlags  []string `yaml:"default_flags"`
	DangerousMode bool     `yaml:"dangerous_mode"`
}

type fileCircuitBreaker struct {
	Enabled          bool   `yaml:"enabled"`
	FailThreshold    int    `yaml:"fail_threshold"`
	OpenTimeout      string `yaml:"open_timeout"`
	SuccessThreshold int    `yaml:"success_threshold"`
	HalfOpenMaxCalls int    `yaml:"half_open_max_calls"`
}

type fileRetry struct {
	Enabled         bool    `yaml:"enabled"`
	MaxAttempts     int     `yaml:"max_attempts"`
	BaseDelay       string  `yaml:"base_delay"`
	MaxDelay        string  `yaml:"max_delay"`
	Jitter          bool    `yaml:"jitter"`
	ExponentialBase float64 `yaml:"exponential_base"`
}

type fileRateLimit struct {
	DefaultResetAfter string `yaml:"default_reset_after"`
}

type fileHealth struct {
	Enabled   bool    `yaml:"enabled"`
	Window    int     `yaml:"window"`
	Threshold float64 `yaml:"threshold"`
}

type fileOrchestration struct {
	CircuitBreaker    fileCircuitBreaker `yaml:"circuit_breaker"`
	Retry             fileRetry          `yaml:"retry"`
	RateLimit         fileRateLimit      `yaml:"rate_limit"`
	Health            fileHealth         `yaml:"health_check"`
	AutoSwitchOnError bool               `yaml:"auto_switch_on_error"`
}

// fileConfig mirrors the YAML document shape described in SPEC_FULL.md
// §4.J.1, itself a YAML rendering of Tetora's own root config.go layout.
type fileConfig struct {
	DefaultProvider   string                  `yaml:"default_provider"`
	FallbackProviders []string                `yaml:"fallback_providers"`
	Providers         map[string]fileProvider `yaml:"providers"`
	Orchestration     fileOrchestration       `yaml:"orchestration"`
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// LoadYAML reads a YAML config document from path and returns a validated
// Configuration. This loader is an ambient convenience cmd/dispatch uses to
// turn a config file into a runnable Configuration; the conductor and
// manager packages never import it.
func LoadYAML(path string) (*Configuration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	b := NewBuilder().
		DefaultProvider(fc.DefaultProvider).
		FallbackProviders(fc.FallbackProviders...).
		CircuitBreaker(circuit.Config{
			Enabled:          fc.Orchestration.CircuitBreaker.Enabled,
			FailThreshold:    fc.Orchestration.CircuitBreaker.FailThreshold,
			OpenTimeout:      parseDuration(fc.Orchestration.CircuitBreaker.OpenTimeout, 30*time.Second),
			SuccessThreshold: fc.Orchestration.CircuitBreaker.SuccessThreshold,
			HalfOpenMaxCalls: fc.Orchestration.CircuitBreaker.HalfOpenMaxCalls,
		}).
		Retry(RetryConfig{
			Enabled:         fc.Orchestration.Retry.Enabled,
			MaxAttempts:     fc.Orchestration.Retry.MaxAttempts,
			BaseDelay:       parseDuration(fc.Orchestration.Retry.BaseDelay, 500*time.Millisecond),
			MaxDelay:        parseDuration(fc.Orchestration.Retry.MaxDelay, 30*time.Second),
			Jitter:          fc.Orchestration.Retry.Jitter,
			ExponentialBase: fc.Orchestration.Retry.ExponentialBase,
		}).
		RateLimit(ratelimit.Config{
			DefaultResetAfter: parseDuration(fc.Orchestration.RateLimit.DefaultResetAfter, 60*time.Second),
		}).
		Health(health.Config{
			Enabled:   fc.Orchestration.Health.Enabled,
			Window:    fc.Orchestration.Health.Window,
			Threshold: fc.Orchestration.Health.Threshold,
		}).
		AutoSwitchOnError(fc.Orchestration.AutoSwitchOnError)

	for name, fp := range fc.Providers {
		enabled := true
		if fp.Enabled != nil {
			enabled = *fp.Enabled
		}
		b = b.Provider(name, ProviderConfig{
			Enabled:       enabled,
			Priority:      fp.Priority,
			Models:        fp.Models,
			Model:         fp.Model,
			DefaultFlags:  fp.DefaultFlags,
			Timeout:       parseDuration(fp.Timeout, 0),
			BinaryPath:    fp.Path,
			DangerousMode: fp.DangerousMode,
		})
	}

	return b.Build()
}
