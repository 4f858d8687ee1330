package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
default_provider: claude
fallback_providers: [gemini]
providers:
  claude:
    type: cli
    path: claude
    model: claude-3-5-sonnet
    priority: 1
  gemini:
    type: cli
    path: gemini
    enabled: true
orchestration:
  circuit_breaker:
    enabled: true
    fail_threshold: 4
    open_timeout: 15s
    success_threshold: 2
    half_open_max_calls: 1
  retry:
    enabled: true
    max_attempts: 2
    base_delay: 100ms
    max_delay: 2s
    jitter: true
  rate_limit:
    default_reset_after: 90s
  health_check:
    enabled: true
    window: 20
    threshold: 0.6
  auto_switch_on_error: true
`

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dispatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML_ParsesProvidersAndOrchestration(t *testing.T) {
	path := writeTempYAML(t, sampleYAML)
	cfg, err := LoadYAML(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultProvider != "claude" {
		t.Errorf("default_provider = %q", cfg.DefaultProvider)
	}
	if len(cfg.FallbackProviders) != 1 || cfg.FallbackProviders[0] != "gemini" {
		t.Errorf("fallback_providers = %v", cfg.FallbackProviders)
	}
	pc, ok := cfg.Providers["claude"]
	if !ok || pc.Model != "claude-3-5-sonnet" || pc.BinaryPath != "claude" {
		t.Errorf("unexpected claude provider config: %+v", pc)
	}
	if cfg.Orchestration.CircuitBreaker.FailThreshold != 4 {
		t.Errorf("fail_threshold = %d", cfg.Orchestration.CircuitBreaker.FailThreshold)
	}
	if cfg.Orchestration.Retry.BaseDelay != 100*time.Millisecond {
		t.Errorf("base_delay = %v", cfg.Orchestration.Retry.BaseDelay)
	}
	if cfg.Orchestration.RateLimit.DefaultResetAfter != 90*time.Second {
		t.Errorf("default_reset_after = %v", cfg.Orchestration.RateLimit.DefaultResetAfter)
	}
}

func TestLoadYAML_MissingDefaultProviderFailsValidation(t *testing.T) {
	path := writeTempYAML(t, `
providers:
  claude:
    path: claude
`)
	if _, err := LoadYAML(path); err == nil {
		t.Fatal("expected a ConfigurationError for a missing default_provider")
	}
}

func TestLoadYAML_MissingFileReturnsError(t *testing.T) {
	if _, err := LoadYAML(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error reading a nonexistent file")
	}
}
