package dispatcherr

import (
	"errors"
	"testing"
	"time"
)

func TestProviderError_Unwraps(t *testing.T) {
	cause := errors.New("boom")
	err := NewProviderError("claude", "adapter.send", "failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("ProviderError should unwrap to its cause via errors.Is")
	}
}

func TestNoProvidersAvailableError_CarriesAttempts(t *testing.T) {
	err := NewNoProvidersAvailableError([]string{"claude", "gemini"}, map[string]string{"claude": "circuit_open"})
	if len(err.AttemptedProviders) != 2 {
		t.Fatalf("AttemptedProviders = %v, want 2 entries", err.AttemptedProviders)
	}
	if err.Errors["claude"] != "circuit_open" {
		t.Errorf("Errors[claude] = %q, want circuit_open", err.Errors["claude"])
	}
}

func TestRateLimitError_CarriesResetTime(t *testing.T) {
	reset := time.Now().Add(time.Hour)
	err := NewRateLimitError("claude", reset, nil)
	if !err.ResetTime.Equal(reset) {
		t.Errorf("ResetTime = %v, want %v", err.ResetTime, reset)
	}
}

func TestCircuitOpenError_Message(t *testing.T) {
	err := NewCircuitOpenError("claude")
	if err.Provider != "claude" {
		t.Errorf("Provider = %q, want claude", err.Provider)
	}
	if err.Error() == "" {
		t.Error("Error() should not be empty")
	}
}
