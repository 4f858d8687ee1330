// Package dispatcherr defines the typed error hierarchy callers of the
// dispatcher see: every error wraps its original cause and carries whatever
// context the raising component had at hand.
package dispatcherr

import (
	"fmt"
	"time"
)

// Error is the base type every dispatcher error embeds.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ProviderError wraps any failure returned by a provider adapter that did
// not classify into a more specific type below.
type ProviderError struct {
	Error
	Provider string
}

func NewProviderError(provider, op, message string, err error) *ProviderError {
	return &ProviderError{Error: Error{Op: op, Message: message, Err: err}, Provider: provider}
}

// ProviderNotFoundError is raised when a caller names a provider the
// registry has never heard of.
type ProviderNotFoundError struct {
	Error
	Provider string
}

func NewProviderNotFoundError(provider string) *ProviderNotFoundError {
	return &ProviderNotFoundError{
		Error:    Error{Op: "registry.get", Message: fmt.Sprintf("provider %q is not registered", provider)},
		Provider: provider,
	}
}

// ProviderUnavailableError is raised when a provider's binary cannot be
// located on the system.
type ProviderUnavailableError struct {
	Error
	Provider string
}

func NewProviderUnavailableError(provider string, err error) *ProviderUnavailableError {
	return &ProviderUnavailableError{
		Error:    Error{Op: "adapter.available", Message: fmt.Sprintf("provider %q binary not found", provider), Err: err},
		Provider: provider,
	}
}

// TimeoutError is raised when a subprocess call exceeds its deadline.
type TimeoutError struct {
	Error
	Provider string
	Timeout  time.Duration
}

func NewTimeoutError(provider string, timeout time.Duration, err error) *TimeoutError {
	return &TimeoutError{
		Error:    Error{Op: "adapter.send", Message: fmt.Sprintf("provider %q timed out after %s", provider, timeout), Err: err},
		Provider: provider,
		Timeout:  timeout,
	}
}

// CommandExecutionError is raised when the subprocess itself could not be
// started or reaped. A non-zero exit is not reported with this type; the
// adapters classify it into one of the other types.
type CommandExecutionError struct {
	Error
	Provider string
	Argv     []string
}

func NewCommandExecutionError(provider string, argv []string, err error) *CommandExecutionError {
	return &CommandExecutionError{
		Error:    Error{Op: "exec.run", Message: fmt.Sprintf("failed to execute %q", provider), Err: err},
		Provider: provider,
		Argv:     argv,
	}
}

// RateLimitError is raised when a provider reports it is rate limited.
type RateLimitError struct {
	Error
	Provider  string
	ResetTime time.Time
}

func NewRateLimitError(provider string, resetTime time.Time, err error) *RateLimitError {
	return &RateLimitError{
		Error:     Error{Op: "adapter.send", Message: fmt.Sprintf("provider %q is rate limited", provider), Err: err},
		Provider:  provider,
		ResetTime: resetTime,
	}
}

// CircuitOpenError is raised by the conductor when Manager.Admit refuses a
// call to a provider whose circuit is open or has no half-open slot free.
type CircuitOpenError struct {
	Error
	Provider string
}

func NewCircuitOpenError(provider string) *CircuitOpenError {
	return &CircuitOpenError{
		Error:    Error{Op: "manager.select", Message: fmt.Sprintf("provider %q circuit is open", provider)},
		Provider: provider,
	}
}

// AuthenticationError is raised when a provider rejects credentials.
type AuthenticationError struct {
	Error
	Provider string
}

func NewAuthenticationError(provider string, err error) *AuthenticationError {
	return &AuthenticationError{
		Error:    Error{Op: "adapter.send", Message: fmt.Sprintf("provider %q authentication failed", provider), Err: err},
		Provider: provider,
	}
}

// ConfigurationError is raised by Configuration.Validate.
type ConfigurationError struct {
	Error
}

func NewConfigurationError(message string) *ConfigurationError {
	return &ConfigurationError{Error: Error{Op: "config.validate", Message: message}}
}

// NoProvidersAvailableError is terminal: the conductor never retries or
// wraps it further.
type NoProvidersAvailableError struct {
	Error
	AttemptedProviders []string
	Errors             map[string]string
}

func NewNoProvidersAvailableError(attempted []string, errs map[string]string) *NoProvidersAvailableError {
	return &NoProvidersAvailableError{
		Error:              Error{Op: "manager.select", Message: "no providers available"},
		AttemptedProviders: attempted,
		Errors:             errs,
	}
}
