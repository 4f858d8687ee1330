// Package conductor implements the outer control loop (§4.I): select a
// provider, invoke it, classify any failure, update manager/metrics state,
// and decide whether to retry the same provider, switch to a fallback, or
// give up. This is the hard 25%-of-budget component the rest of the
// package tree exists to support.
package conductor

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/TakumaLee/dispatch/internal/adapter"
	"github.com/TakumaLee/dispatch/internal/config"
	"github.com/TakumaLee/dispatch/internal/dispatcherr"
	"github.com/TakumaLee/dispatch/internal/dispatchlog"
	"github.com/TakumaLee/dispatch/internal/manager"
	"github.com/TakumaLee/dispatch/internal/metrics"
	"github.com/TakumaLee/dispatch/internal/taxonomy"
)

var tracer = otel.Tracer("github.com/TakumaLee/dispatch/internal/conductor")

// Conductor owns the Metrics sink and the Manager, and is the orchestrator's
// only caller-facing entry point for an orchestrated call.
type Conductor struct {
	cfg     *config.Configuration
	manager *manager.Manager
	metrics *metrics.Sink
}

// New builds a Conductor over mgr, driven by cfg's retry/callback settings.
func New(cfg *config.Configuration, mgr *manager.Manager) *Conductor {
	return &Conductor{cfg: cfg, manager: mgr, metrics: metrics.New()}
}

// Options carries the per-call overrides a caller can pass to Send, layered
// on top of the provider's own ProviderConfig (§4.F "options.X overrides
// config.X").
type Options struct {
	Timeout       time.Duration
	Env           []string
	SessionID     string
	DangerousMode bool
	OnStreamLine  func(line string)
}

func (o Options) toRequest(prompt, model string) adapter.Request {
	return adapter.Request{
		Prompt:        prompt,
		Model:         model,
		Timeout:       o.Timeout,
		Env:           o.Env,
		SessionID:     o.SessionID,
		DangerousMode: o.DangerousMode,
		OnStreamLine:  o.OnStreamLine,
	}
}

// Metrics returns the conductor's metrics sink.
func (c *Conductor) Metrics() *metrics.Sink { return c.metrics }

// Send runs the orchestrated loop: select a provider, invoke it, and on
// failure either retry or switch to a fallback, bounded by the configured
// retry policy.
func (c *Conductor) Send(ctx context.Context, prompt, preferred, model string, opts Options) (adapter.Response, error) {
	retryCfg := c.cfg.Orchestration.Retry
	maxAttempts := retryCfg.MaxAttempts

	ctx, span := tracer.Start(ctx, "dispatch.send", trace.WithAttributes(
		attribute.String("preferred_provider", preferred),
		attribute.Int("max_attempts", maxAttempts),
	))
	defer span.End()

	retries := 0

	for {
		a, err := c.manager.Select(preferred)
		if err != nil {
			return adapter.Response{}, err
		}
		preferred = a.Name()
		c.metrics.RecordAttempt(preferred)

		adapterCtx, adapterSpan := tracer.Start(ctx, "dispatch.adapter.send", trace.WithAttributes(
			attribute.String("provider", preferred),
			attribute.Int("attempt", retries+1),
		))

		if !c.manager.Admit(preferred) {
			adapterSpan.SetAttributes(attribute.String("error_category", string(taxonomy.Unknown)))
			adapterSpan.End()
			cerr := dispatcherr.NewCircuitOpenError(preferred)
			c.handleFailure(ctx, cerr, preferred, "switch")
			if !c.shouldRetry(ctx, &retries, maxAttempts) {
				return adapter.Response{}, cerr
			}
			continue
		}

		t0 := time.Now()
		resp, sendErr := a.Send(adapterCtx, opts.toRequest(prompt, model))
		duration := time.Since(t0)

		if sendErr == nil {
			adapterSpan.SetAttributes(attribute.String("error_category", "ok"))
			adapterSpan.End()
			c.metrics.RecordSuccess(preferred, duration)
			c.manager.RecordSuccess(preferred)
			if resp.Tokens != nil {
				c.cfg.Callbacks.EmitTokensUsed(config.TokenEvent{
					Provider: preferred,
					Model:    resp.Model,
					Input:    resp.Tokens.Input,
					Output:   resp.Tokens.Output,
					Total:    resp.Tokens.Total,
					At:       time.Now(),
				})
			}
			return resp, nil
		}
		adapterSpan.SetAttributes(attribute.String("error_category", string(classify(sendErr))))
		adapterSpan.End()

		var rateErr *dispatcherr.RateLimitError
		var circuitErr *dispatcherr.CircuitOpenError
		var timeoutErr *dispatcherr.TimeoutError
		var providerErr *dispatcherr.ProviderError
		var noProvidersErr *dispatcherr.NoProvidersAvailableError

		switch {
		case errors.As(sendErr, &noProvidersErr):
			return adapter.Response{}, sendErr

		case errors.As(sendErr, &rateErr):
			c.manager.MarkRateLimited(preferred, rateErr.ResetTime)
			c.handleFailure(ctx, sendErr, preferred, "switch")
			if !c.shouldRetry(ctx, &retries, maxAttempts) {
				return adapter.Response{}, sendErr
			}

		case errors.As(sendErr, &circuitErr):
			c.handleFailure(ctx, sendErr, preferred, "switch")
			if !c.shouldRetry(ctx, &retries, maxAttempts) {
				return adapter.Response{}, sendErr
			}

		case errors.As(sendErr, &timeoutErr) || errors.As(sendErr, &providerErr):
			c.manager.RecordFailure(preferred)
			c.handleFailure(ctx, sendErr, preferred, "retry")
			if !c.shouldRetry(ctx, &retries, maxAttempts) {
				return adapter.Response{}, sendErr
			}

		default:
			// Unrecognized adapter-level failure: records the failure both
			// directly and again inside handleFailure before wrapping on
			// exhaustion. Deliberate, not collapsed into a single call.
			cat := classify(sendErr)
			c.metrics.RecordFailure(preferred, string(cat))
			c.manager.RecordFailure(preferred)
			c.handleFailure(ctx, sendErr, preferred, "switch")
			if !c.shouldRetry(ctx, &retries, maxAttempts) {
				return adapter.Response{}, dispatcherr.NewProviderError(preferred, "conductor.send", "unrecognized adapter failure", sendErr)
			}
		}
	}
}

// ExecuteDirect invokes provider directly, bypassing selection, retry, and
// circuit/health bookkeeping entirely; adapter-level errors surface as-is.
func (c *Conductor) ExecuteDirect(ctx context.Context, prompt, provider, model string, opts Options) (adapter.Response, error) {
	a, err := c.manager.SelectDirect(provider)
	if err != nil {
		return adapter.Response{}, err
	}
	return a.Send(ctx, opts.toRequest(prompt, model))
}

// handleFailure is §4.I's handle_failure: always records the failure in
// metrics; on "switch" strategy, attempts a provider switch via the
// manager (swallowing NoProvidersAvailableError — the outer loop throws on
// its own next Select or on retry exhaustion); on "retry" strategy, sleeps
// the configured backoff.
func (c *Conductor) handleFailure(ctx context.Context, err error, provider, strategy string) {
	cat := classify(err)
	c.metrics.RecordFailure(provider, string(cat))

	switch strategy {
	case "switch":
		if c.cfg.Orchestration.AutoSwitchOnError {
			reason := errorClassName(err)
			newAdapter, serr := c.manager.SwitchProvider(reason, map[string]any{"message": err.Error()})
			if serr == nil {
				c.metrics.RecordSwitch(provider, newAdapter.Name(), reason)
			}
		}
	case "retry":
		if d := c.calculateRetryDelay(); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
			}
		}
	}
}

func (c *Conductor) shouldRetry(ctx context.Context, retries *int, max int) bool {
	if ctx.Err() != nil {
		return false
	}
	*retries++
	return c.cfg.Orchestration.Retry.Enabled && *retries < max
}

// calculateRetryDelay returns base_delay*(1+rand()*0.5) when jitter is
// enabled, else base_delay, capped at max_delay. Deliberately does NOT
// compound by exponential_base^attempt even though ExponentialBase is
// configured — see RetryConfig's doc comment and DESIGN.md: this mirrors a
// known discrepancy in the system this is modeled on rather than silently
// fixing it.
func (c *Conductor) calculateRetryDelay() time.Duration {
	r := c.cfg.Orchestration.Retry
	delay := r.BaseDelay
	if r.Jitter {
		delay = time.Duration(float64(r.BaseDelay) * (1 + rand.Float64()*0.5))
	}
	if delay > r.MaxDelay {
		delay = r.MaxDelay
	}
	return delay
}

// errorClassName names the Go error type behind err, matching the literal
// class names §8 scenario 3 uses for a provider_switch reason ("RateLimitError",
// not the taxonomy slug "rate_limited"). Falls back to the taxonomy category
// for errors that don't carry one of the dispatcher's typed error types.
func errorClassName(err error) string {
	var rateErr *dispatcherr.RateLimitError
	var authErr *dispatcherr.AuthenticationError
	var timeoutErr *dispatcherr.TimeoutError
	var circuitErr *dispatcherr.CircuitOpenError
	var providerErr *dispatcherr.ProviderError
	switch {
	case errors.As(err, &rateErr):
		return "RateLimitError"
	case errors.As(err, &authErr):
		return "AuthenticationError"
	case errors.As(err, &timeoutErr):
		return "TimeoutError"
	case errors.As(err, &circuitErr):
		return "CircuitOpenError"
	case errors.As(err, &providerErr):
		return "ProviderError"
	default:
		return string(classify(err))
	}
}

// classify maps a typed dispatcher error back to a taxonomy.Category for
// metrics bucketing and switch reasons.
func classify(err error) taxonomy.Category {
	var rateErr *dispatcherr.RateLimitError
	var authErr *dispatcherr.AuthenticationError
	var timeoutErr *dispatcherr.TimeoutError
	switch {
	case errors.As(err, &rateErr):
		return taxonomy.RateLimited
	case errors.As(err, &authErr):
		return taxonomy.AuthExpired
	case errors.As(err, &timeoutErr):
		return taxonomy.Timeout
	default:
		return taxonomy.ClassifyOrdered(err.Error(), nil)
	}
}

// Status reports the conductor's live state for dashboards and the CLI's
// `status` subcommand.
type Status struct {
	CurrentProvider    string
	AvailableProviders []string
	Health             []manager.ProviderHealth
	Metrics            metrics.Snapshot
}

func (c *Conductor) Status() Status {
	return Status{
		CurrentProvider:    c.manager.CurrentProvider(),
		AvailableProviders: c.manager.AvailableProviders(),
		Health:             c.manager.HealthStatus(),
		Metrics:            c.metrics.Snapshot(),
	}
}

// Reset resets the manager's orchestration state and the metrics sink.
func (c *Conductor) Reset() {
	c.manager.Reset()
	c.metrics.Reset()
	dispatchlog.Info("conductor reset")
}
