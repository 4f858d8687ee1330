package config

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/TakumaLee/dispatch/internal/dispatchlog"
)

// TokenEvent reports token accounting for one completed call.
type TokenEvent struct {
	Provider  string
	Model     string
	Input     int
	Output    int
	Total     int
	At        time.Time
	RequestID string
}

// SwitchEvent reports one provider failover.
type SwitchEvent struct {
	From    string
	To      string
	Reason  string
	Context map[string]any
	At      time.Time
}

// Callbacks is the dispatcher's small event bus: on_tokens_used,
// on_provider_switch, on_circuit_open, on_circuit_close. Listeners are
// called in registration order; a panicking listener is recovered, logged,
// and never propagates past Emit* to the caller.
type Callbacks struct {
	mu            sync.Mutex
	tokensUsed    []func(TokenEvent)
	providerSwitch []func(SwitchEvent)
	circuitOpen   []func(provider string)
	circuitClose  []func(provider string)
}

// NewCallbacks returns an empty callback bus.
func NewCallbacks() *Callbacks { return &Callbacks{} }

func (c *Callbacks) OnTokensUsed(fn func(TokenEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokensUsed = append(c.tokensUsed, fn)
}

func (c *Callbacks) OnProviderSwitch(fn func(SwitchEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providerSwitch = append(c.providerSwitch, fn)
}

func (c *Callbacks) OnCircuitOpen(fn func(provider string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.circuitOpen = append(c.circuitOpen, fn)
}

func (c *Callbacks) OnCircuitClose(fn func(provider string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.circuitClose = append(c.circuitClose, fn)
}

func (c *Callbacks) EmitTokensUsed(e TokenEvent) {
	c.mu.Lock()
	listeners := append([]func(TokenEvent){}, c.tokensUsed...)
	c.mu.Unlock()
	for _, fn := range listeners {
		emitSafely("tokens_used", func() { fn(e) })
	}
}

func (c *Callbacks) EmitProviderSwitch(e SwitchEvent) {
	c.mu.Lock()
	listeners := append([]func(SwitchEvent){}, c.providerSwitch...)
	c.mu.Unlock()
	for _, fn := range listeners {
		emitSafely("provider_switch", func() { fn(e) })
	}
}

func (c *Callbacks) EmitCircuitOpen(provider string) {
	c.mu.Lock()
	listeners := append([]func(string){}, c.circuitOpen...)
	c.mu.Unlock()
	for _, fn := range listeners {
		emitSafely("circuit_open", func() { fn(provider) })
	}
}

func (c *Callbacks) EmitCircuitClose(provider string) {
	c.mu.Lock()
	listeners := append([]func(string){}, c.circuitClose...)
	c.mu.Unlock()
	for _, fn := range listeners {
		emitSafely("circuit_close", func() { fn(provider) })
	}
}

// emitSafely recovers a panicking listener, logs it at Error level with the
// recovered value and a stack trace, and lets the remaining listeners for
// that event keep running.
func emitSafely(event string, call func()) {
	defer func() {
		if r := recover(); r != nil {
			dispatchlog.Error("callback listener panicked", "event", event, "recovered", r, "stack", string(debug.Stack()))
		}
	}()
	call()
}
