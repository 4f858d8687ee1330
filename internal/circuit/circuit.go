// Package circuit implements a per-provider three-state circuit breaker:
// closed, open, and half-open, with a bounded number of concurrent
// half-open probes.
package circuit

import (
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures a single provider's circuit breaker.
type Config struct {
	Enabled          bool
	FailThreshold    int
	SuccessThreshold int
	OpenTimeout      time.Duration
	HalfOpenMaxCalls int
}

// defaulted fills in the zero-value defaults, mirroring what the dispatcher's
// configuration builder applies when a caller leaves these unset.
func (c Config) defaulted() Config {
	if c.FailThreshold <= 0 {
		c.FailThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 1
	}
	return c
}

// Listeners receive circuit_open/circuit_close notifications. Both are
// optional; a nil listener is simply not called.
type Listeners struct {
	OnOpen  func(provider string)
	OnClose func(provider string)
}

// Breaker is a single provider's circuit breaker.
type Breaker struct {
	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	halfOpenInFlight int
	lastFailure      time.Time
	lastStateChange  time.Time
	openedAt         time.Time

	cfg      Config
	provider string
	listen   Listeners
}

// New creates a Breaker for provider, starting closed.
func New(provider string, cfg Config, listen Listeners) *Breaker {
	return &Breaker{
		state:           Closed,
		lastStateChange: time.Now(),
		cfg:             cfg.defaulted(),
		provider:        provider,
		listen:          listen,
	}
}

// Allow reports whether a call should be admitted right now. It performs the
// lazy open->half-open transition when the open timeout has elapsed, and
// enforces the half-open admission cap: once HalfOpenMaxCalls probes are in
// flight, further calls are refused without mutating failure/success counts.
func (b *Breaker) Allow() bool {
	if !b.cfg.Enabled {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.lastStateChange) >= b.cfg.OpenTimeout {
			b.toHalfOpenLocked()
			return b.admitHalfOpenLocked()
		}
		return false
	case HalfOpen:
		return b.admitHalfOpenLocked()
	}
	return false
}

func (b *Breaker) admitHalfOpenLocked() bool {
	if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
		return false
	}
	b.halfOpenInFlight++
	return true
}

func (b *Breaker) toHalfOpenLocked() {
	b.state = HalfOpen
	b.successes = 0
	b.halfOpenInFlight = 0
	b.lastStateChange = time.Now()
}

// RecordSuccess records a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	var fireClose bool
	switch b.state {
	case HalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.closeLocked()
			fireClose = true
		}
	case Closed:
		b.failures = 0
	}
	b.mu.Unlock()

	if fireClose && b.listen.OnClose != nil {
		safeCall(func() { b.listen.OnClose(b.provider) })
	}
}

// RecordFailure records a failed call outcome. A single failure while
// half-open immediately re-opens the circuit. A disabled breaker counts the
// failure but never opens.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	var fireOpen bool
	b.lastFailure = time.Now()

	switch b.state {
	case Closed:
		b.failures++
		if b.cfg.Enabled && b.failures >= b.cfg.FailThreshold {
			b.openLocked()
			fireOpen = true
		}
	case HalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		b.openLocked()
		fireOpen = true
	}
	b.mu.Unlock()

	if fireOpen && b.listen.OnOpen != nil {
		safeCall(func() { b.listen.OnOpen(b.provider) })
	}
}

func (b *Breaker) openLocked() {
	b.state = Open
	b.openedAt = time.Now()
	b.lastStateChange = time.Now()
	b.failures = 0
}

func (b *Breaker) closeLocked() {
	b.state = Closed
	b.failures = 0
	b.successes = 0
	b.lastStateChange = time.Now()
	b.openedAt = time.Time{}
}

// safeCall recovers a panicking listener so it can never break the caller.
func safeCall(fn func()) {
	defer func() { recover() }()
	fn()
}

// State returns the current state, performing the lazy open->half-open
// transition first if the open timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open && time.Since(b.lastStateChange) >= b.cfg.OpenTimeout {
		b.toHalfOpenLocked()
	}
	return b.state
}

// OpenNow reports whether the circuit currently rejects calls outright
// (does not itself perform admission bookkeeping; use Allow for that).
func (b *Breaker) OpenNow() bool { return b.State() == Open }

// Reset returns the breaker to its initial closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.successes = 0
	b.halfOpenInFlight = 0
	b.lastStateChange = time.Now()
	b.openedAt = time.Time{}
}

// StatusInfo returns a reporting snapshot.
func (b *Breaker) StatusInfo() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	info := map[string]any{
		"state":    b.state.String(),
		"failures": b.failures,
	}
	if !b.lastFailure.IsZero() {
		info["lastFailure"] = b.lastFailure.Format(time.RFC3339)
	}
	if b.state == HalfOpen {
		info["successes"] = b.successes
		info["halfOpenInFlight"] = b.halfOpenInFlight
	}
	return info
}

// Registry manages one Breaker per provider, created lazily on first access.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
	listen   Listeners
}

// NewRegistry creates a Registry that lazily builds breakers using cfg/listen.
func NewRegistry(cfg Config, listen Listeners) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
		listen:   listen,
	}
}

// Get returns the breaker for provider, creating it under double-checked
// locking if this is the first access.
func (r *Registry) Get(provider string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[provider]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[provider]; ok {
		return b
	}
	b = New(provider, r.cfg, r.listen)
	r.breakers[provider] = b
	return b
}

// Status returns a snapshot of every breaker created so far.
func (r *Registry) Status() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]any, len(r.breakers))
	for name, b := range r.breakers {
		result[name] = b.StatusInfo()
	}
	return result
}

// Reset resets the breaker for provider, if one has been created. Reports
// whether a breaker existed.
func (r *Registry) Reset(provider string) bool {
	r.mu.RLock()
	b, ok := r.breakers[provider]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	b.Reset()
	return true
}

// ResetAll resets every breaker in the registry.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}
