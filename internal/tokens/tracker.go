// Package tokens implements the default in-memory token_tracker: a passive
// collector that aggregates TokenEvent callbacks by provider and model.
// The orchestrator itself persists nothing (callers who want durable
// telemetry subscribe their own on_tokens_used listener instead).
package tokens

import (
	"sync"

	"github.com/TakumaLee/dispatch/internal/config"
)

// Totals is one provider+model bucket's running token counts.
type Totals struct {
	Provider string
	Model    string
	Calls    int
	Input    int
	Output   int
	Total    int
}

// Tracker aggregates TokenEvents it receives, keyed by provider+model.
type Tracker struct {
	mu      sync.Mutex
	buckets map[string]*Totals
	events  []config.TokenEvent
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{buckets: make(map[string]*Totals)}
}

// Attach registers the tracker as an on_tokens_used listener on cb.
func (t *Tracker) Attach(cb *config.Callbacks) {
	cb.OnTokensUsed(t.record)
}

func (t *Tracker) record(e config.TokenEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := e.Provider + "\x00" + e.Model
	b, ok := t.buckets[key]
	if !ok {
		b = &Totals{Provider: e.Provider, Model: e.Model}
		t.buckets[key] = b
	}
	b.Calls++
	b.Input += e.Input
	b.Output += e.Output
	b.Total += e.Total
	t.events = append(t.events, e)
}

// ByProviderAndModel returns a snapshot of every bucket seen so far.
func (t *Tracker) ByProviderAndModel() []Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Totals, 0, len(t.buckets))
	for _, b := range t.buckets {
		out = append(out, *b)
	}
	return out
}

// Grand returns the sum of every bucket's totals.
func (t *Tracker) Grand() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	var g Totals
	for _, b := range t.buckets {
		g.Calls += b.Calls
		g.Input += b.Input
		g.Output += b.Output
		g.Total += b.Total
	}
	return g
}

// Events returns every TokenEvent recorded so far, oldest first.
func (t *Tracker) Events() []config.TokenEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]config.TokenEvent, len(t.events))
	copy(out, t.events)
	return out
}

// Reset clears all recorded totals and events.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buckets = make(map[string]*Totals)
	t.events = nil
}
