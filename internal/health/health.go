// Package health tracks a bounded sliding window of recent outcomes per
// provider and derives a success rate from it.
package health

import "sync"

// Config configures the health window.
type Config struct {
	Enabled   bool
	Window    int     // number of recent outcomes retained
	Threshold float64 // minimum success rate considered healthy
}

func (c Config) defaulted() Config {
	if c.Window <= 0 {
		c.Window = 100
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.5
	}
	return c
}

// Window is a fixed-capacity ring buffer of success/failure outcomes for one
// provider, along with running counts kept in sync with the ring's contents.
type Window struct {
	mu        sync.Mutex
	cfg       Config
	outcomes  []bool // true = success
	start     int
	size      int
	successes int
	failures  int
}

// New creates a Window using cfg.
func New(cfg Config) *Window {
	cfg = cfg.defaulted()
	return &Window{
		cfg:      cfg,
		outcomes: make([]bool, cfg.Window),
	}
}

func (w *Window) pushLocked(success bool) {
	if w.size == len(w.outcomes) {
		// Evict the oldest entry, keeping successes/failures paired with it.
		evicted := w.outcomes[w.start]
		if evicted {
			w.successes--
		} else {
			w.failures--
		}
		w.start = (w.start + 1) % len(w.outcomes)
		w.size--
	}
	idx := (w.start + w.size) % len(w.outcomes)
	w.outcomes[idx] = success
	w.size++
	if success {
		w.successes++
	} else {
		w.failures++
	}
}

// RecordSuccess pushes a success outcome.
func (w *Window) RecordSuccess() {
	if !w.cfg.Enabled {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pushLocked(true)
}

// RecordFailure pushes a failure outcome.
func (w *Window) RecordFailure() {
	if !w.cfg.Enabled {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pushLocked(false)
}

// SuccessRate returns recent successes / window size, or 1.0 if the window
// is empty.
func (w *Window) SuccessRate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.size == 0 {
		return 1.0
	}
	return float64(w.successes) / float64(w.size)
}

// Healthy reports whether the window is empty or the success rate meets the
// configured threshold. Always true when disabled.
func (w *Window) Healthy() bool {
	if !w.cfg.Enabled {
		return true
	}
	return w.SuccessRate() >= w.cfg.Threshold
}

// Counts returns the current (successes, failures, size) for reporting.
func (w *Window) Counts() (successes, failures, size int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.successes, w.failures, w.size
}

// Reset clears the window.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.start, w.size, w.successes, w.failures = 0, 0, 0, 0
}

// Registry owns one Window per provider, created lazily.
type Registry struct {
	mu      sync.RWMutex
	windows map[string]*Window
	cfg     Config
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{windows: make(map[string]*Window), cfg: cfg}
}

func (r *Registry) Get(provider string) *Window {
	r.mu.RLock()
	w, ok := r.windows[provider]
	r.mu.RUnlock()
	if ok {
		return w
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.windows[provider]; ok {
		return w
	}
	w = New(r.cfg)
	r.windows[provider] = w
	return w
}

func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.windows {
		w.Reset()
	}
}
