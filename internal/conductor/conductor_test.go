package conductor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TakumaLee/dispatch/internal/adapter"
	"github.com/TakumaLee/dispatch/internal/circuit"
	"github.com/TakumaLee/dispatch/internal/config"
	"github.com/TakumaLee/dispatch/internal/dispatcherr"
	"github.com/TakumaLee/dispatch/internal/health"
	"github.com/TakumaLee/dispatch/internal/manager"
	"github.com/TakumaLee/dispatch/internal/ratelimit"
	"github.com/TakumaLee/dispatch/internal/subprocess"
	"github.com/TakumaLee/dispatch/internal/taxonomy"
)

// scriptStep is one queued outcome for a scriptedAdapter.Send call.
type scriptStep struct {
	resp adapter.Response
	err  error
}

// scriptedAdapter returns its steps in order, repeating the last one once
// the queue is drained.
type scriptedAdapter struct {
	name  string
	mu    sync.Mutex
	steps []scriptStep
	calls int32
}

func (s *scriptedAdapter) Name() string                       { return s.name }
func (s *scriptedAdapter) DisplayName() string                { return s.name }
func (s *scriptedAdapter) BinaryName() string                 { return s.name }
func (s *scriptedAdapter) Capabilities() adapter.Capabilities { return adapter.Capabilities{} }
func (s *scriptedAdapter) ErrorPatterns() taxonomy.PatternSet  { return nil }
func (s *scriptedAdapter) InstructionFiles() []adapter.InstructionFile { return nil }
func (s *scriptedAdapter) Available() bool                    { return true }
func (s *scriptedAdapter) ValidateConfig() adapter.ValidationResult {
	return adapter.ValidationResult{Valid: true}
}
func (s *scriptedAdapter) HealthStatus() adapter.HealthStatus {
	return adapter.HealthStatus{Healthy: true}
}
func (s *scriptedAdapter) SupportsSessions() bool      { return false }
func (s *scriptedAdapter) SupportsDangerousMode() bool { return false }
func (s *scriptedAdapter) SupportsMCP() bool           { return false }
func (s *scriptedAdapter) FetchMCPServers(ctx context.Context) ([]adapter.MCPServerInfo, error) {
	return nil, nil
}
func (s *scriptedAdapter) ModelFamily(m string) string       { return m }
func (s *scriptedAdapter) ProviderModelName(f string) string { return f }

func (s *scriptedAdapter) Send(ctx context.Context, req adapter.Request) (adapter.Response, error) {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return adapter.Response{Output: "ok", Provider: s.name}, nil
	}
	step := s.steps[0]
	if len(s.steps) > 1 {
		s.steps = s.steps[1:]
	}
	if step.resp.Provider == "" && step.err == nil {
		step.resp.Provider = s.name
	}
	return step.resp, step.err
}

func scriptedFactory(a *scriptedAdapter) adapter.Factory {
	return func(_ subprocess.Runner, _ adapter.Config) (adapter.Adapter, error) {
		return a, nil
	}
}

type testHarness struct {
	cfg  *config.Configuration
	mgr  *manager.Manager
	cond *Conductor
}

func newHarness(t *testing.T, adapters map[string]*scriptedAdapter, order []string, fallback []string) *testHarness {
	t.Helper()
	b := config.NewBuilder().DefaultProvider(order[0])
	if len(fallback) > 0 {
		b = b.FallbackProviders(fallback...)
	}
	for _, name := range order {
		b = b.RegisterProvider(name, scriptedFactory(adapters[name])).
			Provider(name, config.ProviderConfig{Enabled: true})
	}
	b = b.CircuitBreaker(circuit.Config{Enabled: true, FailThreshold: 3, OpenTimeout: time.Hour, SuccessThreshold: 1, HalfOpenMaxCalls: 1}).
		// Health gating is off: a zero Threshold would be defaulted to 0.5, and
		// one failure would then take the only provider out of selection.
		Health(health.Config{Enabled: false, Window: 10}).
		RateLimit(ratelimit.Config{DefaultResetAfter: time.Hour}).
		Retry(config.RetryConfig{Enabled: true, MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond})

	cfg, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	mgr := manager.New(cfg, nil)
	return &testHarness{cfg: cfg, mgr: mgr, cond: New(cfg, mgr)}
}

// Scenario 1: happy path.
func TestSend_HappyPath(t *testing.T) {
	a := &scriptedAdapter{name: "test", steps: []scriptStep{
		{resp: adapter.Response{Output: "ok", ExitCode: 0}},
	}}
	h := newHarness(t, map[string]*scriptedAdapter{"test": a}, []string{"test"}, nil)

	resp, err := h.cond.Send(context.Background(), "hi", "", "", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Output != "ok" {
		t.Fatalf("got output %q", resp.Output)
	}
	snap := h.cond.Metrics().Snapshot()
	if snap.TotalAttempts != 1 || snap.TotalSuccesses != 1 || snap.TotalSwitches != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

// Scenario 2: retry-then-succeed on timeout.
func TestSend_RetryThenSucceedOnTimeout(t *testing.T) {
	a := &scriptedAdapter{name: "test", steps: []scriptStep{
		{err: dispatcherr.NewTimeoutError("test", time.Second, nil)},
		{resp: adapter.Response{Output: "recovered"}},
	}}
	h := newHarness(t, map[string]*scriptedAdapter{"test": a}, []string{"test"}, nil)

	resp, err := h.cond.Send(context.Background(), "hi", "", "", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Output != "recovered" {
		t.Fatalf("got output %q", resp.Output)
	}
	snap := h.cond.Metrics().Snapshot()
	if snap.TotalAttempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", snap.TotalAttempts)
	}
	if snap.TotalFailures != 1 || snap.TotalSuccesses != 1 {
		t.Fatalf("expected 1 failure + 1 success, got %+v", snap)
	}
}

// Scenario 3: rate-limit triggers switch.
func TestSend_RateLimitTriggersSwitch(t *testing.T) {
	reset := time.Now().Add(time.Hour)
	a := &scriptedAdapter{name: "a", steps: []scriptStep{
		{err: dispatcherr.NewRateLimitError("a", reset, nil)},
	}}
	b := &scriptedAdapter{name: "b", steps: []scriptStep{
		{resp: adapter.Response{Output: "ok"}},
	}}
	h := newHarness(t, map[string]*scriptedAdapter{"a": a, "b": b}, []string{"a", "b"}, []string{"b"})

	var switched config.SwitchEvent
	h.cfg.Callbacks.OnProviderSwitch(func(e config.SwitchEvent) { switched = e })

	resp, err := h.cond.Send(context.Background(), "hi", "a", "", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Provider != "b" {
		t.Fatalf("expected provider b, got %q", resp.Provider)
	}
	available := h.mgr.AvailableProviders()
	for _, p := range available {
		if p == "a" {
			t.Fatal("expected a to be rate-limited and unavailable")
		}
	}
	if switched.From != "a" || switched.To != "b" {
		t.Fatalf("unexpected switch event: %+v", switched)
	}
}

// Scenario 4: circuit opens after F failures.
func TestSend_CircuitOpensAfterThreshold(t *testing.T) {
	a := &scriptedAdapter{name: "solo", steps: []scriptStep{
		{err: dispatcherr.NewProviderError("solo", "send", "boom", nil)},
	}}
	h := newHarness(t, map[string]*scriptedAdapter{"solo": a}, []string{"solo"}, nil)

	var opens int
	h.cfg.Callbacks.OnCircuitOpen(func(string) { opens++ })

	_, err := h.cond.Send(context.Background(), "hi", "solo", "", Options{})
	if err == nil {
		t.Fatal("expected an error once the circuit opens and no fallback exists")
	}
	if opens != 1 {
		t.Fatalf("expected circuit_open to fire exactly once, got %d", opens)
	}
	if _, err := h.mgr.Select("solo"); err == nil {
		t.Fatal("expected NoProvidersAvailableError from Select after circuit opens")
	}
}

// Scenario 5: all providers exhausted.
func TestSend_AllProvidersExhausted(t *testing.T) {
	reset := time.Now().Add(time.Hour)
	a := &scriptedAdapter{name: "a", steps: []scriptStep{{err: dispatcherr.NewRateLimitError("a", reset, nil)}}}
	b := &scriptedAdapter{name: "b", steps: []scriptStep{{err: dispatcherr.NewRateLimitError("b", reset, nil)}}}
	h := newHarness(t, map[string]*scriptedAdapter{"a": a, "b": b}, []string{"a", "b"}, []string{"b"})

	_, err := h.cond.Send(context.Background(), "hi", "a", "", Options{})
	if err == nil {
		t.Fatal("expected NoProvidersAvailableError")
	}
	var noneErr *dispatcherr.NoProvidersAvailableError
	if !dispatcherrAs(err, &noneErr) {
		t.Fatalf("expected NoProvidersAvailableError, got %T: %v", err, err)
	}
}

// dispatcherrAs is a tiny errors.As wrapper kept local to avoid importing
// "errors" just for one call site across two tests.
func dispatcherrAs(err error, target **dispatcherr.NoProvidersAvailableError) bool {
	for err != nil {
		if e, ok := err.(*dispatcherr.NoProvidersAvailableError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Scenario 6: error classification table.
func TestClassify_Table(t *testing.T) {
	cases := []struct {
		msg  string
		want taxonomy.Category
	}{
		{"rate limit exceeded", taxonomy.RateLimited},
		{"HTTP 429", taxonomy.RateLimited},
		{"unauthorized", taxonomy.AuthExpired},
		{"HTTP 401", taxonomy.AuthExpired},
		{"connection timed out", taxonomy.Timeout},
		{"some random", taxonomy.Unknown},
	}
	for _, c := range cases {
		got := taxonomy.ClassifyOrdered(c.msg, nil)
		if got != c.want {
			t.Errorf("classify(%q) = %q, want %q", c.msg, got, c.want)
		}
	}
}

// Scenario 7: half-open admission cap.
func TestAdmit_HalfOpenCapAdmitsOnlyH(t *testing.T) {
	cfg := circuit.Config{Enabled: true, FailThreshold: 1, OpenTimeout: time.Millisecond, SuccessThreshold: 5, HalfOpenMaxCalls: 2}
	breaker := circuit.New("p", cfg, circuit.Listeners{})
	breaker.RecordFailure()
	time.Sleep(5 * time.Millisecond)

	var wg sync.WaitGroup
	admitted := int32(0)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if breaker.Allow() {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()
	if admitted != 2 {
		t.Fatalf("expected exactly 2 admitted half-open calls, got %d", admitted)
	}
}

// Scenario 8: callback panic isolation.
func TestSwitchProvider_CallbackPanicIsolation(t *testing.T) {
	a := &scriptedAdapter{name: "a"}
	b := &scriptedAdapter{name: "b"}
	h := newHarness(t, map[string]*scriptedAdapter{"a": a, "b": b}, []string{"a", "b"}, []string{"b"})

	var secondRan bool
	h.cfg.Callbacks.OnProviderSwitch(func(config.SwitchEvent) { panic("boom") })
	h.cfg.Callbacks.OnProviderSwitch(func(e config.SwitchEvent) { secondRan = true })

	if _, err := h.mgr.SwitchProvider("manual", nil); err != nil {
		t.Fatal(err)
	}
	if !secondRan {
		t.Fatal("expected second listener to run despite first panicking")
	}
}

func TestExecuteDirect_BypassesOrchestration(t *testing.T) {
	a := &scriptedAdapter{name: "solo", steps: []scriptStep{
		{err: dispatcherr.NewProviderError("solo", "send", "boom", nil)},
	}}
	h := newHarness(t, map[string]*scriptedAdapter{"solo": a}, []string{"solo"}, nil)

	_, err := h.cond.ExecuteDirect(context.Background(), "hi", "solo", "", Options{})
	if err == nil {
		t.Fatal("expected the adapter error to surface unwrapped")
	}
	snap := h.cond.Metrics().Snapshot()
	if snap.TotalAttempts != 0 {
		t.Fatalf("ExecuteDirect must not touch metrics, got %+v", snap)
	}
}

func TestStatus_ReportsCurrentProviderAndMetrics(t *testing.T) {
	a := &scriptedAdapter{name: "test"}
	h := newHarness(t, map[string]*scriptedAdapter{"test": a}, []string{"test"}, nil)

	if _, err := h.cond.Send(context.Background(), "hi", "", "", Options{}); err != nil {
		t.Fatal(err)
	}
	status := h.cond.Status()
	if status.CurrentProvider != "test" {
		t.Fatalf("got %q", status.CurrentProvider)
	}
	if status.Metrics.TotalSuccesses != 1 {
		t.Fatalf("expected 1 success in status metrics, got %+v", status.Metrics)
	}
}

func TestReset_ClearsMetricsAndManagerState(t *testing.T) {
	a := &scriptedAdapter{name: "solo", steps: []scriptStep{
		{err: dispatcherr.NewProviderError("solo", "send", "boom", nil)},
	}}
	h := newHarness(t, map[string]*scriptedAdapter{"solo": a}, []string{"solo"}, nil)

	h.cond.Send(context.Background(), "hi", "solo", "", Options{})
	h.cond.Reset()

	snap := h.cond.Metrics().Snapshot()
	if snap.TotalAttempts != 0 || snap.TotalFailures != 0 {
		t.Fatalf("expected Reset to clear metrics, got %+v", snap)
	}
	if _, err := h.mgr.Select("solo"); err != nil {
		t.Fatalf("expected solo to be viable again after Reset: %v", err)
	}
}
