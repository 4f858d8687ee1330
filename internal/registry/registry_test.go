package registry

import (
	"context"
	"testing"

	"github.com/TakumaLee/dispatch/internal/adapter"
	"github.com/TakumaLee/dispatch/internal/subprocess"
)

type stubRunner struct{ which map[string]string }

func (s stubRunner) Which(b string) (string, bool) { p, ok := s.which[b]; return p, ok }
func (s stubRunner) Run(ctx context.Context, argv []string, opts subprocess.Options) (subprocess.Result, error) {
	return subprocess.Result{}, nil
}

func TestBuiltinRegistry_AllEightRegistered(t *testing.T) {
	r := NewBuiltinRegistry()
	want := []string{"claude", "cursor", "gemini", "github_copilot", "codex", "aider", "opencode", "kilocode"}
	for _, name := range want {
		if !r.Registered(name) {
			t.Errorf("expected %q to be registered", name)
		}
	}
	if len(r.All()) != len(want) {
		t.Errorf("expected %d builtins, got %d (%v)", len(want), len(r.All()), r.All())
	}
}

func TestAliases_ResolveToCanonical(t *testing.T) {
	r := NewBuiltinRegistry()
	if !r.Registered("anthropic") {
		t.Error("expected anthropic alias to resolve")
	}
	if !r.Registered("copilot") {
		t.Error("expected copilot alias to resolve")
	}
	f1, err := r.Get("anthropic")
	if err != nil {
		t.Fatal(err)
	}
	f2, err := r.Get("claude")
	if err != nil {
		t.Fatal(err)
	}
	a1, _ := f1(stubRunner{}, adapter.Config{})
	a2, _ := f2(stubRunner{}, adapter.Config{})
	if a1.Name() != a2.Name() {
		t.Errorf("alias and canonical should construct the same adapter: %q vs %q", a1.Name(), a2.Name())
	}
}

func TestGet_UnknownProvider_ReturnsNotFoundError(t *testing.T) {
	r := NewBuiltinRegistry()
	if _, err := r.Get("not-a-real-provider"); err == nil {
		t.Fatal("expected an error for an unregistered provider")
	}
}

func TestRegister_CustomFactory(t *testing.T) {
	r := New()
	r.Register("custom", adapter.NewClaude, "custom-alias")
	if !r.Registered("custom-alias") {
		t.Fatal("expected custom-alias to resolve")
	}
}

func TestAvailable_FiltersByBinaryPresence(t *testing.T) {
	r := NewBuiltinRegistry()
	runner := stubRunner{which: map[string]string{"claude": "/usr/bin/claude"}}
	avail := r.Available(runner)
	found := false
	for _, name := range avail {
		if name == "claude" {
			found = true
		}
		if name == "gemini" {
			t.Fatalf("gemini binary not on PATH, should not be available")
		}
	}
	if !found {
		t.Fatal("expected claude to be available")
	}
}

func TestReset_ClearsRegistrations(t *testing.T) {
	r := NewBuiltinRegistry()
	r.Reset()
	if len(r.All()) != 0 {
		t.Fatalf("expected empty registry after Reset, got %v", r.All())
	}
}
