package adapter

import (
	"context"
	"fmt"

	"github.com/TakumaLee/dispatch/internal/subprocess"
	"github.com/TakumaLee/dispatch/internal/taxonomy"
)

// codexAdapter wraps the `codex` CLI.
type codexAdapter struct {
	runner subprocess.Runner
	cfg    Config
	binary string
}

func NewCodex(runner subprocess.Runner, cfg Config) (Adapter, error) {
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "codex"
	}
	return &codexAdapter{runner: runner, cfg: cfg, binary: binary}, nil
}

func (a *codexAdapter) Name() string                       { return "codex" }
func (a *codexAdapter) DisplayName() string                { return "Codex" }
func (a *codexAdapter) BinaryName() string                 { return a.binary }
func (a *codexAdapter) Capabilities() Capabilities         { return Capabilities{ToolUse: true, Sessions: true} }
func (a *codexAdapter) ErrorPatterns() taxonomy.PatternSet { return nil }
func (a *codexAdapter) InstructionFiles() []InstructionFile {
	return []InstructionFile{{Path: "AGENTS.md", Description: "Codex project instructions"}}
}

func (a *codexAdapter) Available() bool {
	_, ok := a.runner.Which(a.binary)
	return ok
}

func (a *codexAdapter) ValidateConfig() ValidationResult {
	if !a.Available() {
		return ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("binary %q not found on PATH", a.binary)}}
	}
	return ValidationResult{Valid: true}
}

func (a *codexAdapter) HealthStatus() HealthStatus {
	if !a.Available() {
		return HealthStatus{Healthy: false, Message: "binary not found"}
	}
	return HealthStatus{Healthy: true, Message: "ok"}
}

func (a *codexAdapter) SupportsSessions() bool      { return true }
func (a *codexAdapter) SupportsDangerousMode() bool { return false }
func (a *codexAdapter) SupportsMCP() bool           { return false }
func (a *codexAdapter) FetchMCPServers(ctx context.Context) ([]MCPServerInfo, error) {
	return nil, nil
}

func (a *codexAdapter) ModelFamily(model string) string         { return model }
func (a *codexAdapter) ProviderModelName(family string) string { return family }

func (a *codexAdapter) buildArgs(req Request) []string {
	model := req.Model
	if model == "" {
		model = a.cfg.Model
	}
	var args []string
	if model != "" {
		args = append(args, "--model", model)
	}
	if req.SessionID != "" {
		args = append(args, "--session", req.SessionID)
	}
	args = append(args, a.cfg.DefaultFlags...)
	args = append(args, "--prompt", req.Prompt)
	return args
}

func (a *codexAdapter) Send(ctx context.Context, req Request) (Response, error) {
	spec := runSpec{Argv: append([]string{a.binary}, a.buildArgs(req)...)}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = a.cfg.Timeout
	}
	return runCLI(ctx, a.runner, a.Name(), spec, timeout, req.OnStreamLine, a.ErrorPatterns())
}
