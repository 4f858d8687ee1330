package adapter

import (
	"context"
	"fmt"

	"github.com/TakumaLee/dispatch/internal/subprocess"
	"github.com/TakumaLee/dispatch/internal/taxonomy"
)

// aiderAdapter wraps the `aider` CLI. It reads an optional .aider.conf.yml
// itself only to the extent of advertising it as an instruction file; the
// adapter never parses it.
type aiderAdapter struct {
	runner subprocess.Runner
	cfg    Config
	binary string
}

func NewAider(runner subprocess.Runner, cfg Config) (Adapter, error) {
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "aider"
	}
	return &aiderAdapter{runner: runner, cfg: cfg, binary: binary}, nil
}

func (a *aiderAdapter) Name() string                       { return "aider" }
func (a *aiderAdapter) DisplayName() string                { return "Aider" }
func (a *aiderAdapter) BinaryName() string                 { return a.binary }
func (a *aiderAdapter) Capabilities() Capabilities         { return Capabilities{ToolUse: true, Sessions: true} }
func (a *aiderAdapter) ErrorPatterns() taxonomy.PatternSet { return nil }
func (a *aiderAdapter) InstructionFiles() []InstructionFile {
	return []InstructionFile{{Path: ".aider.conf.yml", Description: "Aider configuration"}}
}

func (a *aiderAdapter) Available() bool {
	_, ok := a.runner.Which(a.binary)
	return ok
}

func (a *aiderAdapter) ValidateConfig() ValidationResult {
	if !a.Available() {
		return ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("binary %q not found on PATH", a.binary)}}
	}
	return ValidationResult{Valid: true}
}

func (a *aiderAdapter) HealthStatus() HealthStatus {
	if !a.Available() {
		return HealthStatus{Healthy: false, Message: "binary not found"}
	}
	return HealthStatus{Healthy: true, Message: "ok"}
}

func (a *aiderAdapter) SupportsSessions() bool      { return true }
func (a *aiderAdapter) SupportsDangerousMode() bool { return false }
func (a *aiderAdapter) SupportsMCP() bool           { return false }
func (a *aiderAdapter) FetchMCPServers(ctx context.Context) ([]MCPServerInfo, error) {
	return nil, nil
}

func (a *aiderAdapter) ModelFamily(model string) string         { return model }
func (a *aiderAdapter) ProviderModelName(family string) string { return family }

func (a *aiderAdapter) buildArgs(req Request) []string {
	model := req.Model
	if model == "" {
		model = a.cfg.Model
	}
	args := []string{"--yes"}
	if model != "" {
		args = append(args, "--model", model)
	}
	if req.SessionID != "" {
		args = append(args, "--restore-chat-history", req.SessionID)
	}
	args = append(args, a.cfg.DefaultFlags...)
	args = append(args, "--message", req.Prompt)
	return args
}

func (a *aiderAdapter) Send(ctx context.Context, req Request) (Response, error) {
	spec := runSpec{Argv: append([]string{a.binary}, a.buildArgs(req)...)}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = a.cfg.Timeout
	}
	return runCLI(ctx, a.runner, a.Name(), spec, timeout, req.OnStreamLine, a.ErrorPatterns())
}
