package adapter

import (
	"context"
	"fmt"

	"github.com/TakumaLee/dispatch/internal/subprocess"
	"github.com/TakumaLee/dispatch/internal/taxonomy"
)

type copilotAdapter struct {
	runner subprocess.Runner
	cfg    Config
	binary string
}

func NewCopilot(runner subprocess.Runner, cfg Config) (Adapter, error) {
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "copilot"
	}
	return &copilotAdapter{runner: runner, cfg: cfg, binary: binary}, nil
}

func (a *copilotAdapter) Name() string        { return "github_copilot" }
func (a *copilotAdapter) DisplayName() string { return "GitHub Copilot" }
func (a *copilotAdapter) BinaryName() string  { return a.binary }

func (a *copilotAdapter) Capabilities() Capabilities {
	return Capabilities{ToolUse: true, Sessions: true, DangerousMode: true}
}
func (a *copilotAdapter) ErrorPatterns() taxonomy.PatternSet { return nil }
func (a *copilotAdapter) InstructionFiles() []InstructionFile {
	return []InstructionFile{{Path: ".github/copilot-instructions.md", Description: "Copilot project instructions"}}
}

func (a *copilotAdapter) Available() bool {
	_, ok := a.runner.Which(a.binary)
	return ok
}

func (a *copilotAdapter) ValidateConfig() ValidationResult {
	if !a.Available() {
		return ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("binary %q not found on PATH", a.binary)}}
	}
	return ValidationResult{Valid: true}
}

func (a *copilotAdapter) HealthStatus() HealthStatus {
	if !a.Available() {
		return HealthStatus{Healthy: false, Message: "binary not found"}
	}
	return HealthStatus{Healthy: true, Message: "ok"}
}

func (a *copilotAdapter) SupportsSessions() bool      { return true }
func (a *copilotAdapter) SupportsDangerousMode() bool { return true }
func (a *copilotAdapter) SupportsMCP() bool           { return false }
func (a *copilotAdapter) FetchMCPServers(ctx context.Context) ([]MCPServerInfo, error) {
	return nil, nil
}

func (a *copilotAdapter) ModelFamily(model string) string          { return model }
func (a *copilotAdapter) ProviderModelName(family string) string { return family }

func (a *copilotAdapter) buildArgs(req Request) []string {
	args := []string{"-p", req.Prompt}
	if req.DangerousMode || a.cfg.DangerousMode {
		args = append(args, "--allow-all-tools")
	}
	if req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	}
	args = append(args, a.cfg.DefaultFlags...)
	return args
}

func (a *copilotAdapter) Send(ctx context.Context, req Request) (Response, error) {
	spec := runSpec{Argv: append([]string{a.binary}, a.buildArgs(req)...)}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = a.cfg.Timeout
	}
	return runCLI(ctx, a.runner, a.Name(), spec, timeout, req.OnStreamLine, a.ErrorPatterns())
}
