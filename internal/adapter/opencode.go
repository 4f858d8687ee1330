package adapter

import (
	"context"
	"fmt"

	"github.com/TakumaLee/dispatch/internal/subprocess"
	"github.com/TakumaLee/dispatch/internal/taxonomy"
)

// opencodeAdapter wraps the `opencode` CLI. It advertises no structured
// output mode, so Send falls through to the default stdout/exit-code
// Response that runCLI already produces.
type opencodeAdapter struct {
	runner subprocess.Runner
	cfg    Config
	binary string
}

func NewOpenCode(runner subprocess.Runner, cfg Config) (Adapter, error) {
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "opencode"
	}
	return &opencodeAdapter{runner: runner, cfg: cfg, binary: binary}, nil
}

func (a *opencodeAdapter) Name() string                        { return "opencode" }
func (a *opencodeAdapter) DisplayName() string                 { return "OpenCode" }
func (a *opencodeAdapter) BinaryName() string                  { return a.binary }
func (a *opencodeAdapter) Capabilities() Capabilities          { return Capabilities{} }
func (a *opencodeAdapter) ErrorPatterns() taxonomy.PatternSet  { return nil }
func (a *opencodeAdapter) InstructionFiles() []InstructionFile { return nil }

func (a *opencodeAdapter) Available() bool {
	_, ok := a.runner.Which(a.binary)
	return ok
}

func (a *opencodeAdapter) ValidateConfig() ValidationResult {
	if !a.Available() {
		return ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("binary %q not found on PATH", a.binary)}}
	}
	return ValidationResult{Valid: true}
}

func (a *opencodeAdapter) HealthStatus() HealthStatus {
	if !a.Available() {
		return HealthStatus{Healthy: false, Message: "binary not found"}
	}
	return HealthStatus{Healthy: true, Message: "ok"}
}

func (a *opencodeAdapter) SupportsSessions() bool      { return false }
func (a *opencodeAdapter) SupportsDangerousMode() bool { return false }
func (a *opencodeAdapter) SupportsMCP() bool           { return false }
func (a *opencodeAdapter) FetchMCPServers(ctx context.Context) ([]MCPServerInfo, error) {
	return nil, nil
}

func (a *opencodeAdapter) ModelFamily(model string) string         { return model }
func (a *opencodeAdapter) ProviderModelName(family string) string { return family }

func (a *opencodeAdapter) buildArgs(req Request) []string {
	model := req.Model
	if model == "" {
		model = a.cfg.Model
	}
	var args []string
	if model != "" {
		args = append(args, "--model", model)
	}
	args = append(args, a.cfg.DefaultFlags...)
	args = append(args, "--prompt", req.Prompt)
	return args
}

func (a *opencodeAdapter) Send(ctx context.Context, req Request) (Response, error) {
	spec := runSpec{Argv: append([]string{a.binary}, a.buildArgs(req)...)}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = a.cfg.Timeout
	}
	return runCLI(ctx, a.runner, a.Name(), spec, timeout, req.OnStreamLine, a.ErrorPatterns())
}
