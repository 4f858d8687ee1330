package adapter

import (
	"context"
	"fmt"

	"github.com/TakumaLee/dispatch/internal/subprocess"
	"github.com/TakumaLee/dispatch/internal/taxonomy"
)

// kilocodeAdapter wraps the `kilocode` CLI. Same minimal-capability shape as
// the opencode adapter: no structured output mode to parse.
type kilocodeAdapter struct {
	runner subprocess.Runner
	cfg    Config
	binary string
}

func NewKilocode(runner subprocess.Runner, cfg Config) (Adapter, error) {
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "kilocode"
	}
	return &kilocodeAdapter{runner: runner, cfg: cfg, binary: binary}, nil
}

func (a *kilocodeAdapter) Name() string                        { return "kilocode" }
func (a *kilocodeAdapter) DisplayName() string                 { return "Kilocode" }
func (a *kilocodeAdapter) BinaryName() string                  { return a.binary }
func (a *kilocodeAdapter) Capabilities() Capabilities          { return Capabilities{} }
func (a *kilocodeAdapter) ErrorPatterns() taxonomy.PatternSet  { return nil }
func (a *kilocodeAdapter) InstructionFiles() []InstructionFile { return nil }

func (a *kilocodeAdapter) Available() bool {
	_, ok := a.runner.Which(a.binary)
	return ok
}

func (a *kilocodeAdapter) ValidateConfig() ValidationResult {
	if !a.Available() {
		return ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("binary %q not found on PATH", a.binary)}}
	}
	return ValidationResult{Valid: true}
}

func (a *kilocodeAdapter) HealthStatus() HealthStatus {
	if !a.Available() {
		return HealthStatus{Healthy: false, Message: "binary not found"}
	}
	return HealthStatus{Healthy: true, Message: "ok"}
}

func (a *kilocodeAdapter) SupportsSessions() bool      { return false }
func (a *kilocodeAdapter) SupportsDangerousMode() bool { return false }
func (a *kilocodeAdapter) SupportsMCP() bool           { return false }
func (a *kilocodeAdapter) FetchMCPServers(ctx context.Context) ([]MCPServerInfo, error) {
	return nil, nil
}

func (a *kilocodeAdapter) ModelFamily(model string) string         { return model }
func (a *kilocodeAdapter) ProviderModelName(family string) string { return family }

func (a *kilocodeAdapter) buildArgs(req Request) []string {
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

func (a *kilocodeAdapter) Send(ctx context.Context, req Request) (Response, error) {
	spec := runSpec{Argv: append([]string{a.binary}, a.buildArgs(req)...)}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = a.cfg.Timeout
	}
	return runCLI(ctx, a.runner, a.Name(), spec, timeout, req.OnStreamLine, a.ErrorPatterns())
}
