package adapter

import (
	"context"
	"fmt"
	"regexp"

	"github.com/TakumaLee/dispatch/internal/subprocess"
	"github.com/TakumaLee/dispatch/internal/taxonomy"
)

type geminiAdapter struct {
	runner subprocess.Runner
	cfg    Config
	binary string
}

func NewGemini(runner subprocess.Runner, cfg Config) (Adapter, error) {
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "gemini"
	}
	return &geminiAdapter{runner: runner, cfg: cfg, binary: binary}, nil
}

func (a *geminiAdapter) Name() string                       { return "gemini" }
func (a *geminiAdapter) DisplayName() string                { return "Gemini" }
func (a *geminiAdapter) BinaryName() string                 { return a.binary }
func (a *geminiAdapter) Capabilities() Capabilities         { return Capabilities{ToolUse: true, Vision: true} }
func (a *geminiAdapter) ErrorPatterns() taxonomy.PatternSet { return nil }
func (a *geminiAdapter) InstructionFiles() []InstructionFile {
	return []InstructionFile{{Path: "GEMINI.md", Description: "Gemini project instructions"}}
}

func (a *geminiAdapter) Available() bool {
	_, ok := a.runner.Which(a.binary)
	return ok
}

func (a *geminiAdapter) ValidateConfig() ValidationResult {
	if !a.Available() {
		return ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("binary %q not found on PATH", a.binary)}}
	}
	return ValidationResult{Valid: true}
}

func (a *geminiAdapter) HealthStatus() HealthStatus {
	if !a.Available() {
		return HealthStatus{Healthy: false, Message: "binary not found"}
	}
	return HealthStatus{Healthy: true, Message: "ok"}
}

func (a *geminiAdapter) SupportsSessions() bool      { return false }
func (a *geminiAdapter) SupportsDangerousMode() bool { return false }
func (a *geminiAdapter) SupportsMCP() bool           { return false }
func (a *geminiAdapter) FetchMCPServers(ctx context.Context) ([]MCPServerInfo, error) {
	return nil, nil
}

// buildNumberSuffix matches a trailing build number, e.g. -001.
var buildNumberSuffix = regexp.MustCompile(`-\d{3}$`)

func (a *geminiAdapter) ModelFamily(model string) string {
	return buildNumberSuffix.ReplaceAllString(model, "")
}
func (a *geminiAdapter) ProviderModelName(family string) string { return family }

func (a *geminiAdapter) buildArgs(req Request) []string {
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

func (a *geminiAdapter) Send(ctx context.Context, req Request) (Response, error) {
	spec := runSpec{Argv: append([]string{a.binary}, a.buildArgs(req)...)}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = a.cfg.Timeout
	}
	return runCLI(ctx, a.runner, a.Name(), spec, timeout, req.OnStreamLine, a.ErrorPatterns())
}
