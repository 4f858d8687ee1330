package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/TakumaLee/dispatch/internal/subprocess"
	"github.com/TakumaLee/dispatch/internal/taxonomy"
)

// claudeAdapter wraps the `claude` CLI (Anthropic Claude Code).
type claudeAdapter struct {
	runner subprocess.Runner
	cfg    Config
	binary string
}

// NewClaude constructs the claude/anthropic adapter.
func NewClaude(runner subprocess.Runner, cfg Config) (Adapter, error) {
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "claude"
	}
	return &claudeAdapter{runner: runner, cfg: cfg, binary: binary}, nil
}

func (a *claudeAdapter) Name() string        { return "claude" }
func (a *claudeAdapter) DisplayName() string { return "Anthropic Claude" }
func (a *claudeAdapter) BinaryName() string  { return a.binary }

func (a *claudeAdapter) Capabilities() Capabilities {
	return Capabilities{Streaming: true, ToolUse: true, JSONMode: true, Sessions: true, DangerousMode: true}
}

var claudeErrorPatterns = taxonomy.PatternSet{
	taxonomy.AuthExpired: {regexp.MustCompile(`invalid api key|please run.*login`)},
}

func (a *claudeAdapter) ErrorPatterns() taxonomy.PatternSet { return claudeErrorPatterns }

func (a *claudeAdapter) InstructionFiles() []InstructionFile {
	return []InstructionFile{{Path: "CLAUDE.md", Description: "Claude project instructions"}}
}

func (a *claudeAdapter) Available() bool {
	_, ok := a.runner.Which(a.binary)
	return ok
}

func (a *claudeAdapter) ValidateConfig() ValidationResult {
	if !a.Available() {
		return ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("binary %q not found on PATH", a.binary)}}
	}
	return ValidationResult{Valid: true}
}

func (a *claudeAdapter) HealthStatus() HealthStatus {
	if !a.Available() {
		return HealthStatus{Healthy: false, Message: "binary not found"}
	}
	return HealthStatus{Healthy: true, Message: "ok"}
}

func (a *claudeAdapter) SupportsSessions() bool      { return true }
func (a *claudeAdapter) SupportsDangerousMode() bool { return true }
func (a *claudeAdapter) SupportsMCP() bool           { return true }

func (a *claudeAdapter) FetchMCPServers(ctx context.Context) ([]MCPServerInfo, error) {
	return nil, nil
}

// dateSuffix matches a trailing -YYYYMMDD build date, e.g. -20241022.
var dateSuffix = regexp.MustCompile(`-\d{8}$`)

// ModelFamily strips Anthropic's trailing build-date suffix. This is
// idempotent but not invertible: the stripped date cannot be recovered, so
// ProviderModelName(ModelFamily(m)) != m in general. That asymmetry is
// expected, not a bug.
func (a *claudeAdapter) ModelFamily(model string) string {
	return dateSuffix.ReplaceAllString(model, "")
}

// ProviderModelName returns family unchanged; Claude has no canonical
// "latest" suffix to append without guessing a date.
func (a *claudeAdapter) ProviderModelName(family string) string { return family }

func (a *claudeAdapter) buildArgs(req Request) []string {
	args := []string{"--print", "--output-format=text"}
	model := req.Model
	if model == "" {
		model = a.cfg.Model
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	if req.DangerousMode || a.cfg.DangerousMode {
		args = append(args, "--dangerously-skip-permissions")
	}
	args = append(args, a.cfg.DefaultFlags...)
	args = append(args, "--prompt", req.Prompt)
	return args
}

func (a *claudeAdapter) Send(ctx context.Context, req Request) (Response, error) {
	spec := runSpec{Argv: append([]string{a.binary}, a.buildArgs(req)...)}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = a.cfg.Timeout
	}
	resp, err := runCLI(ctx, a.runner, a.Name(), spec, timeout, req.OnStreamLine, a.ErrorPatterns())
	if resp.Output != "" {
		if parsed, ok := parseClaudeJSON(resp.Output); ok {
			resp.Output = parsed.output
			resp.Tokens = parsed.tokens
			if resp.Metadata == nil {
				resp.Metadata = map[string]any{}
			}
			resp.Metadata["session_id"] = parsed.sessionID
			resp.Metadata["cost_usd"] = parsed.costUSD
		}
	}
	return resp, err
}

type claudeParsed struct {
	output    string
	sessionID string
	costUSD   float64
	tokens    *TokenUsage
}

type claudeJSONOutput struct {
	Result     string  `json:"result"`
	IsError    bool    `json:"is_error"`
	CostUSD    float64 `json:"total_cost_usd"`
	SessionID  string  `json:"session_id"`
	DurationMs int64   `json:"duration_ms"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`
}

// parseClaudeJSON parses the JSON emitted by `claude --output-format json`.
// Plain-text output mode (the default argv this adapter builds) will simply
// fail this unmarshal and the caller keeps the raw stdout as-is.
func parseClaudeJSON(stdout string) (claudeParsed, bool) {
	var co claudeJSONOutput
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &co); err != nil {
		return claudeParsed{}, false
	}
	p := claudeParsed{output: co.Result, sessionID: co.SessionID, costUSD: co.CostUSD}
	if co.Usage != nil {
		p.tokens = &TokenUsage{Input: co.Usage.InputTokens, Output: co.Usage.OutputTokens, Total: co.Usage.InputTokens + co.Usage.OutputTokens}
	}
	return p, true
}
