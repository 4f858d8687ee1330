package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/TakumaLee/dispatch/internal/subprocess"
	"github.com/TakumaLee/dispatch/internal/taxonomy"
)

// cursorAdapter wraps the `cursor-agent` CLI. Unlike most adapters, it takes
// its prompt on stdin rather than as an argv flag: this is a capability flag
// on the adapter, not a branch in the conductor's orchestration.
type cursorAdapter struct {
	runner subprocess.Runner
	cfg    Config
	binary string
}

func NewCursor(runner subprocess.Runner, cfg Config) (Adapter, error) {
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "cursor-agent"
	}
	return &cursorAdapter{runner: runner, cfg: cfg, binary: binary}, nil
}

func (a *cursorAdapter) Name() string        { return "cursor" }
func (a *cursorAdapter) DisplayName() string { return "Cursor" }
func (a *cursorAdapter) BinaryName() string  { return a.binary }

func (a *cursorAdapter) Capabilities() Capabilities {
	return Capabilities{MCP: true, ToolUse: true}
}

func (a *cursorAdapter) ErrorPatterns() taxonomy.PatternSet { return nil }

func (a *cursorAdapter) InstructionFiles() []InstructionFile {
	return []InstructionFile{{Path: ".cursorrules", Description: "Cursor project rules"}}
}

func (a *cursorAdapter) Available() bool {
	_, ok := a.runner.Which(a.binary)
	return ok
}

func (a *cursorAdapter) ValidateConfig() ValidationResult {
	if !a.Available() {
		return ValidationResult{Valid: false, Errors: []string{fmt.Sprintf("binary %q not found on PATH", a.binary)}}
	}
	return ValidationResult{Valid: true}
}

func (a *cursorAdapter) HealthStatus() HealthStatus {
	if !a.Available() {
		return HealthStatus{Healthy: false, Message: "binary not found"}
	}
	return HealthStatus{Healthy: true, Message: "ok"}
}

func (a *cursorAdapter) SupportsSessions() bool      { return false }
func (a *cursorAdapter) SupportsDangerousMode() bool { return false }
func (a *cursorAdapter) SupportsMCP() bool           { return true }

// cursorModelFamily translates between Cursor's dotted version numbers and
// the dispatcher's hyphenated model-family form. Unlike Claude's date-strip,
// this is a true bijection: it fully round-trips.
var cursorModelFamily = regexp.MustCompile(`(\d)\.(\d)`)

func (a *cursorAdapter) ModelFamily(model string) string {
	return cursorModelFamily.ReplaceAllString(model, "$1-$2")
}

func (a *cursorAdapter) ProviderModelName(family string) string {
	parts := strings.Split(family, "-")
	for i := 0; i < len(parts)-1; i++ {
		if isDigits(parts[i]) && isDigits(parts[i+1]) && len(parts[i+1]) == 1 {
			result := joinDot(parts[i], parts[i+1])
			if prefix := strings.Join(parts[:i], "-"); prefix != "" {
				result = prefix + "-" + result
			}
			if suffix := strings.Join(parts[i+2:], "-"); suffix != "" {
				result = result + "-" + suffix
			}
			return result
		}
	}
	return family
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func joinDot(a, b string) string { return a + "." + b }

func (a *cursorAdapter) buildArgs(req Request) []string {
	args := []string{"-p"}
	model := req.Model
	if model == "" {
		model = a.cfg.Model
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	args = append(args, a.cfg.DefaultFlags...)
	return args
}

func (a *cursorAdapter) Send(ctx context.Context, req Request) (Response, error) {
	spec := runSpec{Argv: append([]string{a.binary}, a.buildArgs(req)...), StdinData: []byte(req.Prompt)}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = a.cfg.Timeout
	}
	return runCLI(ctx, a.runner, a.Name(), spec, timeout, req.OnStreamLine, a.ErrorPatterns())
}

// mcpServersFile mirrors the mcpServers map shape of ~/.cursor/mcp.json.
type mcpServersFile struct {
	MCPServers map[string]struct {
		Command string   `json:"command"`
		Args    []string `json:"args"`
		Env     []string `json:"env"`
	} `json:"mcpServers"`
}

// FetchMCPServers first tries `cursor-agent mcp list`; if the binary is
// unavailable it falls back to reading ~/.cursor/mcp.json directly and
// probing each configured stdio server with mcp-go's client.
func (a *cursorAdapter) FetchMCPServers(ctx context.Context) ([]MCPServerInfo, error) {
	if a.Available() {
		res, err := a.runner.Run(ctx, []string{a.binary, "mcp", "list"}, subprocess.Options{Timeout: 10 * time.Second})
		if err == nil && res.ExitCode == 0 {
			return parseMCPListOutput(string(res.Stdout)), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(home, ".cursor", "mcp.json"))
	if err != nil {
		return nil, err
	}
	var f mcpServersFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	servers := make([]MCPServerInfo, 0, len(f.MCPServers))
	for name, srv := range f.MCPServers {
		status, enabled := probeStdioServer(ctx, srv.Command, srv.Env, srv.Args)
		servers = append(servers, MCPServerInfo{Name: name, Status: status, Enabled: enabled})
	}
	return servers, nil
}

// probeStdioServer launches a configured MCP server over stdio and attempts
// the protocol handshake, reporting whether it came up healthy.
func probeStdioServer(ctx context.Context, command string, env, args []string) (status string, enabled bool) {
	c, err := mcpclient.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return "unreachable", false
	}
	defer c.Close()

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "dispatch", Version: "1.0"}

	if _, err := c.Initialize(initCtx, req); err != nil {
		return "unreachable", false
	}
	return "available", true
}

func parseMCPListOutput(out string) []MCPServerInfo {
	var servers []MCPServerInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		servers = append(servers, MCPServerInfo{Name: line, Status: "available", Enabled: true})
	}
	return servers
}
