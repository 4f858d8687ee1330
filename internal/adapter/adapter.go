// Package adapter defines the provider adapter contract every CLI-backed
// agent wrapper must satisfy, plus the shared request/response/capability
// types the conductor and manager build on top of.
package adapter

import (
	"context"
	"time"

	"github.com/TakumaLee/dispatch/internal/subprocess"
	"github.com/TakumaLee/dispatch/internal/taxonomy"
)

// Request is what the conductor passes to an adapter for one call.
type Request struct {
	Prompt  string
	Model   string
	Timeout time.Duration
	Env     []string
	Workdir string
	// SessionID, if set and the adapter supports sessions, resumes a prior
	// conversation.
	SessionID string
	// DangerousMode requests the adapter's "skip permission prompts" flag,
	// if it supports one.
	DangerousMode bool
	// OnStreamLine, if set, is forwarded to the subprocess runner so callers
	// can observe output incrementally; the final Response is unaffected.
	OnStreamLine func(line string)
}

// TokenUsage reports token accounting, when the provider's output exposes it.
type TokenUsage struct {
	Input  int
	Output int
	Total  int
}

// Response is the uniform result handed back to the conductor.
type Response struct {
	Output   string
	ExitCode int
	Duration time.Duration
	Provider string
	Model    string
	Tokens   *TokenUsage
	Metadata map[string]any
	Err      error
}

// Success reports whether the call completed cleanly.
func (r Response) Success() bool { return r.ExitCode == 0 && r.Err == nil }

// Capabilities describes what an adapter instance can do.
type Capabilities struct {
	Streaming     bool
	FileUpload    bool
	Vision        bool
	ToolUse       bool
	JSONMode      bool
	MCP           bool
	DangerousMode bool
	Sessions      bool
}

// InstructionFile documents a file an adapter's underlying CLI reads for
// project-level instructions (e.g. CLAUDE.md).
type InstructionFile struct {
	Path        string
	Description string
	Symlink     bool
}

// ValidationResult is returned by Adapter.ValidateConfig.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// HealthStatus is returned by Adapter.HealthStatus.
type HealthStatus struct {
	Healthy bool
	Message string
}

// MCPServerInfo describes one MCP server an adapter discovered.
type MCPServerInfo struct {
	Name    string
	Status  string
	Enabled bool
}

// Adapter is the contract every provider wrapper implements. Construction
// (via a Factory) is where binary path resolution and config happen; these
// methods assume that has already succeeded.
type Adapter interface {
	Name() string
	DisplayName() string
	BinaryName() string
	Capabilities() Capabilities
	ErrorPatterns() taxonomy.PatternSet
	InstructionFiles() []InstructionFile

	Available() bool
	ValidateConfig() ValidationResult
	HealthStatus() HealthStatus

	// Send runs one call through the adapter's CLI binary and returns a
	// Response. Adapter-level failures are classified via the taxonomy
	// using ErrorPatterns and returned as a typed error, both as Send's
	// error result and in Response.Err.
	Send(ctx context.Context, req Request) (Response, error)

	SupportsSessions() bool
	SupportsDangerousMode() bool
	SupportsMCP() bool
	FetchMCPServers(ctx context.Context) ([]MCPServerInfo, error)

	ModelFamily(model string) string
	ProviderModelName(family string) string
}

// Factory constructs an Adapter given a Runner (the subprocess executor) and
// per-provider configuration. Using a factory function, rather than a
// concrete constructor per adapter, is what lets the registry (internal/registry)
// hold one uniform map of provider name to constructor.
type Factory func(runner subprocess.Runner, cfg Config) (Adapter, error)

// Config is the subset of ProviderConfig (internal/config) an adapter needs
// to build itself; kept narrow so adapters don't import internal/config.
type Config struct {
	Model         string
	DefaultFlags  []string
	Timeout       time.Duration
	BinaryPath    string // overrides the default binary name lookup if set
	DangerousMode bool
}
