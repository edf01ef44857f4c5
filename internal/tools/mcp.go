package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPServerConfig describes one external MCP tool server.
type MCPServerConfig struct {
	Name    string
	Command string            // stdio transport: executable + args, space-separated
	URL     string            // streamable-HTTP transport; takes precedence over Command
	Env     map[string]string
}

// MCPRegistry is an alternate ToolSelector implementation (§2b/§6) that
// discovers tools from external MCP servers and reuses the default
// Registry's scoring/selection logic over the discovered descriptors.
type MCPRegistry struct {
	*Registry

	mu      sync.Mutex
	client  *mcpsdk.Client
	sessions map[string]*mcpsdk.ClientSession // tool ID -> owning session
}

var _ Selector = (*MCPRegistry)(nil)

// NewMCPRegistry creates an empty registry backed by external MCP servers;
// call RegisterServer to import each server's tool catalogue.
func NewMCPRegistry() *MCPRegistry {
	return &MCPRegistry{
		Registry: &Registry{tools: make(map[string]*registeredTool), cache: make(map[string]Selection)},
		client:   mcpsdk.NewClient(&mcpsdk.Implementation{Name: "voice-assistant", Version: "1.0.0"}, nil),
		sessions: make(map[string]*mcpsdk.ClientSession),
	}
}

// RegisterServer connects to an MCP server and imports its tools as
// ToolDescriptors with category inferred from the tool name/description.
func (m *MCPRegistry) RegisterServer(ctx context.Context, cfg MCPServerConfig) error {
	var transport mcpsdk.Transport
	switch {
	case cfg.URL != "":
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	case cfg.Command != "":
		parts := strings.Fields(cfg.Command)
		if len(parts) == 0 {
			return fmt.Errorf("mcp registry: server %q has an empty command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	default:
		return fmt.Errorf("mcp registry: server %q requires a Command or URL", cfg.Name)
	}

	session, err := m.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp registry: connect to %q: %w", cfg.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcp registry: list tools for %q: %w", cfg.Name, err)
		}
		m.sessions[tool.Name] = session
		m.Registry.Register(tool.Name, tool.Description, inferCategory(tool.Name, tool.Description), keywordsFrom(tool.Description), nil)
	}
	return nil
}

// Invoke dispatches to the MCP session that owns toolID. Tools registered
// in-process (such as the built-in tools) run through the embedded
// Registry's Invoke.
func (m *MCPRegistry) Invoke(ctx context.Context, toolID string, argsJSON string) (string, error) {
	m.mu.Lock()
	session, ok := m.sessions[toolID]
	m.mu.Unlock()
	if !ok {
		return m.Registry.Invoke(ctx, toolID, argsJSON)
	}

	var argsMap map[string]any
	if argsJSON != "" && argsJSON != "{}" {
		if err := json.Unmarshal([]byte(argsJSON), &argsMap); err != nil {
			return "", fmt.Errorf("mcp registry: invalid args for tool %q: %w", toolID, err)
		}
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: toolID, Arguments: argsMap})
	if err != nil {
		return "", fmt.Errorf("mcp registry: call %q: %w", toolID, err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if result.IsError {
		return sb.String(), fmt.Errorf("mcp registry: tool %q returned an error result", toolID)
	}
	return sb.String(), nil
}

// Close disconnects every server session.
func (m *MCPRegistry) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[*mcpsdk.ClientSession]struct{})
	var firstErr error
	for _, session := range m.sessions {
		if _, done := seen[session]; done {
			continue
		}
		seen[session] = struct{}{}
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var categoryKeywords = map[string][]string{
	"time":   {"time", "date", "clock", "calendar"},
	"memory": {"remember", "recall", "memory", "rag"},
	"code":   {"code", "script", "execute", "run"},
	"web":    {"web", "scrape", "browser", "automation"},
	"files":  {"file", "directory", "folder"},
	"system": {"system", "process", "monitor"},
}

func inferCategory(name, description string) string {
	lower := strings.ToLower(name + " " + description)
	for category, keywords := range categoryKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return category
			}
		}
	}
	return "general"
}

func keywordsFrom(description string) []string {
	kws := extractKeywords(description)
	out := make([]string, 0, len(kws))
	for k := range kws {
		out = append(out, k)
	}
	return out
}
