// Package tools hosts external Model Context Protocol servers so new
// household skills can be attached without recompiling the assistant.
//
// The host connects over stdio or streamable-HTTP using the official MCP Go
// SDK, keeps a concurrent-safe tool registry, and exposes a flat
// list-and-call surface to the action layer.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Transport selects how the host reaches an MCP server.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a known transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes one MCP server to connect to.
type ServerConfig struct {
	Name      string            `yaml:"name"`
	Transport Transport         `yaml:"transport"`
	Command   string            `yaml:"command,omitempty"` // stdio: executable plus args
	URL       string            `yaml:"url,omitempty"`     // streamable-http endpoint
	Env       map[string]string `yaml:"env,omitempty"`
}

// Tool is one callable tool imported from a server.
type Tool struct {
	Name        string
	Description string
	ServerName  string
	Parameters  map[string]any
}

// Result is the outcome of one tool call. IsError marks an
// application-level failure; transport failures surface as Go errors.
type Result struct {
	Content string
	IsError bool
}

// Host manages MCP server connections and their tool catalogues. Safe for
// concurrent use. The zero value is not usable; create instances with [New].
type Host struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	servers map[string]*mcpsdk.ClientSession

	client *mcpsdk.Client
}

// New creates a ready-to-use Host.
func New() *Host {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "aria-tools", Version: "1.0.0"},
		nil,
	)
	return &Host{
		tools:   make(map[string]Tool),
		servers: make(map[string]*mcpsdk.ClientSession),
		client:  client,
	}
}

// RegisterServer connects to the server described by cfg and imports its
// tool catalogue. Re-registering a name closes the old connection and
// replaces its tools.
func (h *Host) RegisterServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("tools: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("tools: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("tools: stdio server %q requires a non-empty command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("tools: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("tools: connect to server %q: %w", cfg.Name, err)
	}

	var discovered []Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("tools: list tools for server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, Tool{
			Name:        tool.Name,
			Description: tool.Description,
			ServerName:  cfg.Name,
			Parameters:  schemaToMap(tool.InputSchema),
		})
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.servers[cfg.Name]; ok {
		_ = old.Close()
		for name, t := range h.tools {
			if t.ServerName == cfg.Name {
				delete(h.tools, name)
			}
		}
	}
	h.servers[cfg.Name] = session
	for _, t := range discovered {
		h.tools[t.Name] = t
	}
	return nil
}

// Tools returns the registered tools sorted by name.
func (h *Host) Tools() []Tool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Tool, 0, len(h.tools))
	for _, t := range h.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call invokes the named tool. A Result with IsError set is returned for
// application-level failures; a Go error only for transport or protocol
// failures.
func (h *Host) Call(ctx context.Context, name string, args map[string]any) (Result, error) {
	h.mu.RLock()
	tool, ok := h.tools[name]
	session := h.servers[tool.ServerName]
	h.mu.RUnlock()

	if !ok {
		return Result{}, fmt.Errorf("tools: tool %q not found", name)
	}
	if session == nil {
		return Result{}, fmt.Errorf("tools: server %q not connected for tool %q", tool.ServerName, name)
	}

	callResult, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return Result{}, fmt.Errorf("tools: call %q: %w", name, err)
	}

	var sb strings.Builder
	for _, c := range callResult.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return Result{Content: sb.String(), IsError: callResult.IsError}, nil
}

// Close shuts down all server connections. The Host must not be used after
// Close returns.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for name, session := range h.servers {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("tools: close server %q: %w", name, err)
		}
		delete(h.servers, name)
	}
	h.tools = make(map[string]Tool)
	return firstErr
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
