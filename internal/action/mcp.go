package action

import (
	"context"
	"fmt"

	"github.com/ariahome/aria/internal/intent"
	"github.com/ariahome/aria/internal/tools"
)

// ToolHost is the subset of the MCP host the handler needs.
type ToolHost interface {
	Tools() []tools.Tool
	Call(ctx context.Context, name string, args map[string]any) (tools.Result, error)
}

// MCPHandler bridges intents to external MCP tools. An intent addresses a
// tool by naming it in the action payload under "tool"; the optional "args"
// map is forwarded as the call arguments.
type MCPHandler struct {
	host ToolHost
}

var _ Handler = (*MCPHandler)(nil)

// NewMCPHandler creates an MCPHandler over host.
func NewMCPHandler(host ToolHost) *MCPHandler {
	return &MCPHandler{host: host}
}

func (h *MCPHandler) Name() string { return "mcp" }

// CanHandle accepts intents whose payload names a registered tool.
func (h *MCPHandler) CanHandle(a intent.Analysis) bool {
	name, _ := a.ActionPayload["tool"].(string)
	if name == "" {
		return false
	}
	for _, t := range h.host.Tools() {
		if t.Name == name {
			return true
		}
	}
	return false
}

func (h *MCPHandler) Execute(ctx context.Context, a intent.Analysis, _ Context) (Result, error) {
	name, _ := a.ActionPayload["tool"].(string)
	args, _ := a.ActionPayload["args"].(map[string]any)

	res, err := h.host.Call(ctx, name, args)
	if err != nil {
		return Result{}, fmt.Errorf("action: tool %q: %w", name, err)
	}
	if res.IsError {
		return Result{
			Success: false,
			Message: "Sorry, that didn't work.",
			Error:   res.Content,
		}, nil
	}
	return Result{Success: true, Message: res.Content}, nil
}
