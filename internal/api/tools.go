package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gasdesk/agent-server/internal/agent/model"
	errx "github.com/gasdesk/agent-server/internal/core/error"
)

const naturalGasToolPrefix = "natural_gas."

// ToolInvoker is implemented by *tools.Registry.
type ToolInvoker interface {
	Has(name string) bool
	Invoke(ctx context.Context, call model.ToolCall) model.ToolCallRecord
}

type HandlerOption func(*Handler)

// WithTools enables POST /api/mcp/tool_call for the natural gas data tools.
func WithTools(inv ToolInvoker) HandlerOption {
	return func(h *Handler) { h.tools = inv }
}

type toolCallRequest struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

type toolCallResponse struct {
	Success bool             `json:"success"`
	Result  any              `json:"result,omitempty"`
	Error   *model.ToolError `json:"error,omitempty"`
}

// ToolCall invokes one natural gas data tool directly, outside any session.
func (h *Handler) ToolCall(w http.ResponseWriter, r *http.Request) {
	var req toolCallRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ToolName) == "" {
		writeError(w, r, errx.BadRequest(fmt.Errorf("tool_name is required")))
		return
	}
	if !strings.HasPrefix(req.ToolName, naturalGasToolPrefix) || !h.tools.Has(req.ToolName) {
		writeError(w, r, errx.NotFound(fmt.Errorf("tool %q", req.ToolName)))
		return
	}
	rec := h.tools.Invoke(r.Context(), model.ToolCall{Tool: req.ToolName, Arguments: req.Arguments})
	writeJSON(w, http.StatusOK, toolCallResponse{Success: rec.Success, Result: rec.Result, Error: rec.Error})
}
