// Package naturalgas exposes the tools of the natural-gas data process as
// registry entries sharing one session.
package naturalgas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gasdesk/agent-server/internal/agent/mcp"
	"github.com/gasdesk/agent-server/internal/agent/tools"
)

// Session is the part of mcp.Client the tools need.
type Session interface {
	ListTools(ctx context.Context) ([]mcp.ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (mcp.CallResult, error)
}

type Tool struct {
	def     mcp.ToolDefinition
	session Session
}

// Discover lists the remote tools once and wraps each of them.
func Discover(ctx context.Context, s Session) ([]*Tool, error) {
	defs, err := s.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover natural gas tools: %w", err)
	}
	out := make([]*Tool, 0, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			continue
		}
		out = append(out, &Tool{def: d, session: s})
	}
	return out, nil
}

func (t *Tool) Name() string        { return t.def.Name }
func (t *Tool) Description() string { return t.def.Description }

func (t *Tool) Schema() json.RawMessage {
	if len(t.def.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return t.def.InputSchema
}

func (t *Tool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	res, err := t.session.CallTool(ctx, t.def.Name, args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, tools.Transport(err)
	}
	text := res.Text()
	if res.IsError {
		return nil, tools.Transport(errors.New(strings.TrimPrefix(text, "Error: ")))
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, nil
	}
	return text, nil
}
