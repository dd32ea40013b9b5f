package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasdesk/agent-server/internal/agent/model"
)

type fakeTool struct {
	name     string
	schema   string
	invoke   func(ctx context.Context, args map[string]any) (any, error)
	validate func(args map[string]any) error
}

func (f *fakeTool) Name() string            { return f.name }
func (f *fakeTool) Description() string     { return "fake " + f.name }
func (f *fakeTool) Schema() json.RawMessage { return json.RawMessage(f.schema) }
func (f *fakeTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return f.invoke(ctx, args)
}

type validatingTool struct{ *fakeTool }

func (v validatingTool) Validate(args map[string]any) error { return v.validate(args) }

const topKSchema = `{
	"type": "object",
	"properties": {
		"question": {"type": "string", "minLength": 1},
		"top_k": {"type": "integer", "minimum": 1, "maximum": 20}
	},
	"required": ["question"],
	"additionalProperties": false
}`

func echoTool(name string) *fakeTool {
	return &fakeTool{name: name, schema: topKSchema, invoke: func(_ context.Context, args map[string]any) (any, error) {
		return map[string]any{"question": args["question"], "top_k": IntArg(args, "top_k", 5)}, nil
	}}
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("b")))
	require.NoError(t, r.Register(echoTool("a")))

	assert.ErrorIs(t, r.Register(echoTool("a")), ErrAlreadyExists)
	assert.ErrorIs(t, r.Register(echoTool("")), ErrEmptyName)
	assert.Error(t, r.Register(&fakeTool{name: "broken", schema: `{"type": 12}`}))

	descs := r.Descriptors()
	require.Len(t, descs, 2)
	assert.Equal(t, "a", descs[0].Name)
	assert.Equal(t, "b", descs[1].Name)
	assert.True(t, r.Has("a"))
	assert.False(t, r.Has("broken"))
}

func TestInvokeSuccess(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("regulation")))

	rec := r.Invoke(context.Background(), model.ToolCall{Tool: "regulation", Arguments: map[string]any{"question": "Who licenses traders?", "top_k": 3}})
	require.True(t, rec.Success, "error: %+v", rec.Error)
	assert.Nil(t, rec.Error)
	assert.Equal(t, map[string]any{"question": "Who licenses traders?", "top_k": float64(3)}, rec.Result)
}

func TestInvokeFailuresBecomeRecords(t *testing.T) {
	r := NewRegistry(WithTimeout(50 * time.Millisecond))
	require.NoError(t, r.Register(echoTool("regulation")))
	require.NoError(t, r.Register(&fakeTool{name: "slow", schema: `{"type":"object"}`, invoke: func(context.Context, map[string]any) (any, error) {
		time.Sleep(time.Second)
		return "late", nil
	}}))
	require.NoError(t, r.Register(&fakeTool{name: "panicky", schema: `{"type":"object"}`, invoke: func(context.Context, map[string]any) (any, error) {
		panic("boom")
	}}))
	require.NoError(t, r.Register(&fakeTool{name: "down", schema: `{"type":"object"}`, invoke: func(context.Context, map[string]any) (any, error) {
		return nil, Transport(errors.New("connection refused"))
	}}))
	require.NoError(t, r.Register(validatingTool{&fakeTool{name: "dated", schema: `{"type":"object"}`,
		invoke:   func(context.Context, map[string]any) (any, error) { return "ok", nil },
		validate: func(map[string]any) error { return errors.New("from must not be after to") },
	}}))

	cases := []struct {
		name string
		call model.ToolCall
		kind model.ErrorKind
	}{
		{"unknown tool", model.ToolCall{Tool: "nope"}, model.KindUnknownTool},
		{"missing required", model.ToolCall{Tool: "regulation", Arguments: map[string]any{"top_k": 2}}, model.KindValidation},
		{"out of range", model.ToolCall{Tool: "regulation", Arguments: map[string]any{"question": "q", "top_k": 50}}, model.KindValidation},
		{"extra property", model.ToolCall{Tool: "regulation", Arguments: map[string]any{"question": "q", "city": "Pécs"}}, model.KindValidation},
		{"tool validator", model.ToolCall{Tool: "dated"}, model.KindValidation},
		{"timeout", model.ToolCall{Tool: "slow"}, model.KindTimeout},
		{"panic", model.ToolCall{Tool: "panicky"}, model.KindInternal},
		{"transport", model.ToolCall{Tool: "down"}, model.KindTransport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start := time.Now()
			rec := r.Invoke(context.Background(), tc.call)
			assert.False(t, rec.Success)
			require.NotNil(t, rec.Error)
			assert.Equal(t, tc.kind, rec.Error.Kind, rec.Error.Message)
			assert.Equal(t, tc.call, rec.Call)
			assert.Less(t, time.Since(start), 500*time.Millisecond)
		})
	}
}

func TestValidate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("regulation")))

	assert.NoError(t, r.Validate(model.ToolCall{Tool: "regulation", Arguments: map[string]any{"question": "q"}}))
	assert.ErrorIs(t, r.Validate(model.ToolCall{Tool: "regulation"}), ErrInvalidArgs)
	assert.ErrorIs(t, r.Validate(model.ToolCall{Tool: "x"}), ErrUnknownTool)
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{"s": "v", "f": float64(4), "i": 7, "n": json.Number("9")}
	assert.Equal(t, "v", StringArg(args, "s", "d"))
	assert.Equal(t, "d", StringArg(args, "missing", "d"))
	assert.Equal(t, 4, IntArg(args, "f", 0))
	assert.Equal(t, 7, IntArg(args, "i", 0))
	assert.Equal(t, 9, IntArg(args, "n", 0))
	assert.Equal(t, 5, IntArg(args, "missing", 5))
}
