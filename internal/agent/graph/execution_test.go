package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasdesk/agent-server/internal/agent/model"
)

func TestExecuteSiblingIsolation(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	newSession(t, store, "s1", model.UserTurn("go", now))

	panicky := &funcTool{name: "panicky", fn: func(context.Context, map[string]any) (any, error) {
		panic("bad state")
	}}
	broken := &funcTool{name: "broken", fn: func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("connection refused")
	}}
	slow := &funcTool{name: "slow", fn: func(ctx context.Context, _ map[string]any) (any, error) {
		select {
		case <-time.After(20 * time.Millisecond):
			return []any{"done"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	reg := newRegistry(t, time.Second, panicky, broken, slow)

	v := model.InvokeVerdict("all",
		model.ToolCall{Tool: "slow"},
		model.ToolCall{Tool: "panicky"},
		model.ToolCall{Tool: "broken"},
		model.ToolCall{Tool: "missing"},
	)
	records, err := NewExecutor(reg, store).Execute(ctx, "s1", v, 3)
	require.NoError(t, err)
	require.Len(t, records, 4)

	byTool := map[string]model.ToolCallRecord{}
	for _, r := range records {
		assert.Equal(t, 3, r.Iteration)
		byTool[r.Call.Tool] = r
	}
	assert.True(t, byTool["slow"].Success)
	assert.Equal(t, model.KindInternal, byTool["panicky"].Error.Kind)
	assert.Equal(t, model.KindTransport, byTool["broken"].Error.Kind)
	assert.Equal(t, model.KindUnknownTool, byTool["missing"].Error.Kind)

	// turns are appended in (tool, arguments) order
	sess, err := store.Session(ctx, "s1")
	require.NoError(t, err)
	var order []string
	for _, turn := range sess.Turns[1:] {
		order = append(order, turn.Metadata[model.MetaTool].(string))
	}
	assert.Equal(t, []string{"broken", "missing", "panicky", "slow"}, order)
}

func TestExecuteNoCalls(t *testing.T) {
	records, err := NewExecutor(newRegistry(t, time.Second), failingHistory{}).
		Execute(context.Background(), "s1", model.FinalizeVerdict("done"), 1)
	require.NoError(t, err)
	assert.Nil(t, records)
}
