package graph

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gasdesk/agent-server/internal/agent/memory"
	"github.com/gasdesk/agent-server/internal/agent/model"
	"github.com/gasdesk/agent-server/internal/agent/repo"
	"github.com/gasdesk/agent-server/internal/agent/tools"
)

// scriptedDecider replays verdicts; next, when set, computes them instead.
type scriptedDecider struct {
	mu       sync.Mutex
	verdicts []model.Verdict
	next     func(in model.DecisionInput) (model.Verdict, error)
	inputs   []model.DecisionInput
}

func (d *scriptedDecider) Decide(_ context.Context, in model.DecisionInput) (model.Verdict, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputs = append(d.inputs, in)
	if d.next != nil {
		return d.next(in)
	}
	if len(d.verdicts) == 0 {
		return model.Verdict{}, errors.New("script exhausted")
	}
	v := d.verdicts[0]
	d.verdicts = d.verdicts[1:]
	return v, nil
}

func (d *scriptedDecider) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inputs)
}

type stubFinalizer struct {
	mu     sync.Mutex
	err    error
	inputs []model.FinalizeInput
}

func (f *stubFinalizer) Finalize(_ context.Context, in model.FinalizeInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return "", f.err
	}
	return "final: " + in.Question, nil
}

// funcTool is a registry tool backed by a function.
type funcTool struct {
	name  string
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, args map[string]any) (any, error)
}

func (t *funcTool) Name() string            { return t.name }
func (t *funcTool) Description() string     { return "test tool " + t.name }
func (t *funcTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }

func (t *funcTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	return t.fn(ctx, args)
}

func (t *funcTool) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func echoTool(name string) *funcTool {
	return &funcTool{name: name, fn: func(_ context.Context, args map[string]any) (any, error) {
		return map[string]any{"echo": args}, nil
	}}
}

func newRegistry(t *testing.T, timeout time.Duration, ts ...tools.Tool) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry(tools.WithTimeout(timeout))
	for _, tool := range ts {
		require.NoError(t, reg.Register(tool))
	}
	return reg
}

// newSession persists turns (the last one being the user's message) and returns the run input.
func newSession(t *testing.T, store *memory.Store, id string, turns ...model.Turn) RunInput {
	t.Helper()
	ctx := context.Background()
	_, profile, err := store.Load(ctx, id, "user-"+id)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, id, turns...))
	return RunInput{SessionID: id, Turns: turns, Profile: profile}
}

func newStore() *memory.Store {
	return memory.NewStore(repo.NewMemoryBackend())
}

type failingHistory struct{}

func (failingHistory) Append(context.Context, string, ...model.Turn) error {
	return errors.New("disk full")
}

func (failingHistory) UpdateSession(context.Context, string, func(*model.Session)) (model.Session, error) {
	return model.Session{}, errors.New("disk full")
}
