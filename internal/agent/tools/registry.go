package tools

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/gasdesk/agent-server/internal/agent/metrics"
	"github.com/gasdesk/agent-server/internal/agent/model"
	logx "github.com/gasdesk/agent-server/pkg/logger"
)

const DefaultTimeout = 20 * time.Second

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry is the static tool table built at startup.
// Invoke never returns an error: every failure becomes a failed record.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	timeout time.Duration
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Registry)

func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]entry),
		timeout: DefaultTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register compiles the tool's schema and adds it to the table.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return ErrEmptyName
	}
	schema, err := compileSchema(name, t.Schema())
	if err != nil {
		return fmt.Errorf("tool %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	r.entries[name] = entry{tool: t, schema: schema}
	return nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	url := name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Descriptors lists the registered tools sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Descriptor{Name: e.tool.Name(), Description: e.tool.Description(), Schema: e.tool.Schema()})
	}
	slices.SortFunc(out, func(a, b Descriptor) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Validate checks call against the tool's schema and its own Validator, if any.
func (r *Registry) Validate(call model.ToolCall) error {
	r.mu.RLock()
	e, ok := r.entries[call.Tool]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, call.Tool)
	}
	_, err := e.validate(call.Arguments)
	return err
}

func (e entry) validate(args map[string]any) (map[string]any, error) {
	norm, err := normalizeArgs(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if err := e.schema.Validate(norm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	out, _ := norm.(map[string]any)
	if v, ok := e.tool.(Validator); ok {
		if err := v.Validate(out); err != nil {
			if !errors.Is(err, ErrInvalidArgs) {
				err = fmt.Errorf("%w: %v", ErrInvalidArgs, err)
			}
			return nil, err
		}
	}
	return out, nil
}

// Invoke validates and runs one call under the per-call timeout.
// Unknown tools, invalid arguments, transport errors, timeouts and panics
// all produce a failed record; siblings are never affected.
func (r *Registry) Invoke(ctx context.Context, call model.ToolCall) model.ToolCallRecord {
	start := r.now()
	rec := model.ToolCallRecord{Call: call, StartedAt: start}
	defer func() {
		status := "ok"
		if !rec.Success && rec.Error != nil {
			status = string(rec.Error.Kind)
		}
		r.metrics.ObserveTool(call.Tool, status, rec.Duration)
	}()

	r.mu.RLock()
	e, ok := r.entries[call.Tool]
	r.mu.RUnlock()
	if !ok {
		rec.Error = &model.ToolError{Kind: model.KindUnknownTool, Message: fmt.Sprintf("tool %q is not registered", call.Tool)}
		return rec
	}

	args, err := e.validate(call.Arguments)
	if err != nil {
		rec.Error = &model.ToolError{Kind: model.KindValidation, Message: err.Error()}
		rec.Duration = r.now().Sub(start)
		logx.Warn().Str("tool", call.Tool).Err(err).Msg("tool arguments rejected")
		return rec
	}

	result, err := r.run(ctx, e.tool, args)
	rec.Duration = r.now().Sub(start)
	if err != nil {
		rec.Error = classify(err)
		logx.Warn().Str("tool", call.Tool).Str("kind", string(rec.Error.Kind)).Dur("duration", rec.Duration).Err(err).Msg("tool call failed")
		return rec
	}

	norm, err := normalizeResult(result)
	if err != nil {
		rec.Error = &model.ToolError{Kind: model.KindInternal, Message: "result not serializable: " + err.Error()}
		return rec
	}
	rec.Success = true
	rec.Result = norm
	logx.Debug().Str("tool", call.Tool).Dur("duration", rec.Duration).Msg("tool call succeeded")
	return rec
}

type outcome struct {
	value any
	err   error
}

// run invokes the tool in its own goroutine so a tool that ignores ctx still
// cannot hold the caller past the deadline.
func (r *Registry) run(ctx context.Context, t Tool, args map[string]any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				logx.Error().Str("tool", t.Name()).Str("stack", string(debug.Stack())).Msgf("tool panic: %v", p)
				done <- outcome{err: &panicError{value: p}}
			}
		}()
		v, err := t.Invoke(ctx, args)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && ctx.Err() != nil && errors.Is(o.err, ctx.Err()) {
			return nil, ctx.Err()
		}
		return o.value, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type panicError struct{ value any }

func (p *panicError) Error() string { return fmt.Sprintf("tool panicked: %v", p.value) }

func classify(err error) *model.ToolError {
	var pe *panicError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &model.ToolError{Kind: model.KindTimeout, Message: err.Error()}
	case errors.Is(err, ErrInvalidArgs):
		return &model.ToolError{Kind: model.KindValidation, Message: err.Error()}
	case errors.As(err, &pe):
		return &model.ToolError{Kind: model.KindInternal, Message: err.Error()}
	default:
		return &model.ToolError{Kind: model.KindTransport, Message: err.Error()}
	}
}

// normalizeArgs round-trips through JSON so the validator sees plain JSON values.
func normalizeArgs(args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// normalizeResult maps structs to map[string]any / []any so aggregation can inspect them.
func normalizeResult(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
