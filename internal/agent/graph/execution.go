package graph

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gasdesk/agent-server/internal/agent/model"
)

// Invoker runs one tool call and always returns a record. tools.Registry implements it.
type Invoker interface {
	Invoke(ctx context.Context, call model.ToolCall) model.ToolCallRecord
}

// HistoryWriter is the part of the memory store the loop writes through.
type HistoryWriter interface {
	Append(ctx context.Context, sessionID string, turns ...model.Turn) error
	UpdateSession(ctx context.Context, sessionID string, fn func(*model.Session)) (model.Session, error)
}

// Executor dispatches the calls of one verdict and records their observations.
type Executor struct {
	invoker Invoker
	history HistoryWriter
	now     func() time.Time
}

func NewExecutor(inv Invoker, history HistoryWriter) *Executor {
	return &Executor{invoker: inv, history: history, now: func() time.Time { return time.Now().UTC() }}
}

// Execute runs every call of v. A single call runs inline; several run
// concurrently and are all awaited. Branches share no context, so a failing
// branch never cancels its siblings. Records come back sorted by
// (tool, arguments) and are appended to the session in that order before
// Execute returns. The only error is a persistence failure.
func (e *Executor) Execute(ctx context.Context, sessionID string, v model.Verdict, iteration int) ([]model.ToolCallRecord, error) {
	records := make([]model.ToolCallRecord, len(v.Calls))
	switch len(v.Calls) {
	case 0:
		return nil, nil
	case 1:
		records[0] = e.invoker.Invoke(ctx, v.Calls[0])
	default:
		var g errgroup.Group
		for i, call := range v.Calls {
			g.Go(func() error {
				records[i] = e.invoker.Invoke(ctx, call)
				return nil
			})
		}
		_ = g.Wait()
	}
	for i := range records {
		records[i].Iteration = iteration
	}
	model.SortRecords(records)

	now := e.now()
	turns := make([]model.Turn, 0, len(records))
	for _, r := range records {
		turns = append(turns, r.Turn(now))
	}
	if err := e.history.Append(ctx, sessionID, turns...); err != nil {
		return records, fmt.Errorf("append tool observations: %w", err)
	}
	return records, nil
}
