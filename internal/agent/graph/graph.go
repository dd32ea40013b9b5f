// Package graph is the agent's control loop: a strict decision chain, a
// fan-out executor, an order-independent aggregator and an answer chain,
// driven by an explicit state machine.
package graph

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/gasdesk/agent-server/internal/agent/graph/observers"
	"github.com/gasdesk/agent-server/internal/agent/metrics"
	logx "github.com/gasdesk/agent-server/pkg/logger"
)

// ToolSet is what the loop needs from the tool registry.
type ToolSet interface {
	ToolCatalog
	Invoker
}

// Deps holds everything needed to compose the loop end-to-end.
type Deps struct {
	DecisionModel einomodel.BaseChatModel
	ResponseModel einomodel.BaseChatModel
	Tools         ToolSet
	History       HistoryWriter
	Metrics       *metrics.Metrics
	Loop          Config
}

// Build compiles the decision and answer chains and returns the loop.
func Build(ctx context.Context, deps Deps) (*Loop, error) {
	if deps.Tools == nil {
		return nil, fmt.Errorf("tool set is nil")
	}
	if deps.History == nil {
		return nil, fmt.Errorf("history writer is nil")
	}

	cb := observers.NewAllCallbacks(deps.Metrics)
	decider, err := NewLLMDecider(ctx, deps.DecisionModel, deps.Tools, cb)
	if err != nil {
		return nil, err
	}
	finalizer, err := NewLLMFinalizer(ctx, deps.ResponseModel, cb)
	if err != nil {
		return nil, err
	}

	logx.Debug().Int("tools", len(deps.Tools.Descriptors())).Msg("Control loop built successfully")
	return NewLoop(deps.Loop, decider, deps.Tools, finalizer, deps.History, WithMetrics(deps.Metrics)), nil
}
