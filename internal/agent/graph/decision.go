package graph

import (
	"context"
	"fmt"

	einocb "github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	"github.com/gasdesk/agent-server/internal/agent/graph/nodes"
	"github.com/gasdesk/agent-server/internal/agent/graph/prompts"
	"github.com/gasdesk/agent-server/internal/agent/model"
	"github.com/gasdesk/agent-server/internal/agent/tools"
)

// Decider produces the next routing verdict. Any error is a decision error.
type Decider interface {
	Decide(ctx context.Context, in model.DecisionInput) (model.Verdict, error)
}

// ToolCatalog is the registry surface the decision step needs.
type ToolCatalog interface {
	Descriptors() []tools.Descriptor
	Has(name string) bool
}

// LLMDecider asks a chat model for a verdict through a compiled eino chain:
// input mapping, chat template, chat model, strict parser.
type LLMDecider struct {
	runnable  compose.Runnable[model.DecisionInput, model.Verdict]
	callbacks []einocb.Handler
}

func NewLLMDecider(ctx context.Context, cm einomodel.BaseChatModel, catalog ToolCatalog, handlers ...einocb.Handler) (*LLMDecider, error) {
	if cm == nil || catalog == nil {
		return nil, fmt.Errorf("decider needs a chat model and a tool catalog")
	}
	runnable, err := compose.NewChain[model.DecisionInput, model.Verdict]().
		AppendLambda(nodes.NewDecisionInputNode(nodes.ToolCatalog(catalog.Descriptors())), compose.WithNodeName(nodes.NodeDecisionInput)).
		AppendChatTemplate(prompts.DecisionTemplate(), compose.WithNodeName(nodes.NodeDecisionPrompt)).
		AppendChatModel(cm, compose.WithNodeName(nodes.NodeDecisionModel)).
		AppendLambda(nodes.NewVerdictParserNode(catalog.Has), compose.WithNodeName(nodes.NodeVerdictParser)).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile decision chain: %w", err)
	}
	return &LLMDecider{runnable: runnable, callbacks: handlers}, nil
}

func (d *LLMDecider) Decide(ctx context.Context, in model.DecisionInput) (model.Verdict, error) {
	var opts []compose.Option
	if len(d.callbacks) > 0 {
		opts = append(opts, compose.WithCallbacks(d.callbacks...))
	}
	v, err := d.runnable.Invoke(ctx, in, opts...)
	if err != nil {
		return model.Verdict{}, fmt.Errorf("decide: %w", err)
	}
	return v, nil
}
