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
)

// Finalizer composes the natural-language answer at the end of a run.
type Finalizer interface {
	Finalize(ctx context.Context, in model.FinalizeInput) (string, error)
}

// LLMFinalizer answers through an eino chain over the response model.
type LLMFinalizer struct {
	runnable  compose.Runnable[model.FinalizeInput, string]
	callbacks []einocb.Handler
}

func NewLLMFinalizer(ctx context.Context, cm einomodel.BaseChatModel, handlers ...einocb.Handler) (*LLMFinalizer, error) {
	if cm == nil {
		return nil, fmt.Errorf("finalizer needs a chat model")
	}
	runnable, err := compose.NewChain[model.FinalizeInput, string]().
		AppendLambda(nodes.NewFinalizeInputNode(), compose.WithNodeName(nodes.NodeFinalizeInput)).
		AppendChatTemplate(prompts.FinalizeTemplate(), compose.WithNodeName(nodes.NodeFinalizePrompt)).
		AppendChatModel(cm, compose.WithNodeName(nodes.NodeResponseModel)).
		AppendLambda(nodes.NewAnswerNode(), compose.WithNodeName(nodes.NodeAnswer)).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile finalize chain: %w", err)
	}
	return &LLMFinalizer{runnable: runnable, callbacks: handlers}, nil
}

func (f *LLMFinalizer) Finalize(ctx context.Context, in model.FinalizeInput) (string, error) {
	var opts []compose.Option
	if len(f.callbacks) > 0 {
		opts = append(opts, compose.WithCallbacks(f.callbacks...))
	}
	answer, err := f.runnable.Invoke(ctx, in, opts...)
	if err != nil {
		return "", fmt.Errorf("finalize: %w", err)
	}
	return answer, nil
}

// DegradedAnswer is the fixed apology used when no answer can be composed.
func DegradedAnswer(lang string) string {
	if lang == "en" {
		return "Sorry, I could not process your request right now. Please rephrase it or try again later."
	}
	return "Elnézést, most nem sikerült feldolgoznom a kérésedet. Kérlek, fogalmazd meg másképp, vagy próbáld újra később."
}

func ceilingNote(limit int) string {
	return fmt.Sprintf("NOTICE: the tool iteration limit (%d) was reached before the task was complete. "+
		"Summarise what was found so far and state clearly what is still missing.", limit)
}
