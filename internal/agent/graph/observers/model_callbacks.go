package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	"github.com/gasdesk/agent-server/internal/agent/metrics"
	agentmodel "github.com/gasdesk/agent-server/internal/agent/model"
	logx "github.com/gasdesk/agent-server/pkg/logger"
)

const maxLoggedRunes = 500

// newModelHandler logs model calls with token usage and cost, and feeds the LLM metrics.
func newModelHandler(m *metrics.Metrics) *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ev := logx.Debug().Str("node", info.Name).Str("type", info.Type)
			if input != nil {
				ev = ev.Int("messages", len(input.Messages))
				if um := lastUserContent(input.Messages); um != "" {
					ev = ev.Str("user", clip(um))
				}
			}
			ev.Msg("model call started")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			name := modelName(info, output)
			var usage *schema.TokenUsage
			if output != nil && output.Message != nil && output.Message.ResponseMeta != nil {
				usage = output.Message.ResponseMeta.Usage
			}
			if usage == nil && output != nil && output.TokenUsage != nil {
				usage = &schema.TokenUsage{
					PromptTokens:     output.TokenUsage.PromptTokens,
					CompletionTokens: output.TokenUsage.CompletionTokens,
					TotalTokens:      output.TokenUsage.TotalTokens,
				}
			}
			cost := agentmodel.ComputeCost(usage, agentmodel.ResolvePricing(name))
			m.ObserveLLM(name, nil, cost.PromptTokens, cost.CompletionTokens, cost.TotalUSD())

			ev := logx.Debug().
				Str("node", info.Name).
				Str("model", name).
				Int("prompt_tokens", cost.PromptTokens).
				Int("completion_tokens", cost.CompletionTokens).
				Float64("input_cost_usd", cost.InputUSD).
				Float64("output_cost_usd", cost.OutputUSD).
				Float64("total_cost_usd", cost.TotalUSD())
			if output != nil && output.Message != nil {
				ev = ev.Str("assistant", clip(strings.TrimSpace(output.Message.Content)))
			}
			ev.Msg("LLM usage")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			m.ObserveLLM(modelName(info, nil), err, 0, 0, 0)
			logx.Error().Str("node", info.Name).Err(err).Msg("model call failed")
			return ctx
		},
	}
}

func modelName(info *einocb.RunInfo, output *model.CallbackOutput) string {
	if output != nil && output.Config != nil && output.Config.Model != "" {
		return output.Config.Model
	}
	if info != nil && info.Name != "" {
		return info.Name
	}
	return "unknown"
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxLoggedRunes {
		return s
	}
	return string(r[:maxLoggedRunes]) + "..."
}
