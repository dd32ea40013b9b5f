package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/prompt"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/gasdesk/agent-server/pkg/logger"
)

// newPromptHandler logs the size of every rendered prompt.
func newPromptHandler() *callbackHelper.PromptCallbackHandler {
	return &callbackHelper.PromptCallbackHandler{
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *prompt.CallbackOutput) context.Context {
			if output == nil {
				return ctx
			}
			total := 0
			for _, m := range output.Result {
				if m != nil {
					total += len(m.Content)
				}
			}
			logx.Debug().Str("node", info.Name).Int("messages", len(output.Result)).Int("bytes", total).Msg("prompt rendered")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Str("node", info.Name).Err(err).Msg("prompt render failed")
			return ctx
		},
	}
}
