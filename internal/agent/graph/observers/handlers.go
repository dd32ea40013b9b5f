package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	"github.com/gasdesk/agent-server/internal/agent/metrics"
)

// NewAllCallbacks aggregates the model and prompt observers into one callbacks.Handler.
// m may be nil.
func NewAllCallbacks(m *metrics.Metrics) einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		ChatModel(newModelHandler(m)).
		Prompt(newPromptHandler()).
		Handler()
}
