package prompts

import (
	_ "embed"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/finalize_prompt.txt
var finalizeSystemPrompt string

// HistoryKey is the placeholder filled with the user/assistant messages.
const HistoryKey = "history"

// FinalizeTemplate renders the answer prompt. Variables: language,
// preferences, summary, observations, note and the history messages.
func FinalizeTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(finalizeSystemPrompt),
		schema.MessagesPlaceholder(HistoryKey, false),
	)
}
