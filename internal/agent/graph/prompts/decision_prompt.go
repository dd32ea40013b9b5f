package prompts

import (
	_ "embed"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/decision_prompt.txt
var decisionSystemPrompt string

//go:embed template/decision_context.txt
var decisionContextPrompt string

// DecisionTemplate renders the routing prompt. Variables: tools, preferences,
// summary, history, executed, iteration.
func DecisionTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(decisionSystemPrompt),
		schema.UserMessage(decisionContextPrompt),
	)
}
