package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/gasdesk/agent-server/internal/agent/graph/conversations"
	"github.com/gasdesk/agent-server/internal/agent/graph/parsers"
	"github.com/gasdesk/agent-server/internal/agent/graph/prompts"
	"github.com/gasdesk/agent-server/internal/agent/model"
	logx "github.com/gasdesk/agent-server/pkg/logger"
)

// Node names, visible in callback RunInfo.
const (
	NodeDecisionInput  = "DecisionInput"
	NodeDecisionPrompt = "DecisionPrompt"
	NodeDecisionModel  = "DecisionChatModel"
	NodeVerdictParser  = "VerdictParser"
	NodeFinalizeInput  = "FinalizeInput"
	NodeFinalizePrompt = "FinalizePrompt"
	NodeResponseModel  = "ResponseChatModel"
	NodeAnswer         = "Answer"
)

// NewDecisionInputNode maps a decision input onto the decision template variables.
func NewDecisionInputNode(catalog string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.DecisionInput) (map[string]any, error) {
		return map[string]any{
			"tools":       catalog,
			"preferences": PreferenceLines(in.Profile),
			"summary":     in.Summary,
			"history":     conversations.Transcript(in.Turns),
			"executed":    executedLines(in.Executed),
			"iteration":   in.Iteration,
		}, nil
	})
}

// NewVerdictParserNode parses the decision model output into a strict verdict.
func NewVerdictParserNode(known func(string) bool) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (model.Verdict, error) {
		if resp == nil {
			return model.Verdict{}, fmt.Errorf("%w: empty model response", parsers.ErrMalformedVerdict)
		}
		v, err := parsers.ParseVerdict(resp.Content, known)
		if err != nil {
			logx.Warn().Err(err).Msg("Error parsing verdict")
			return model.Verdict{}, err
		}
		return v, nil
	})
}

// NewFinalizeInputNode maps a finalize input onto the answer template variables.
func NewFinalizeInputNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.FinalizeInput) (map[string]any, error) {
		lang := DetectLanguage(in.Question, in.Profile.Language)
		history := conversations.Messages(in.Turns)
		if len(history) == 0 {
			history = []*schema.Message{schema.UserMessage(in.Question)}
		}
		return map[string]any{
			"language":         LanguageInstruction(lang),
			"preferences":      PreferenceLines(in.Profile),
			"summary":          in.Summary,
			"observations":     observationBlock(in),
			"note":             in.Note,
			prompts.HistoryKey: history,
		}, nil
	})
}

// NewAnswerNode extracts the answer text.
func NewAnswerNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (string, error) {
		if resp == nil || strings.TrimSpace(resp.Content) == "" {
			return "", fmt.Errorf("response model returned no content")
		}
		return strings.TrimSpace(resp.Content), nil
	})
}
