// Package conversations renders session turns for the decision and answer prompts.
package conversations

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/gasdesk/agent-server/internal/agent/model"
)

const maxObservationRunes = 4000

// TrimTail returns a copy of the last maxTurns turns.
func TrimTail(turns []model.Turn, maxTurns int) []model.Turn {
	if maxTurns <= 0 || len(turns) <= maxTurns {
		result := make([]model.Turn, len(turns))
		copy(result, turns)
		return result
	}
	source := turns[len(turns)-maxTurns:]
	result := make([]model.Turn, len(source))
	copy(result, source)
	return result
}

// Transcript renders turns one per line for the decision prompt.
func Transcript(turns []model.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Content == "" {
			continue
		}
		switch t.Role {
		case model.RoleUser:
			b.WriteString("UserMessage(" + t.Content + ")\n")
		case model.RoleAssistant:
			b.WriteString("AssistantMessage(" + t.Content + ")\n")
		case model.RoleTool:
			b.WriteString(observation(t) + "\n")
		}
	}
	if b.Len() == 0 {
		return "(empty)"
	}
	return strings.TrimRight(b.String(), "\n")
}

// Observations renders only the tool turns.
func Observations(turns []model.Turn) string {
	var lines []string
	for _, t := range turns {
		if t.Role == model.RoleTool {
			lines = append(lines, observation(t))
		}
	}
	if len(lines) == 0 {
		return "(none)"
	}
	return strings.Join(lines, "\n")
}

// Messages converts user and assistant turns to chat messages; tool turns
// are carried by Observations instead.
func Messages(turns []model.Turn) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		switch t.Role {
		case model.RoleUser:
			msgs = append(msgs, schema.UserMessage(t.Content))
		case model.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(t.Content, nil))
		}
	}
	return msgs
}

// LastUserMessage returns the content of the most recent user turn.
func LastUserMessage(turns []model.Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == model.RoleUser {
			return turns[i].Content
		}
	}
	return ""
}

// ExecutedCalls lists the tool calls recorded in turns, keyed by call key.
func ExecutedCalls(turns []model.Turn) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range turns {
		if key := t.CallKey(); key != "" {
			out[key] = struct{}{}
		}
	}
	return out
}

func observation(t model.Turn) string {
	tool, _ := t.Metadata[model.MetaTool].(string)
	status := "ok"
	if ok, _ := t.Metadata[model.MetaSuccess].(bool); !ok {
		status = "failed"
	}
	args := ""
	if key := t.CallKey(); key != "" {
		args = strings.TrimPrefix(key, tool+" ")
	}
	return "ToolResult(" + tool + " " + args + " [" + status + "]: " + clip(t.Content, maxObservationRunes) + ")"
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
