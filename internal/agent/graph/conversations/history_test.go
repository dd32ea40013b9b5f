package conversations

import (
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasdesk/agent-server/internal/agent/model"
)

func sample() []model.Turn {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := model.ToolCallRecord{
		Call:    model.ToolCall{Tool: "regulation", Arguments: map[string]any{"question": "engedély"}},
		Success: true,
		Result:  map[string]any{"answer": "A Hivatal."},
	}
	failed := model.ToolCallRecord{
		Call:  model.ToolCall{Tool: "gas_exported_quantity", Arguments: map[string]any{"pointLabel": "X"}},
		Error: &model.ToolError{Kind: model.KindTimeout, Message: "deadline exceeded"},
	}
	return []model.Turn{
		model.UserTurn("Ki adja ki az engedélyt?", now),
		rec.Turn(now),
		failed.Turn(now),
		model.AssistantTurn("A Hivatal.", now),
		model.UserTurn("És mennyi volt az export?", now),
	}
}

func TestTranscript(t *testing.T) {
	got := Transcript(sample())
	assert.Contains(t, got, "UserMessage(Ki adja ki az engedélyt?)")
	assert.Contains(t, got, `ToolResult(regulation {"question":"engedély"} [ok]: {"answer":"A Hivatal."})`)
	assert.Contains(t, got, "[failed]: error: timeout: deadline exceeded")
	assert.Equal(t, "(empty)", Transcript(nil))
}

func TestMessagesSkipToolTurns(t *testing.T) {
	msgs := Messages(sample())
	require.Len(t, msgs, 3)
	assert.Equal(t, schema.User, msgs[0].Role)
	assert.Equal(t, schema.Assistant, msgs[1].Role)
	assert.Equal(t, "És mennyi volt az export?", msgs[2].Content)
}

func TestTrimTailCopies(t *testing.T) {
	turns := sample()
	tail := TrimTail(turns, 2)
	require.Len(t, tail, 2)
	tail[0].Content = "changed"
	assert.Equal(t, "A Hivatal.", turns[3].Content)
	assert.Len(t, TrimTail(turns, 0), len(turns))
}

func TestExecutedCallsAndLastUser(t *testing.T) {
	turns := sample()
	keys := ExecutedCalls(turns)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, model.ToolCall{Tool: "regulation", Arguments: map[string]any{"question": "engedély"}}.Key())
	assert.Equal(t, "És mennyi volt az export?", LastUserMessage(turns))
	assert.Equal(t, "(none)", Observations(turns[:1]))
}
