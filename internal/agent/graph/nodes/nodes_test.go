package nodes

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasdesk/agent-server/internal/agent/graph/prompts"
	"github.com/gasdesk/agent-server/internal/agent/model"
	"github.com/gasdesk/agent-server/internal/agent/tools"
)

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "hu", DetectLanguage("Mikor lesz új rendelet a földgázról?", "en"))
	assert.Equal(t, "en", DetectLanguage("What is the law on gas storage?", "hu"))
	assert.Equal(t, "en", DetectLanguage("Beregdaróc 2024", "en"))
	assert.Equal(t, "hu", DetectLanguage("Beregdaróc 2024", ""))
}

func TestPreferenceLines(t *testing.T) {
	p := model.NewUserProfile("u1", time.Now())
	p.Preferences["name"] = "Anna"
	p.Preferences["units"] = "kWh"
	assert.Equal(t, "- Language: hu\n- Default city: Budapest\n- Name: Anna\n- units: kWh", PreferenceLines(p))
}

func TestToolCatalog(t *testing.T) {
	got := ToolCatalog([]tools.Descriptor{{
		Name:        "regulation",
		Description: "Regulation questions",
		Schema:      json.RawMessage("{\n \"type\": \"object\"\n}"),
	}})
	assert.Equal(t, "- regulation: Regulation questions\n  arguments schema: {\"type\":\"object\"}", got)
}

func TestDecisionTemplateRenders(t *testing.T) {
	ctx := context.Background()
	vars, err := invokeLambda[model.DecisionInput](ctx, t, NewDecisionInputNode("- regulation: x"), model.DecisionInput{
		Turns:     []model.Turn{model.UserTurn("Ki a rendszerirányító?", time.Now())},
		Profile:   model.NewUserProfile("u1", time.Now()),
		Iteration: 1,
	})
	require.NoError(t, err)
	msgs, err := prompts.DecisionTemplate().Format(ctx, vars)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "- regulation: x")
	assert.Contains(t, msgs[1].Content, "UserMessage(Ki a rendszerirányító?)")
	assert.NotContains(t, msgs[1].Content, "<earlier_conversation>")
}

func TestFinalizeTemplateRenders(t *testing.T) {
	ctx := context.Background()
	vars, err := invokeLambda[model.FinalizeInput](ctx, t, NewFinalizeInputNode(), model.FinalizeInput{
		Question: "What is the law on gas storage?",
		Turns:    []model.Turn{model.UserTurn("What is the law on gas storage?", time.Now())},
		Profile:  model.NewUserProfile("u1", time.Now()),
		Note:     "The iteration limit was reached.",
	})
	require.NoError(t, err)
	msgs, err := prompts.FinalizeTemplate().Format(ctx, vars)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "You MUST respond in English.")
	assert.Contains(t, msgs[0].Content, "The iteration limit was reached.")
	assert.Equal(t, schema.User, msgs[1].Role)
}

// invokeLambda runs a single lambda node through a compiled one-node chain.
func invokeLambda[I any](ctx context.Context, t *testing.T, l *compose.Lambda, in I) (map[string]any, error) {
	t.Helper()
	r, err := compose.NewChain[I, map[string]any]().AppendLambda(l).Compile(ctx)
	require.NoError(t, err)
	return r.Invoke(ctx, in)
}
