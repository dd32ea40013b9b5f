package regulation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasdesk/agent-server/internal/agent/fakellm"
	"github.com/gasdesk/agent-server/internal/agent/model"
	"github.com/gasdesk/agent-server/internal/agent/tools"
)

const corpus = `1. § E törvény hatálya kiterjed a földgáz szállítására, tárolására és elosztására.

2. § Földgázkereskedelmi tevékenység a Hivatal engedélyével végezhető. Az engedély kiadásáról a Hivatal dönt.

3. § A rendszerirányító biztosítja a földgázrendszer biztonságos működését.`

func TestCorpusRetriever(t *testing.T) {
	r := NewCorpusRetriever(corpus)
	require.Equal(t, 3, r.Len())

	docs, err := r.Retrieve(context.Background(), "Ki adja ki az engedély a Hivatal?", retriever.WithTopK(1))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "2. §", docs[0].MetaData["page"])

	docs, err = r.Retrieve(context.Background(), "földgáz")
	require.NoError(t, err)
	assert.NotEmpty(t, docs)

	docs, err = r.Retrieve(context.Background(), "xyz")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestCorpusRetrieverParagraphFallback(t *testing.T) {
	r := NewCorpusRetriever("first paragraph about storage\n\nsecond paragraph about transport")
	docs, err := r.Retrieve(context.Background(), "transport")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "paragraph 2", docs[0].MetaData["page"])
}

func TestToolQuery(t *testing.T) {
	ctx := context.Background()
	llm := fakellm.Text("A Hivatal adja ki az engedélyt (2. §).")
	tool, err := NewTool(ctx, NewCorpusRetriever(corpus), llm, "GET")
	require.NoError(t, err)

	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tool))

	rec := reg.Invoke(ctx, model.ToolCall{Tool: ToolName, Arguments: map[string]any{"action": "query", "question": "Ki adja ki az engedélyt a Hivatal?", "top_k": 2}})
	require.True(t, rec.Success, "%+v", rec.Error)
	res := rec.Result.(map[string]any)
	assert.Equal(t, "A Hivatal adja ki az engedélyt (2. §).", res["answer"])
	assert.Equal(t, "GET", res["regulation_title"])
	assert.NotEmpty(t, res["sources"])

	// the rendered prompt carries the retrieved passage
	inputs := llm.Inputs()
	require.Len(t, inputs, 1)
	assert.True(t, strings.Contains(inputs[0][0].Content, "Hivatal engedélyével"))
	assert.Equal(t, schema.User, inputs[0][0].Role)
}

func TestToolInfoAndValidation(t *testing.T) {
	ctx := context.Background()
	tool, err := NewTool(ctx, NewCorpusRetriever(corpus), fakellm.Text(), "GET")
	require.NoError(t, err)
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tool))

	info := reg.Invoke(ctx, model.ToolCall{Tool: ToolName, Arguments: map[string]any{"action": "info"}})
	require.True(t, info.Success)
	assert.Equal(t, map[string]any{"title": "GET", "sections": float64(3)}, info.Result)

	noQuestion := reg.Invoke(ctx, model.ToolCall{Tool: ToolName, Arguments: map[string]any{"action": "query"}})
	require.NotNil(t, noQuestion.Error)
	assert.Equal(t, model.KindValidation, noQuestion.Error.Kind)

	badTopK := reg.Invoke(ctx, model.ToolCall{Tool: ToolName, Arguments: map[string]any{"question": "q", "top_k": 0}})
	require.NotNil(t, badTopK.Error)
	assert.Equal(t, model.KindValidation, badTopK.Error.Kind)
}

func TestToolModelFailure(t *testing.T) {
	ctx := context.Background()
	llm := fakellm.New(fakellm.Reply{Err: errors.New("quota exceeded")})
	tool, err := NewTool(ctx, NewCorpusRetriever(corpus), llm, "GET")
	require.NoError(t, err)

	_, err = tool.Invoke(ctx, map[string]any{"question": "Hivatal"})
	var te *tools.TransportError
	assert.ErrorAs(t, err, &te)
}
