package regulation

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/gasdesk/agent-server/internal/agent/tools"
)

const (
	ToolName     = "regulation"
	ActionQuery  = "query"
	ActionInfo   = "info"
	previewRunes = 200
)

//go:embed answer_prompt.txt
var answerTemplate string

var argsSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"action": {"type": "string", "enum": ["query", "info"], "default": "query"},
		"question": {"type": "string", "description": "Question about the regulation"},
		"top_k": {"type": "integer", "minimum": 1, "maximum": 20, "default": 5}
	},
	"additionalProperties": false
}`)

// Source is one retrieved passage cited by an answer.
type Source struct {
	Page           string `json:"page"`
	ContentPreview string `json:"content_preview"`
}

type Answer struct {
	Answer          string   `json:"answer"`
	Sources         []Source `json:"sources"`
	Question        string   `json:"question"`
	RegulationTitle string   `json:"regulation_title"`
}

type Info struct {
	Title    string `json:"title"`
	Sections int    `json:"sections"`
}

type answerInput struct {
	question string
	docs     []*schema.Document
}

// Tool answers regulation questions. Retrieval is delegated to any eino retriever.
type Tool struct {
	retriever retriever.Retriever
	title     string
	sections  int
	chain     compose.Runnable[answerInput, string]
}

// NewTool compiles the answer chain: context lambda, chat template, chat model, text extraction.
func NewTool(ctx context.Context, r retriever.Retriever, cm model.BaseChatModel, title string) (*Tool, error) {
	if r == nil || cm == nil {
		return nil, errors.New("regulation tool needs a retriever and a chat model")
	}
	chain, err := compose.NewChain[answerInput, string]().
		AppendLambda(compose.InvokableLambda(func(_ context.Context, in answerInput) (map[string]any, error) {
			parts := make([]string, 0, len(in.docs))
			for _, d := range in.docs {
				parts = append(parts, fmt.Sprintf("[%v]\n%s", d.MetaData["page"], d.Content))
			}
			return map[string]any{"context": strings.Join(parts, "\n\n"), "question": in.question, "title": title}, nil
		})).
		AppendChatTemplate(prompt.FromMessages(schema.GoTemplate, schema.UserMessage(answerTemplate))).
		AppendChatModel(cm).
		AppendLambda(compose.InvokableLambda(func(_ context.Context, msg *schema.Message) (string, error) {
			return strings.TrimSpace(msg.Content), nil
		})).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile regulation chain: %w", err)
	}
	t := &Tool{retriever: r, title: title, chain: chain}
	if c, ok := r.(*CorpusRetriever); ok {
		t.sections = c.Len()
	}
	return t, nil
}

func (t *Tool) Name() string { return ToolName }

func (t *Tool) Description() string {
	return fmt.Sprintf("Questions about the regulation %q. Actions: 'query' answers a question from the regulation text, 'info' describes the loaded regulation.", t.title)
}

func (t *Tool) Schema() json.RawMessage { return argsSchema }

func (t *Tool) Validate(args map[string]any) error {
	if tools.StringArg(args, "action", ActionQuery) == ActionQuery && strings.TrimSpace(tools.StringArg(args, "question", "")) == "" {
		return tools.Invalid("question is required for the query action")
	}
	return nil
}

func (t *Tool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	if tools.StringArg(args, "action", ActionQuery) == ActionInfo {
		return Info{Title: t.title, Sections: t.sections}, nil
	}
	question := strings.TrimSpace(tools.StringArg(args, "question", ""))
	topK := tools.IntArg(args, "top_k", defaultTopK)

	docs, err := t.retriever.Retrieve(ctx, question, retriever.WithTopK(topK))
	if err != nil {
		return nil, tools.Transport(fmt.Errorf("retrieve: %w", err))
	}
	answer, err := t.chain.Invoke(ctx, answerInput{question: question, docs: docs})
	if err != nil {
		return nil, tools.Transport(fmt.Errorf("answer: %w", err))
	}

	sources := make([]Source, 0, len(docs))
	for _, d := range docs {
		sources = append(sources, Source{Page: fmt.Sprint(d.MetaData["page"]), ContentPreview: preview(d.Content)})
	}
	return Answer{Answer: answer, Sources: sources, Question: question, RegulationTitle: t.title}, nil
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewRunes {
		return s
	}
	return string(r[:previewRunes]) + "..."
}

var _ tools.Validator = (*Tool)(nil)
