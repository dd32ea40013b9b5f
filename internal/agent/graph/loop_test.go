package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasdesk/agent-server/internal/agent/fakellm"
	"github.com/gasdesk/agent-server/internal/agent/model"
)

var now = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func TestImmediateFinalize(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	in := newSession(t, store, "s1", model.UserTurn("What is the law on gas storage?", now))

	decider := &scriptedDecider{verdicts: []model.Verdict{model.FinalizeVerdict("answerable directly")}}
	fin := &stubFinalizer{}
	loop := NewLoop(Config{}, decider, newRegistry(t, time.Second), fin, store)

	res, err := loop.Run(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNormal, res.Outcome)
	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, "final: What is the law on gas storage?", res.Answer)
	assert.Empty(t, res.Records)

	sess, err := store.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, sess.Iterations)
	require.Len(t, sess.Turns, 2)
	assert.Equal(t, model.RoleAssistant, sess.Turns[1].Role)
	assert.Equal(t, res.Answer, sess.Turns[1].Content)
}

func TestDuplicateCallInHistoryFinalizes(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	doc := echoTool("docTool")
	call := model.ToolCall{Tool: "docTool", Arguments: map[string]any{"q": "storage"}}
	prior := model.ToolCallRecord{Call: call, Success: true, Result: map[string]any{"echo": "x"}}
	in := newSession(t, store, "s1",
		model.UserTurn("storage rules?", now),
		prior.Turn(now),
		model.UserTurn("and again?", now),
	)

	decider := &scriptedDecider{verdicts: []model.Verdict{model.InvokeVerdict("look it up", call)}}
	fin := &stubFinalizer{}
	res, err := NewLoop(Config{}, decider, newRegistry(t, time.Second, doc), fin, store).Run(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, 0, doc.count())
	assert.Equal(t, 0, res.Iterations)
	require.Len(t, res.Verdicts, 2)
	assert.Equal(t, model.FinalizeVerdict(RationaleDuplicate), res.Verdicts[1])
	assert.Len(t, fin.inputs, 1)
}

func TestDuplicateCallWithinRunFinalizes(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	doc := echoTool("docTool")
	in := newSession(t, store, "s1", model.UserTurn("storage rules?", now))

	// argument order differs but the canonical pair is the same
	first := model.ToolCall{Tool: "docTool", Arguments: map[string]any{"q": "storage", "k": 1.0}}
	again := model.ToolCall{Tool: "docTool", Arguments: map[string]any{"k": 1.0, "q": "storage"}}
	decider := &scriptedDecider{verdicts: []model.Verdict{
		model.InvokeVerdict("first", first),
		model.InvokeVerdict("retry", again),
	}}
	res, err := NewLoop(Config{DecisionTurns: 1}, decider, newRegistry(t, time.Second, doc), &stubFinalizer{}, store).Run(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, 1, doc.count())
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, RationaleDuplicate, res.Verdicts[len(res.Verdicts)-1].Rationale)
}

func TestCeilingForcesFinalize(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	doc := echoTool("docTool")
	in := newSession(t, store, "s1", model.UserTurn("keep digging", now))

	decider := &scriptedDecider{next: func(in model.DecisionInput) (model.Verdict, error) {
		return model.InvokeVerdict("more", model.ToolCall{Tool: "docTool", Arguments: map[string]any{"page": float64(in.Iteration)}}), nil
	}}
	fin := &stubFinalizer{}
	res, err := NewLoop(Config{MaxIterations: 10}, decider, newRegistry(t, time.Second, doc), fin, store).Run(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeCeiling, res.Outcome)
	assert.Equal(t, 10, res.Iterations)
	assert.Equal(t, 10, decider.calls())
	assert.Equal(t, 9, doc.count(), "the tenth invoke is counted but never executed")
	require.Len(t, res.Verdicts, 11)
	assert.Equal(t, model.ActionInvoke, res.Verdicts[9].Action)
	assert.Equal(t, model.FinalizeVerdict(RationaleCeiling), res.Verdicts[10])
	require.Len(t, fin.inputs, 1)
	assert.Contains(t, fin.inputs[0].Note, "(10)")

	sess, err := store.Session(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 10, sess.Iterations)
	assert.Len(t, sess.Turns, 1+9+1)
}

func TestDuplicateCallOutsideDecisionWindowFinalizes(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	doc := echoTool("docTool")
	call := model.ToolCall{Tool: "docTool", Arguments: map[string]any{"q": "storage"}}
	prior := model.ToolCallRecord{Call: call, Success: true, Result: map[string]any{"echo": "x"}}
	in := newSession(t, store, "s1",
		model.UserTurn("storage rules?", now),
		prior.Turn(now),
		model.AssistantTurn("a1", now),
		model.UserTurn("u2", now),
		model.AssistantTurn("a2", now),
		model.UserTurn("u3", now),
		model.AssistantTurn("a3", now),
		model.UserTurn("and again?", now),
	)

	decider := &scriptedDecider{verdicts: []model.Verdict{model.InvokeVerdict("look it up", call)}}
	res, err := NewLoop(Config{DecisionTurns: 5}, decider, newRegistry(t, time.Second, doc), &stubFinalizer{}, store).Run(ctx, in)
	require.NoError(t, err)

	require.Len(t, decider.inputs, 1)
	for _, turn := range decider.inputs[0].Turns {
		assert.NotEqual(t, model.RoleTool, turn.Role)
	}
	assert.Equal(t, 0, doc.count())
	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, RationaleDuplicate, res.Verdicts[len(res.Verdicts)-1].Rationale)
}

func TestDuplicateCallFromEarlierHistoryFinalizes(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	doc := echoTool("docTool")
	call := model.ToolCall{Tool: "docTool", Arguments: map[string]any{"q": "storage"}}
	in := newSession(t, store, "s1", model.UserTurn("and again?", now))
	// the caller trimmed the turns but still knows every call made in the session
	in.Executed = map[string]struct{}{call.Key(): {}}

	decider := &scriptedDecider{verdicts: []model.Verdict{model.InvokeVerdict("look it up", call)}}
	res, err := NewLoop(Config{}, decider, newRegistry(t, time.Second, doc), &stubFinalizer{}, store).Run(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, 0, doc.count())
	assert.Equal(t, RationaleDuplicate, res.Verdicts[len(res.Verdicts)-1].Rationale)
}

func TestCounterNeverExceedsCeiling(t *testing.T) {
	for _, limit := range []int{1, 2, 5} {
		t.Run(fmt.Sprint(limit), func(t *testing.T) {
			store := newStore()
			in := newSession(t, store, "s", model.UserTurn("go", now))
			decider := &scriptedDecider{next: func(in model.DecisionInput) (model.Verdict, error) {
				assert.LessOrEqual(t, in.Iteration, limit)
				return model.InvokeVerdict("more", model.ToolCall{Tool: "docTool", Arguments: map[string]any{"n": float64(in.Iteration)}}), nil
			}}
			res, err := NewLoop(Config{MaxIterations: limit}, decider, newRegistry(t, time.Second, echoTool("docTool")), &stubFinalizer{}, store).
				Run(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, limit, res.Iterations)
		})
	}
}

func TestFanOutTimeoutAndSuccess(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	stats := &funcTool{name: "statsTool", fn: func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	doc := echoTool("docTool")
	in := newSession(t, store, "s1", model.UserTurn("export and rules?", now))

	decider := &scriptedDecider{verdicts: []model.Verdict{
		model.InvokeVerdict("both",
			model.ToolCall{Tool: "statsTool", Arguments: map[string]any{"point": "Beregdaróc"}},
			model.ToolCall{Tool: "docTool", Arguments: map[string]any{"q": "export"}},
		),
		model.FinalizeVerdict("enough"),
	}}
	res, err := NewLoop(Config{}, decider, newRegistry(t, 50*time.Millisecond, stats, doc), &stubFinalizer{}, store).Run(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Iterations)
	require.Len(t, res.Aggregated.Failures, 1)
	assert.Equal(t, "statsTool", res.Aggregated.Failures[0].Call.Tool)
	assert.Equal(t, model.KindTimeout, res.Aggregated.Failures[0].Error.Kind)
	require.Len(t, res.Aggregated.Records["docTool"], 1)
	assert.True(t, res.Aggregated.Records["docTool"][0].Success)

	sess, err := store.Session(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, sess.Turns, 4)
	assert.Equal(t, "docTool", sess.Turns[1].Metadata[model.MetaTool])
	assert.Equal(t, "statsTool", sess.Turns[2].Metadata[model.MetaTool])
	assert.Equal(t, model.RoleAssistant, sess.Turns[3].Role)

	// the second decision sees both observations
	require.Len(t, decider.inputs, 2)
	assert.Len(t, decider.inputs[1].Executed, 2)
}

func TestDecisionErrorDegrades(t *testing.T) {
	store := newStore()
	in := newSession(t, store, "s1", model.UserTurn("Milyen szabályozás van a tárolásról?", now))
	fin := &stubFinalizer{}
	decider := &scriptedDecider{next: func(model.DecisionInput) (model.Verdict, error) {
		return model.Verdict{}, errors.New("unparseable")
	}}
	res, err := NewLoop(Config{}, decider, newRegistry(t, time.Second), fin, store).Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDegraded, res.Outcome)
	assert.Equal(t, DegradedAnswer("hu"), res.Answer)
	assert.Empty(t, fin.inputs)
}

func TestInvokeWithoutCallsDegrades(t *testing.T) {
	store := newStore()
	in := newSession(t, store, "s1", model.UserTurn("What is the act?", now))
	decider := &scriptedDecider{verdicts: []model.Verdict{{Action: model.ActionInvoke, Rationale: "?"}}}
	res, err := NewLoop(Config{}, decider, newRegistry(t, time.Second), &stubFinalizer{}, store).Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDegraded, res.Outcome)
	assert.Equal(t, DegradedAnswer("en"), res.Answer)
}

func TestFinalizerFailureFallsBack(t *testing.T) {
	store := newStore()
	in := newSession(t, store, "s1", model.UserTurn("What is the law?", now))
	decider := &scriptedDecider{verdicts: []model.Verdict{model.FinalizeVerdict("direct")}}
	res, err := NewLoop(Config{}, decider, newRegistry(t, time.Second), &stubFinalizer{err: errors.New("quota")}, store).
		Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, DegradedAnswer("en"), res.Answer)
	assert.Equal(t, model.OutcomeNormal, res.Outcome)
}

func TestPersistenceErrorAborts(t *testing.T) {
	decider := &scriptedDecider{verdicts: []model.Verdict{
		model.InvokeVerdict("look", model.ToolCall{Tool: "docTool", Arguments: map[string]any{}}),
	}}
	in := RunInput{SessionID: "s1", Turns: []model.Turn{model.UserTurn("hi", now)}, Profile: model.NewUserProfile("u", now)}
	_, err := NewLoop(Config{}, decider, newRegistry(t, time.Second, echoTool("docTool")), &stubFinalizer{}, failingHistory{}).
		Run(context.Background(), in)
	assert.ErrorContains(t, err, "disk full")
}

func TestRunWithLLMChains(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	doc := echoTool("docTool")
	reg := newRegistry(t, time.Second, doc)
	in := newSession(t, store, "s1", model.UserTurn("What is the storage rule?", now))

	decisionLLM := fakellm.Text(
		"```json\n{\"action\":\"call_tool\",\"tool_name\":\"docTool\",\"arguments\":{\"q\":\"storage\"},\"reasoning\":\"need the text\"}\n```",
		`{"action":"final_answer","reasoning":"have it"}`,
	)
	responseLLM := fakellm.Text("Storage is regulated by section 3.")

	loop, err := Build(ctx, Deps{DecisionModel: decisionLLM, ResponseModel: responseLLM, Tools: reg, History: store})
	require.NoError(t, err)
	res, err := loop.Run(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, "Storage is regulated by section 3.", res.Answer)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, 1, doc.count())
	assert.Equal(t, 2, decisionLLM.Calls())

	// the second routing prompt carries the observation
	second := decisionLLM.Inputs()[1]
	assert.Contains(t, second[len(second)-1].Content, `ToolResult(docTool {"q":"storage"} [ok]`)
	// the answer prompt is told to use English
	assert.Contains(t, responseLLM.Inputs()[0][0].Content, "You MUST respond in English.")
}

func TestRunWithUnparseableModelOutput(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	in := newSession(t, store, "s1", model.UserTurn("What is the storage rule?", now))

	loop, err := Build(ctx, Deps{
		DecisionModel: fakellm.Text("I think you should call a tool."),
		ResponseModel: fakellm.Text(),
		Tools:         newRegistry(t, time.Second, echoTool("docTool")),
		History:       store,
	})
	require.NoError(t, err)
	res, err := loop.Run(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDegraded, res.Outcome)
	assert.Equal(t, DegradedAnswer("en"), res.Answer)
}
