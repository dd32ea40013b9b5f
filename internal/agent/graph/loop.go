package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gasdesk/agent-server/internal/agent/graph/conversations"
	"github.com/gasdesk/agent-server/internal/agent/graph/nodes"
	"github.com/gasdesk/agent-server/internal/agent/metrics"
	"github.com/gasdesk/agent-server/internal/agent/model"
	logx "github.com/gasdesk/agent-server/pkg/logger"
)

const (
	DefaultMaxIterations = 10
	DefaultDecisionTurns = 5
	DefaultFinalizeTurns = 10

	RationaleDuplicate = "duplicate tool call refused"
	RationaleCeiling   = "iteration ceiling reached"
)

type Config struct {
	MaxIterations int
	DecisionTurns int
	FinalizeTurns int
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.DecisionTurns <= 0 {
		c.DecisionTurns = DefaultDecisionTurns
	}
	if c.FinalizeTurns <= 0 {
		c.FinalizeTurns = DefaultFinalizeTurns
	}
	return c
}

// RunInput is the freshly loaded state a run starts from. Turns already end
// with the user's message. Executed holds the call keys of every tool turn in
// the whole session; when nil it is derived from Turns.
type RunInput struct {
	SessionID string
	Turns     []model.Turn
	Summary   string
	Profile   model.UserProfile
	Executed  map[string]struct{}
}

type RunResult struct {
	RunID      string
	Answer     string
	Outcome    model.Outcome
	Iterations int
	Verdicts   []model.Verdict
	Records    []model.ToolCallRecord
	Aggregated model.AggregatedResult
	Session    model.Session
	Logs       []string
}

// Loop drives Deciding -> Executing -> Aggregating -> Deciding until a
// finalize verdict, a decision error or the iteration ceiling, then
// Finalizing -> Done.
type Loop struct {
	cfg       Config
	decider   Decider
	executor  *Executor
	finalizer Finalizer
	history   HistoryWriter
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Loop)

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		l.now = now
		l.executor.now = now
	}
}

func NewLoop(cfg Config, d Decider, inv Invoker, f Finalizer, h HistoryWriter, opts ...Option) *Loop {
	l := &Loop{
		cfg:       cfg.withDefaults(),
		decider:   d,
		executor:  NewExecutor(inv, h),
		finalizer: f,
		history:   h,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type run struct {
	in       RunInput
	prior    map[string]struct{}
	question string
	lang     string
	log      zerolog.Logger
}

// Run executes one loop. Only persistence failures return an error; tool
// failures, decision errors and the ceiling all end in an answer.
func (l *Loop) Run(ctx context.Context, in RunInput) (RunResult, error) {
	started := time.Now()
	runID := uuid.NewString()
	question := conversations.LastUserMessage(in.Turns)
	prior := in.Executed
	if prior == nil {
		prior = conversations.ExecutedCalls(in.Turns)
	}
	r := &run{
		in:       in,
		prior:    prior,
		question: question,
		lang:     nodes.DetectLanguage(question, in.Profile.Language),
		log:      logx.Component("loop").With().Str("run_id", runID).Str("session_id", in.SessionID).Logger(),
	}

	s := loopState{
		phase:   Deciding,
		turns:   conversations.TrimTail(in.Turns, 0),
		outcome: model.OutcomeNormal,
	}
	for s.phase != Done {
		phase := s.phase
		stepStart := time.Now()
		var err error
		switch phase {
		case Deciding:
			s = l.decide(ctx, r, s)
		case Executing:
			s, err = l.execute(ctx, r, s)
		case Aggregating:
			s = l.aggregate(r, s)
		case Finalizing:
			s, err = l.finalize(ctx, r, s)
		}
		l.metrics.ObserveStep(phase.String(), time.Since(stepStart))
		if err != nil {
			l.metrics.ObserveRun("error", s.iterations, time.Since(started))
			r.log.Error().Err(err).Str("phase", phase.String()).Msg("loop aborted")
			return RunResult{}, err
		}
	}

	l.metrics.ObserveRun(string(s.outcome), s.iterations, time.Since(started))
	r.log.Info().Str("outcome", string(s.outcome)).Int("iterations", s.iterations).Int("tool_calls", len(s.records)).Msg("loop finished")
	return RunResult{
		RunID:      runID,
		Answer:     s.answer,
		Outcome:    s.outcome,
		Iterations: s.iterations,
		Verdicts:   s.verdicts,
		Records:    s.records,
		Aggregated: s.aggregated,
		Session:    s.session,
		Logs:       s.logs,
	}, nil
}

func (l *Loop) decide(ctx context.Context, r *run, s loopState) loopState {
	next := s
	next.phase = Finalizing

	if s.iterations >= l.cfg.MaxIterations {
		return l.forceCeiling(r, s, next)
	}

	window := conversations.TrimTail(s.turns, l.cfg.DecisionTurns)
	v, err := l.decider.Decide(ctx, model.DecisionInput{
		Turns:     window,
		Summary:   r.in.Summary,
		Profile:   r.in.Profile,
		Executed:  appendClone(s.executed),
		Iteration: s.iterations + 1,
	})
	if err == nil && v.Action == model.ActionInvoke && len(v.Calls) == 0 {
		err = fmt.Errorf("invoke verdict without calls")
	}
	if err == nil && v.Action != model.ActionInvoke && v.Action != model.ActionFinalize {
		err = fmt.Errorf("unknown verdict action %q", v.Action)
	}
	if err != nil {
		r.log.Warn().Err(err).Msg("decision failed, finalizing with degraded answer")
		next.outcome = model.OutcomeDegraded
		next.logs = appendClone(s.logs, "decision error: "+err.Error())
		return next
	}

	if v.Action == model.ActionFinalize {
		r.log.Info().Str("rationale", v.Rationale).Msg("verdict: finalize")
		next.verdict = v
		next.verdicts = appendClone(s.verdicts, v)
		next.logs = appendClone(s.logs, "decide: finalize: "+v.Rationale)
		return next
	}

	seen := make(map[string]struct{}, len(r.prior)+len(s.executed))
	for key := range r.prior {
		seen[key] = struct{}{}
	}
	for _, c := range s.executed {
		seen[c.Key()] = struct{}{}
	}
	calls := make([]model.ToolCall, 0, len(v.Calls))
	inVerdict := map[string]struct{}{}
	for _, c := range v.Calls {
		key := c.Key()
		if _, dup := seen[key]; dup {
			refused := model.FinalizeVerdict(RationaleDuplicate)
			r.log.Warn().Str("call", c.String()).Str("rationale", v.Rationale).Msg("duplicate tool call refused")
			next.verdict = refused
			next.verdicts = appendClone(s.verdicts, v, refused)
			next.logs = appendClone(s.logs, "decide: refused duplicate "+c.String()+", finalizing")
			return next
		}
		if _, dup := inVerdict[key]; dup {
			continue
		}
		inVerdict[key] = struct{}{}
		calls = append(calls, c)
	}
	v.Calls = calls

	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.String())
	}
	r.log.Info().Strs("calls", names).Str("rationale", v.Rationale).Int("iteration", s.iterations+1).Msg("verdict: invoke")

	next.iterations = s.iterations + 1
	next.verdicts = appendClone(s.verdicts, v)
	if next.iterations >= l.cfg.MaxIterations {
		// the accepted invoke is counted, then overridden
		return l.forceCeiling(r, s, next)
	}

	next.phase = Executing
	next.verdict = v
	next.executed = appendClone(s.executed, calls...)
	next.logs = appendClone(s.logs, fmt.Sprintf("iteration %d: invoke %s: %s", next.iterations, strings.Join(names, ", "), v.Rationale))
	return next
}

func (l *Loop) forceCeiling(r *run, s, next loopState) loopState {
	r.log.Warn().Int("iterations", next.iterations).Msg("iteration ceiling reached, forcing finalize")
	refused := model.FinalizeVerdict(RationaleCeiling)
	next.phase = Finalizing
	next.outcome = model.OutcomeCeiling
	next.note = ceilingNote(l.cfg.MaxIterations)
	next.verdict = refused
	next.verdicts = appendClone(next.verdicts, refused)
	next.logs = appendClone(s.logs, fmt.Sprintf("ceiling: %d iterations reached, finalizing", next.iterations))
	return next
}

func (l *Loop) execute(ctx context.Context, r *run, s loopState) (loopState, error) {
	records, err := l.executor.Execute(ctx, r.in.SessionID, s.verdict, s.iterations)
	if err != nil {
		return s, err
	}
	now := l.now()
	turns := make([]model.Turn, 0, len(records))
	logs := make([]string, 0, len(records))
	for _, rec := range records {
		turns = append(turns, rec.Turn(now))
		status := "ok"
		if !rec.Success && rec.Error != nil {
			status = "failed (" + string(rec.Error.Kind) + ")"
		}
		logs = append(logs, fmt.Sprintf("tool %s: %s in %s", rec.Call.Tool, status, rec.Duration.Round(time.Millisecond)))
	}

	next := s
	next.phase = Aggregating
	next.records = appendClone(s.records, records...)
	next.turns = appendClone(s.turns, turns...)
	next.logs = appendClone(s.logs, logs...)
	return next, nil
}

func (l *Loop) aggregate(r *run, s loopState) loopState {
	next := s
	next.phase = Deciding
	next.aggregated = Aggregate(s.records)
	r.log.Debug().Int("records", len(s.records)).Int("failures", len(next.aggregated.Failures)).Msg("aggregated")
	return next
}

func (l *Loop) finalize(ctx context.Context, r *run, s loopState) (loopState, error) {
	next := s
	answer := DegradedAnswer(r.lang)
	if s.outcome != model.OutcomeDegraded {
		a, err := l.finalizer.Finalize(ctx, model.FinalizeInput{
			Question:   r.question,
			Turns:      conversations.TrimTail(s.turns, l.cfg.FinalizeTurns),
			Summary:    r.in.Summary,
			Profile:    r.in.Profile,
			Aggregated: s.aggregated,
			Outcome:    s.outcome,
			Note:       s.note,
		})
		if err != nil {
			r.log.Error().Err(err).Msg("finalizer failed, using degraded answer")
			next.logs = appendClone(next.logs, "finalize error: "+err.Error())
		} else {
			answer = a
		}
	}

	now := l.now()
	iterations := s.iterations
	sess, err := l.history.UpdateSession(ctx, r.in.SessionID, func(sess *model.Session) {
		sess.Turns = append(sess.Turns, model.AssistantTurn(answer, now))
		sess.Iterations += iterations
	})
	if err != nil {
		return s, fmt.Errorf("persist answer: %w", err)
	}

	next.phase = Done
	next.answer = answer
	next.session = sess
	return next, nil
}
