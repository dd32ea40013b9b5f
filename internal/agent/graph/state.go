package graph

import (
	"github.com/gasdesk/agent-server/internal/agent/model"
)

// Phase is a control loop state.
type Phase int

const (
	Deciding Phase = iota
	Executing
	Aggregating
	Finalizing
	Done
)

func (p Phase) String() string {
	switch p {
	case Deciding:
		return "deciding"
	case Executing:
		return "executing"
	case Aggregating:
		return "aggregating"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// loopState is the value threaded through the transitions. Each transition
// returns a new value; slices are never appended in place so earlier values
// stay valid.
type loopState struct {
	phase      Phase
	iterations int

	// turns is the history window plus observations gathered in this run.
	turns    []model.Turn
	executed []model.ToolCall
	verdict  model.Verdict
	verdicts []model.Verdict

	records    []model.ToolCallRecord
	aggregated model.AggregatedResult

	outcome model.Outcome
	note    string
	answer  string
	session model.Session
	logs    []string
}

func appendClone[T any](s []T, v ...T) []T {
	out := make([]T, 0, len(s)+len(v))
	out = append(out, s...)
	return append(out, v...)
}
