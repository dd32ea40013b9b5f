package model

// Action is the routing decision of one decision step.
type Action string

const (
	ActionFinalize Action = "finalize"
	ActionInvoke   Action = "invoke"
)

// Verdict is the transient output of the decision step.
type Verdict struct {
	Action    Action     `json:"action"`
	Calls     []ToolCall `json:"calls,omitempty"`
	Rationale string     `json:"rationale"`
}

func FinalizeVerdict(rationale string) Verdict {
	return Verdict{Action: ActionFinalize, Rationale: rationale}
}

func InvokeVerdict(rationale string, calls ...ToolCall) Verdict {
	return Verdict{Action: ActionInvoke, Calls: calls, Rationale: rationale}
}

// AggregatedResult is the order-independent merge of the records of a run.
type AggregatedResult struct {
	// Records groups every record by tool name, sorted by canonical arguments.
	Records map[string][]ToolCallRecord `json:"records"`
	// Items concatenates list payloads in (tool, arguments) order.
	Items []any `json:"items,omitempty"`
	// Fields holds map payloads keyed "tool.key" and scalar payloads keyed "tool".
	Fields   map[string]any   `json:"fields,omitempty"`
	Failures []ToolCallRecord `json:"failures,omitempty"`
}

// Empty reports whether no records were merged.
func (a AggregatedResult) Empty() bool {
	return len(a.Records) == 0
}

// Outcome tells how a loop run reached Finalizing.
type Outcome string

const (
	OutcomeNormal   Outcome = "normal"
	OutcomeCeiling  Outcome = "ceiling"
	OutcomeDegraded Outcome = "degraded"
)

// DecisionInput is what the decision step sees: a bounded trailing window,
// the profile and the calls already made in this run.
type DecisionInput struct {
	Turns     []Turn
	Summary   string
	Profile   UserProfile
	Executed  []ToolCall
	Iteration int
}

// FinalizeInput carries everything the answer is composed from.
type FinalizeInput struct {
	Question   string
	Turns      []Turn
	Summary    string
	Profile    UserProfile
	Aggregated AggregatedResult
	Outcome    Outcome
	// Note is an extra instruction, e.g. the partial-progress notice at the ceiling.
	Note string
}
