package model

// MemoryMode selects how history is condensed before the decision step.
type MemoryMode string

const (
	MemorySimple MemoryMode = "simple"
	MemoryHybrid MemoryMode = "hybrid"
)

// ChatRequest is one user message addressed to the agent.
type ChatRequest struct {
	UserID     string     `json:"user_id" validate:"required,max=128"`
	SessionID  string     `json:"session_id,omitempty" validate:"max=128"`
	Message    string     `json:"message" validate:"required,max=8000"`
	MemoryMode MemoryMode `json:"memory_mode,omitempty" validate:"omitempty,oneof=simple hybrid"`
}

// ToolUsage summarises one tool call for the caller.
type ToolUsage struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Success   bool           `json:"success"`
}

// MemorySnapshot is the state view returned with every answer.
type MemorySnapshot struct {
	Preferences  map[string]any `json:"preferences"`
	Iterations   int            `json:"iterations"`
	MessageCount int            `json:"message_count"`
	Summary      string         `json:"summary,omitempty"`
	Mode         MemoryMode     `json:"memory_mode"`
}

type ChatResponse struct {
	SessionID      string         `json:"session_id"`
	FinalAnswer    string         `json:"final_answer"`
	ToolsUsed      []ToolUsage    `json:"tools_used"`
	MemorySnapshot MemorySnapshot `json:"memory_snapshot"`
	Logs           []string       `json:"logs"`
}
