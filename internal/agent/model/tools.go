package model

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// ToolCall names a tool and the arguments to invoke it with.
type ToolCall struct {
	Tool      string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// CanonicalArgs renders the arguments with sorted keys so equal mappings compare equal.
func (c ToolCall) CanonicalArgs() string {
	if len(c.Arguments) == 0 {
		return "{}"
	}
	b, err := json.Marshal(c.Arguments)
	if err != nil {
		return fmt.Sprintf("%v", c.Arguments)
	}
	return string(b)
}

// Key identifies the (tool, arguments) pair.
func (c ToolCall) Key() string {
	return c.Tool + " " + c.CanonicalArgs()
}

func (c ToolCall) String() string {
	return c.Tool + "(" + c.CanonicalArgs() + ")"
}

// CompareCalls orders calls by tool name, then canonical arguments.
func CompareCalls(a, b ToolCall) int {
	if c := cmp.Compare(a.Tool, b.Tool); c != 0 {
		return c
	}
	return cmp.Compare(a.CanonicalArgs(), b.CanonicalArgs())
}

// ErrorKind classifies a failed tool call.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindTransport   ErrorKind = "transport"
	KindTimeout     ErrorKind = "timeout"
	KindUnknownTool ErrorKind = "unknown_tool"
	KindInternal    ErrorKind = "internal"
)

// ToolError is the structured failure description carried by a record.
type ToolError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ToolError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// ToolCallRecord is the observation produced by one tool call. Never mutated after creation.
type ToolCallRecord struct {
	Call      ToolCall      `json:"call"`
	Success   bool          `json:"success"`
	Result    any           `json:"result,omitempty"`
	Error     *ToolError    `json:"error,omitempty"`
	Iteration int           `json:"iteration"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// SortRecords orders records by tool name and canonical arguments in place.
func SortRecords(records []ToolCallRecord) {
	slices.SortStableFunc(records, func(a, b ToolCallRecord) int {
		return CompareCalls(a.Call, b.Call)
	})
}

// Turn renders the record as a tool-observation turn.
func (r ToolCallRecord) Turn(now time.Time) Turn {
	var content string
	if r.Success {
		b, err := json.Marshal(r.Result)
		if err != nil {
			content = fmt.Sprintf("%v", r.Result)
		} else {
			content = string(b)
		}
	} else if r.Error != nil {
		content = "error: " + r.Error.Error()
	}
	return Turn{
		Role:      RoleTool,
		Content:   content,
		Timestamp: now,
		Metadata: map[string]any{
			MetaTool:      r.Call.Tool,
			MetaCallKey:   r.Call.Key(),
			MetaArguments: r.Call.Arguments,
			MetaSuccess:   r.Success,
			MetaIteration: r.Iteration,
		},
	}
}
