package parsers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gasdesk/agent-server/internal/agent/model"
	logx "github.com/gasdesk/agent-server/pkg/logger"
)

const (
	actionFinalAnswer = "final_answer"
	actionCallTool    = "call_tool"
	actionCallTools   = "call_tools"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024
	maxCalls      = 8
	maxErrSnippet = 200
)

var (
	ErrMalformedVerdict = errors.New("malformed verdict")
	ErrUnknownTool      = errors.New("verdict names an unknown tool")
)

type rawCall struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

type rawVerdict struct {
	Action    string         `json:"action"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	Calls     []rawCall      `json:"calls"`
	Reasoning string         `json:"reasoning"`
}

// ParseVerdict turns model output into a strict verdict. It accepts exactly
// three shapes (final_answer, call_tool, call_tools) with a non-empty
// reasoning; known reports whether a tool name is registered.
func ParseVerdict(content string, known func(string) bool) (v model.Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "verdict_parser").Msgf("panic recovered: %v", r)
			v, err = model.Verdict{}, fmt.Errorf("%w: parser panic", ErrMalformedVerdict)
		}
	}()

	if len(content) > maxContentLen {
		return model.Verdict{}, fmt.Errorf("%w: content exceeds %d bytes", ErrMalformedVerdict, maxContentLen)
	}
	if !utf8.ValidString(content) {
		return model.Verdict{}, fmt.Errorf("%w: invalid utf8", ErrMalformedVerdict)
	}

	body := extractObject(content)
	if body == "" {
		return model.Verdict{}, fmt.Errorf("%w: no json object in %q", ErrMalformedVerdict, safeSnippet(content))
	}

	var raw rawVerdict
	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return model.Verdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}

	reasoning := strings.TrimSpace(raw.Reasoning)
	if reasoning == "" {
		return model.Verdict{}, fmt.Errorf("%w: reasoning is empty", ErrMalformedVerdict)
	}

	switch strings.TrimSpace(raw.Action) {
	case actionFinalAnswer:
		if raw.ToolName != "" || len(raw.Calls) > 0 {
			return model.Verdict{}, fmt.Errorf("%w: final_answer must not name tools", ErrMalformedVerdict)
		}
		return model.FinalizeVerdict(reasoning), nil

	case actionCallTool:
		if len(raw.Calls) > 0 {
			return model.Verdict{}, fmt.Errorf("%w: call_tool takes tool_name, not calls", ErrMalformedVerdict)
		}
		call, err := toCall(rawCall{ToolName: raw.ToolName, Arguments: raw.Arguments}, known)
		if err != nil {
			return model.Verdict{}, err
		}
		return model.InvokeVerdict(reasoning, call), nil

	case actionCallTools:
		if raw.ToolName != "" || raw.Arguments != nil {
			return model.Verdict{}, fmt.Errorf("%w: call_tools takes calls only", ErrMalformedVerdict)
		}
		if len(raw.Calls) == 0 {
			return model.Verdict{}, fmt.Errorf("%w: call_tools without calls", ErrMalformedVerdict)
		}
		if len(raw.Calls) > maxCalls {
			return model.Verdict{}, fmt.Errorf("%w: more than %d calls", ErrMalformedVerdict, maxCalls)
		}
		seen := make(map[string]struct{}, len(raw.Calls))
		calls := make([]model.ToolCall, 0, len(raw.Calls))
		for _, rc := range raw.Calls {
			call, err := toCall(rc, known)
			if err != nil {
				return model.Verdict{}, err
			}
			if _, dup := seen[call.Key()]; dup {
				continue
			}
			seen[call.Key()] = struct{}{}
			calls = append(calls, call)
		}
		return model.InvokeVerdict(reasoning, calls...), nil

	default:
		return model.Verdict{}, fmt.Errorf("%w: unknown action %q", ErrMalformedVerdict, safeSnippet(raw.Action))
	}
}

func toCall(rc rawCall, known func(string) bool) (model.ToolCall, error) {
	name := strings.TrimSpace(rc.ToolName)
	if name == "" {
		return model.ToolCall{}, fmt.Errorf("%w: tool_name is empty", ErrMalformedVerdict)
	}
	if known != nil && !known(name) {
		return model.ToolCall{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	args := rc.Arguments
	if args == nil {
		args = map[string]any{}
	}
	return model.ToolCall{Tool: name, Arguments: args}, nil
}

// extractObject strips markdown fences and returns the outermost {...} span.
func extractObject(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	obj := s[start : end+1]
	if !json.Valid([]byte(obj)) {
		// trailing prose may contain a stray brace; fall back to the first complete value
		var v json.RawMessage
		if err := json.NewDecoder(strings.NewReader(s[start:])).Decode(&v); err != nil {
			return obj
		}
		return string(v)
	}
	return obj
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
