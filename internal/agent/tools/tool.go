// Package tools adapts heterogeneous backends (HTTP APIs, the regulation
// retriever, the natural-gas subprocess) to one validate-then-invoke capability.
package tools

import (
	"context"
	"encoding/json"
	"errors"
)

// Tool is one invocable capability.
// Invoke receives arguments that already passed schema validation.
type Tool interface {
	Name() string
	Description() string
	// Schema is the JSON Schema of the argument object.
	Schema() json.RawMessage
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// Validator is implemented by tools with checks the schema cannot express.
type Validator interface {
	Validate(args map[string]any) error
}

// Descriptor is the prompt-facing summary of a registered tool.
type Descriptor struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

var (
	ErrEmptyName     = errors.New("tool name is empty")
	ErrAlreadyExists = errors.New("tool already registered")
	ErrUnknownTool   = errors.New("unknown tool")
	ErrInvalidArgs   = errors.New("invalid arguments")
)

// TransportError marks a failure talking to the tool's backend.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Transport wraps err as a TransportError.
func Transport(err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Err: err}
}

// Invalid wraps a semantic argument error so it is reported as a validation failure.
func Invalid(msg string) error {
	return &invalidArgs{msg: msg}
}

type invalidArgs struct{ msg string }

func (e *invalidArgs) Error() string { return e.msg }
func (e *invalidArgs) Unwrap() error { return ErrInvalidArgs }

// StringArg returns args[key] as a string, or def when absent.
func StringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return def
}

// IntArg returns args[key] as an int, or def when absent. JSON numbers arrive as float64.
func IntArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}
