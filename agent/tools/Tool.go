package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ToolHandler defines the tool handler signature.
type ToolHandler func(ctx context.Context, args string) (string, error)

type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     ToolHandler
	// ReturnDirect makes a successful result the agent's final answer.
	ReturnDirect bool
}

type Option func(*Tool)

func New(name string, handler ToolHandler, opts ...Option) Tool {
	t := Tool{
		Name:    name,
		Handler: handler,
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

func WithDescription(description string) Option {
	return func(t *Tool) {
		t.Description = description
	}
}

func WithParameters(parameters map[string]any) Option {
	return func(t *Tool) {
		t.Parameters = parameters
	}
}

func WithReturnDirect() Option {
	return func(t *Tool) {
		t.ReturnDirect = true
	}
}

// GenerateSchema derives the JSON schema of a tool's argument struct.
func GenerateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("marshal schema: %v", err))
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("unmarshal schema: %v", err))
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// DecodeArgs unmarshals tool arguments; an empty string decodes as {}.
func DecodeArgs(args string, v any) error {
	if args == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("parse args: %w", err)
	}
	return nil
}
