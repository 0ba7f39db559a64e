package tools

import (
	"context"
	"testing"
)

type weatherArgs struct {
	Location string `json:"location" jsonschema:"required" jsonschema_description:"City name."`
	Days     int    `json:"days,omitempty"`
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema[weatherArgs]()
	if schema["type"] != "object" {
		t.Fatalf("expected object schema, got %v", schema["type"])
	}
	if _, ok := schema["$schema"]; ok {
		t.Fatal("$schema should be stripped")
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("missing properties: %v", schema)
	}
	loc, ok := props["location"].(map[string]any)
	if !ok || loc["type"] != "string" || loc["description"] != "City name." {
		t.Fatalf("unexpected location property: %v", props["location"])
	}
	req, ok := schema["required"].([]any)
	if !ok || len(req) != 1 || req[0] != "location" {
		t.Fatalf("unexpected required list: %v", schema["required"])
	}
}

func TestNewAppliesOptions(t *testing.T) {
	called := false
	tool := New("echo", func(_ context.Context, args string) (string, error) {
		called = true
		return args, nil
	}, WithDescription("Echo input."), WithReturnDirect(), WithParameters(map[string]any{"type": "object"}))

	if tool.Name != "echo" || tool.Description != "Echo input." || !tool.ReturnDirect || tool.Parameters["type"] != "object" {
		t.Fatalf("options not applied: %+v", tool)
	}
	out, err := tool.Handler(context.Background(), "x")
	if err != nil || out != "x" || !called {
		t.Fatalf("handler not wired: %q %v", out, err)
	}
}

func TestDecodeArgs(t *testing.T) {
	var in struct {
		Query string `json:"query"`
	}
	if err := DecodeArgs("", &in); err != nil {
		t.Fatalf("empty args should decode: %v", err)
	}
	if err := DecodeArgs(`{"query":"hi"}`, &in); err != nil || in.Query != "hi" {
		t.Fatalf("unexpected decode: %+v %v", in, err)
	}
	if err := DecodeArgs(`{bad`, &in); err == nil {
		t.Fatal("expected parse error")
	}
}
