package main

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestChoiceValue(t *testing.T) {
	v := newChoiceValue("true", "true", "false")
	if v.String() != "true" || v.Type() != "choice" {
		t.Fatalf("unexpected initial state %q %q", v.String(), v.Type())
	}
	if err := v.Set("false"); err != nil || v.String() != "false" {
		t.Fatalf("Set(false) = %v, value %q", err, v.String())
	}
	for _, bad := range []string{"", "True", "1", "yes"} {
		if err := v.Set(bad); err == nil {
			t.Fatalf("Set(%q) accepted", bad)
		}
	}
	if v.String() != "false" {
		t.Fatal("rejected value changed the flag")
	}
}

func TestAddFlagsRegistersEveryOption(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addFlags(fs)
	for _, name := range []string{
		"llm_path", "n_gpu_layers", "n_ctx", "max_tokens", "temperature",
		"embedding_path", "reranker_path", "db_path", "docs_path",
		"stage1_top_k", "stage2_top_k", "agent_max_iters", "debug", "config_dir",
	} {
		if fs.Lookup(name) == nil {
			t.Fatalf("flag --%s not registered", name)
		}
	}
	if got := fs.Lookup("debug").DefValue; got != "true" {
		t.Fatalf("debug default %q", got)
	}
}
