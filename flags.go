package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/myproject/llm-apps/agent"
	"github.com/spf13/pflag"
)

// choiceValue is a string flag restricted to a fixed set of values.
type choiceValue struct {
	value   string
	allowed []string
}

func newChoiceValue(def string, allowed ...string) *choiceValue {
	return &choiceValue{value: def, allowed: allowed}
}

func (c *choiceValue) String() string { return c.value }

func (c *choiceValue) Set(s string) error {
	if !slices.Contains(c.allowed, s) {
		return fmt.Errorf("must be one of {%s}", strings.Join(c.allowed, ","))
	}
	c.value = s
	return nil
}

func (c *choiceValue) Type() string { return "choice" }

func addFlags(fs *pflag.FlagSet) {
	fs.String("llm_path", agent.DefaultLLMPath, "model served by the local runtime")
	fs.Int("n_gpu_layers", agent.DefaultGPULayers, "layers to offload to the GPU, -1 for all")
	fs.Int("n_ctx", agent.DefaultContextSize, "context window size in tokens")
	fs.Int("max_tokens", agent.DefaultMaxTokens, "maximum tokens per completion")
	fs.Float64("temperature", agent.DefaultTemperature, "sampling temperature")
	fs.String("embedding_path", agent.DefaultEmbeddingPath, "embedding model")
	fs.String("reranker_path", agent.DefaultRerankerPath, "reranker model")
	fs.String("db_path", agent.DefaultDBPath, "vector database location")
	fs.String("docs_path", agent.DefaultDocsPath, "directory of documents to index")
	fs.Int("stage1_top_k", agent.DefaultStage1TopK, "candidates recalled by embedding search")
	fs.Int("stage2_top_k", agent.DefaultStage2TopK, "documents kept after reranking")
	fs.Int("agent_max_iters", agent.DefaultMaxIters, "maximum model calls per request")
	fs.Var(newChoiceValue(fmt.Sprint(agent.DefaultDebug), "true", "false"), "debug", "verbose logging {true,false}")
	fs.String("config_dir", agent.DefaultConfigDir, "directory holding agent.yaml and .env")
}
