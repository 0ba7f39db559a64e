package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const DefaultBatchSize = 32

// OpenAIEmbedder talks to an OpenAI-compatible /embeddings endpoint, which
// is what llama.cpp, vLLM and text-embeddings-inference expose for local
// models.
type OpenAIEmbedder struct {
	client     openai.Client
	modelName  string
	modelID    string
	truncate   int
	dimensions atomic.Int64
	requested  int
	batchSize  int
	pooler     EmbedderPooler
}

func NewOpenAIEmbedder(apiKey, baseURL, modelName string, truncatePromptTokens, dimensions int, modelID string, batchSize int, pooler EmbedderPooler) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(modelName) == "" {
		return nil, errors.New("embedding model name is required")
	}
	if apiKey == "" {
		apiKey = "local"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if modelID == "" {
		modelID = modelName
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	e := &OpenAIEmbedder{
		client:    openai.NewClient(opts...),
		modelName: modelName,
		modelID:   modelID,
		truncate:  truncatePromptTokens,
		requested: dimensions,
		batchSize: batchSize,
		pooler:    pooler,
	}
	e.dimensions.Store(int64(dimensions))
	return e, nil
}

func (e *OpenAIEmbedder) GetModelName() string { return e.modelName }
func (e *OpenAIEmbedder) GetModelID() string   { return e.modelID }
func (e *OpenAIEmbedder) GetDimensions() int   { return int(e.dimensions.Load()) }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// BatchEmbed embeds texts in a single request; results follow input order.
func (e *OpenAIEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.modelName),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if e.requested > 0 {
		params.Dimensions = openai.Int(int64(e.requested))
	}
	var opts []option.RequestOption
	if e.truncate > 0 {
		opts = append(opts, option.WithJSONSet("truncate_prompt_tokens", e.truncate))
	}
	resp, err := e.client.Embeddings.New(ctx, params, opts...)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", idx)
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		out[idx] = vec
	}
	for i, vec := range out {
		if vec == nil {
			return nil, fmt.Errorf("embedding for input %d missing", i)
		}
	}
	e.dimensions.CompareAndSwap(0, int64(len(out[0])))
	return out, nil
}

// BatchEmbedWithPool hands texts to the pooler, or without one embeds them
// sequentially in requests of at most batchSize texts.
func (e *OpenAIEmbedder) BatchEmbedWithPool(ctx context.Context, model Embedder, texts []string) ([][]float32, error) {
	if e.pooler != nil {
		return e.pooler.BatchEmbedWithPool(ctx, model, texts)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := model.BatchEmbed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}
