// Package llm holds the single long-lived handle to the locally served
// language model and the callback plumbing that streams its output.
package llm

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

const DefaultBaseURL = "http://127.0.0.1:8080/v1"

// Config parameterizes a Handle.
type Config struct {
	Model       string
	BaseURL     string
	APIKey      string
	ContextSize int
	MaxTokens   int
	Temperature float64
	GPULayers   int
	Verbose     bool
	// SkipProbe disables the served-model check done by New.
	SkipProbe bool
}

// Request is one chat completion call.
type Request struct {
	Messages []openai.ChatCompletionMessageParamUnion
	Tools    []openai.ChatCompletionToolParam
}

// ChatModel is what the orchestrator needs from a model.
type ChatModel interface {
	Complete(ctx context.Context, req Request) (openai.ChatCompletionMessage, error)
}

// Generator is what tools need from a model.
type Generator interface {
	Generate(ctx context.Context, system string, prompt string) (string, error)
}

// Handle is a shared handle to a model served by an OpenAI-compatible local
// runtime. It is safe for concurrent use.
type Handle struct {
	cfg       Config
	client    openai.Client
	callbacks *CallbackManager
}

// New connects to the runtime and verifies it serves cfg.Model.
func New(ctx context.Context, cfg Config, callbacks *CallbackManager) (*Handle, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("model path is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if callbacks == nil {
		callbacks = NewCallbackManager()
	}
	opts := []option.RequestOption{option.WithBaseURL(cfg.BaseURL)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		opts = append(opts, option.WithAPIKey("local"))
	}
	h := &Handle{
		cfg:       cfg,
		client:    openai.NewClient(opts...),
		callbacks: callbacks,
	}
	if cfg.SkipProbe {
		return h, nil
	}
	if err := h.probe(ctx); err != nil {
		return nil, err
	}
	log.Info().
		Str("model", cfg.Model).
		Str("base_url", cfg.BaseURL).
		Int("n_ctx", cfg.ContextSize).
		Int("n_gpu_layers", cfg.GPULayers).
		Msg("model loaded")
	return h, nil
}

func (h *Handle) probe(ctx context.Context) error {
	page, err := h.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("reach model runtime at %s: %w", h.cfg.BaseURL, err)
	}
	served := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		if modelMatches(m.ID, h.cfg.Model) {
			return nil
		}
		served = append(served, m.ID)
	}
	return fmt.Errorf("model %q is not served by %s (available: %s)", h.cfg.Model, h.cfg.BaseURL, strings.Join(served, ", "))
}

func modelMatches(servedID, want string) bool {
	if servedID == want {
		return true
	}
	return filepath.Base(servedID) == filepath.Base(want)
}

func (h *Handle) requestOptions() []option.RequestOption {
	var opts []option.RequestOption
	if h.cfg.ContextSize > 0 {
		opts = append(opts, option.WithJSONSet("options.num_ctx", h.cfg.ContextSize))
	}
	if h.cfg.GPULayers >= 0 {
		opts = append(opts, option.WithJSONSet("options.num_gpu", h.cfg.GPULayers))
	}
	return opts
}

func (h *Handle) newParams(req Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(h.cfg.Model),
		Messages:    req.Messages,
		Temperature: openai.Float(h.cfg.Temperature),
	}
	if h.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(h.cfg.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = req.Tools
	}
	return params
}

// Complete streams one chat completion, forwarding content deltas to the
// callbacks unless ctx was built with WithoutCallbacks.
func (h *Handle) Complete(ctx context.Context, req Request) (openai.ChatCompletionMessage, error) {
	if len(req.Messages) == 0 {
		return openai.ChatCompletionMessage{}, errors.New("no messages to send")
	}
	var cb CallbackHandler = h.callbacks
	if callbacksDisabled(ctx) {
		cb = nopHandler{}
	}
	runID := uuid.NewString()
	if h.cfg.Verbose {
		log.Debug().
			Str("run", runID).
			Int("messages", len(req.Messages)).
			Int("tools", len(req.Tools)).
			Msg("chat completion request")
	}

	stream := h.client.Chat.Completions.NewStreaming(ctx, h.newParams(req), h.requestOptions()...)
	defer stream.Close()

	cb.OnLLMStart(runID)
	acc := openai.ChatCompletionAccumulator{}
	chunks := 0
	for stream.Next() {
		chunk := stream.Current()
		chunks++
		if !acc.AddChunk(chunk) {
			err := errors.New("failed to accumulate stream")
			cb.OnLLMError(runID, err)
			return openai.ChatCompletionMessage{}, err
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			cb.OnLLMNewToken(runID, chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		cb.OnLLMError(runID, err)
		return openai.ChatCompletionMessage{}, fmt.Errorf("llm error: %w", err)
	}
	if len(acc.Choices) == 0 {
		err := errors.New("empty completion choices")
		cb.OnLLMError(runID, err)
		return openai.ChatCompletionMessage{}, err
	}
	cb.OnLLMEnd(runID)
	if h.cfg.Verbose {
		log.Debug().
			Str("run", runID).
			Int("chunks", chunks).
			Str("finish_reason", acc.Choices[0].FinishReason).
			Int("tool_calls", len(acc.Choices[0].Message.ToolCalls)).
			Msg("chat completion done")
	}
	return acc.Choices[0].Message, nil
}

// Generate runs a single system+user exchange and returns the reply text.
func (h *Handle) Generate(ctx context.Context, system string, prompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))
	msg, err := h.Complete(ctx, Request{Messages: messages})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(msg.Content), nil
}

type nopHandler struct{}

func (nopHandler) OnLLMStart(string)            {}
func (nopHandler) OnLLMNewToken(string, string) {}
func (nopHandler) OnLLMEnd(string)              {}
func (nopHandler) OnLLMError(string, error)     {}
