package agent

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/myproject/llm-apps/agent/llm"
	"github.com/myproject/llm-apps/agent/tools"
	"github.com/rs/zerolog/log"
)

// ErrEmptyInput rejects blank user input before any model call.
var ErrEmptyInput = errors.New("input cannot be empty")

type ApplicationConfig struct {
	MaxIters     int
	SystemPrompt string
	ContextSize  int
	MaxTokens    int
}

// Application owns the self-ask agent and the conversation it answers in.
// Invoke calls are serialized.
type Application struct {
	mu           sync.Mutex
	agent        *SelfAskAgent
	conversation *Conversation
}

func NewApplication(toolset []tools.Tool, model llm.ChatModel, cfg ApplicationConfig) *Application {
	a := NewSelfAskAgent(model, cfg.MaxIters, cfg.SystemPrompt)
	for _, t := range toolset {
		a.RegisterTool(t)
	}
	return &Application{
		agent:        a,
		conversation: NewConversation(ConversationBudget(cfg.ContextSize, cfg.MaxTokens)),
	}
}

func (a *Application) Tools() []tools.Tool {
	return a.agent.ListTools()
}

// Invoke answers input in the context of the conversation so far. Failed
// calls leave the conversation unchanged.
func (a *Application) Invoke(ctx context.Context, input string) (Reply, error) {
	if strings.TrimSpace(input) == "" {
		return Reply{}, ErrEmptyInput
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	reply, err := a.agent.Run(ctx, a.conversation.Messages(), input)
	if err != nil {
		return Reply{}, err
	}
	a.conversation.Append(input, reply.Text)
	log.Debug().Int("turns", a.conversation.Len()).Msg("conversation updated")
	return reply, nil
}

func (a *Application) Reset() {
	a.mu.Lock()
	a.conversation.Reset()
	a.mu.Unlock()
}
