package agent

import (
	"github.com/myproject/llm-apps/agent/llm"
)

// SelfAskAgent is the tool-calling agent the application drives: it breaks
// a request into follow-up questions answered by tools.
type SelfAskAgent struct {
	*Agent
}

func NewSelfAskAgent(model llm.ChatModel, maxIters int, systemPrompt string) *SelfAskAgent {
	base := NewAgent(model)
	base.SetPromptWrapper(SelfAskPromptWrapper())
	if maxIters > 0 {
		base.MaxIters = maxIters
	}
	if systemPrompt != "" {
		base.SetSystemPrompt(systemPrompt)
	}
	return &SelfAskAgent{Agent: base}
}
