package agent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/openai/openai-go"
)

// PromptWrapper stores prompt segments for system and user messages.
type PromptWrapper struct {
	ToolUsage     []string
	systemPrompts []string
	userPrompts   []string
}

func DefaultPromptWrapper() PromptWrapper {
	return PromptWrapper{}
}

// SelfAskPromptWrapper steers the model towards splitting a request into
// sub-questions and answering each with a tool.
func SelfAskPromptWrapper() PromptWrapper {
	wrapper := PromptWrapper{}
	wrapper.AddToolUsage("Decide whether the request needs follow-up questions. If it does, ask them one at a time by calling the matching tool, then use the intermediate answers to write the final answer.")
	wrapper.AddToolUsage("Use get_weather for weather, retrieval_qa for questions about the indexed documents, send_email to send mail and chat for everything else.")
	return wrapper
}

// Clone returns a copy that can be extended without touching w.
func (w PromptWrapper) Clone() PromptWrapper {
	return PromptWrapper{
		ToolUsage:     slices.Clone(w.ToolUsage),
		systemPrompts: slices.Clone(w.systemPrompts),
		userPrompts:   slices.Clone(w.userPrompts),
	}
}

// AddSystemPrompt appends an extra system-role prompt segment.
func (w *PromptWrapper) AddSystemPrompt(prompt string) {
	if strings.TrimSpace(prompt) == "" {
		return
	}
	w.systemPrompts = append(w.systemPrompts, prompt)
}

// AddUserPrompt appends an extra user-role prompt segment.
func (w *PromptWrapper) AddUserPrompt(prompt string) {
	if strings.TrimSpace(prompt) == "" {
		return
	}
	w.userPrompts = append(w.userPrompts, prompt)
}

func (w *PromptWrapper) AddToolUsage(toolUsage string) {
	if strings.TrimSpace(toolUsage) == "" {
		return
	}
	w.ToolUsage = append(w.ToolUsage, toolUsage)
}

// WrapMessages builds the system message, then history, then the user message.
func (w *PromptWrapper) WrapMessages(name, desc string, history []openai.ChatCompletionMessageParamUnion) []openai.ChatCompletionMessageParamUnion {
	systemParts := make([]string, 0, 4)
	if name != "" || desc != "" {
		systemParts = append(systemParts, fmt.Sprintf("Agent Name: %s\nAgent Description: %s", name, desc))
	}
	if len(w.ToolUsage) > 0 {
		systemParts = append(systemParts, fmt.Sprintf("Tool Usage:\n%s", strings.Join(w.ToolUsage, "\n")))
	}
	systemParts = append(systemParts, w.systemPrompts...)

	systemMessage := strings.TrimSpace(strings.Join(systemParts, "\n\n"))
	userMessage := strings.TrimSpace(strings.Join(w.userPrompts, "\n\n"))

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if systemMessage != "" {
		messages = append(messages, openai.SystemMessage(systemMessage))
	}
	messages = append(messages, history...)
	if userMessage != "" {
		messages = append(messages, openai.UserMessage(userMessage))
	}
	return messages
}
