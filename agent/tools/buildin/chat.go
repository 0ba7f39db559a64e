package buildin

import (
	"context"
	"fmt"
	"strings"

	"github.com/myproject/llm-apps/agent/llm"
	"github.com/myproject/llm-apps/agent/tools"
)

const chatSystemPrompt = "You are a friendly assistant. Answer the user's message directly and concisely, in the language the user writes in."

type chatInput struct {
	Query string `json:"query" jsonschema_description:"The user's message, verbatim."`
}

// NewChatTool answers small talk and general questions with the model itself.
func NewChatTool(model llm.Generator) tools.Tool {
	return tools.New(
		"chat",
		func(ctx context.Context, args string) (string, error) {
			var input chatInput
			if err := tools.DecodeArgs(args, &input); err != nil {
				return "", err
			}
			if strings.TrimSpace(input.Query) == "" {
				return "", fmt.Errorf("query is required")
			}
			return model.Generate(llm.WithoutCallbacks(ctx), chatSystemPrompt, input.Query)
		},
		tools.WithDescription("Chat with the user: greetings, small talk and general knowledge questions that need no external data."),
		tools.WithParameters(tools.GenerateSchema[chatInput]()),
		tools.WithReturnDirect(),
	)
}
