package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/myproject/llm-apps/agent/llm"
	"github.com/myproject/llm-apps/agent/tools"
	"github.com/openai/openai-go"
	"github.com/rs/zerolog/log"
)

const (
	DefaultName         string = "llm-apps"
	DefaultDescription  string = "A local assistant that chats, reports the weather, answers questions about the indexed documents and sends email."
	DefaultSystemPrompt string = "You are a helpful assistant. Use a tool whenever the request needs one; otherwise answer directly. Reply in the language the user writes in."
	DefaultMaxIters     int    = 5
)

// Reply is a final answer. Streamed reports whether its text went out
// through the model's callbacks; answers of return-direct tools never do.
type Reply struct {
	Text     string
	Streamed bool
}

// ErrIterationLimit is returned when the model keeps calling tools past MaxIters.
var ErrIterationLimit = errors.New("agent iteration limit exceeded")

type Agent struct {
	Name          string
	Description   string
	model         llm.ChatModel
	tools         map[string]tools.Tool
	order         []string
	apiTools      []openai.ChatCompletionToolParam
	promptWrapper PromptWrapper
	systemPrompt  string
	MaxIters      int
}

func NewAgent(model llm.ChatModel) *Agent {
	return &Agent{
		Name:          DefaultName,
		Description:   DefaultDescription,
		model:         model,
		tools:         map[string]tools.Tool{},
		promptWrapper: DefaultPromptWrapper(),
		systemPrompt:  DefaultSystemPrompt,
		MaxIters:      DefaultMaxIters,
	}
}

func (a *Agent) SetSystemPrompt(systemPrompt string) {
	a.systemPrompt = systemPrompt
}

func (a *Agent) SetPromptWrapper(wrapper PromptWrapper) {
	a.promptWrapper = wrapper
}

// ListTools returns the tools in registration order.
func (a *Agent) ListTools() []tools.Tool {
	items := make([]tools.Tool, 0, len(a.order))
	for _, name := range a.order {
		items = append(items, a.tools[name])
	}
	return items
}

// RegisterTool adds or replaces a tool by name.
func (a *Agent) RegisterTool(tool tools.Tool) {
	if tool.Name == "" || tool.Handler == nil {
		return
	}
	functionDef := openai.FunctionDefinitionParam{
		Name: tool.Name,
	}
	if tool.Description != "" {
		functionDef.Description = openai.String(tool.Description)
	}
	if tool.Parameters != nil {
		functionDef.Parameters = openai.FunctionParameters(tool.Parameters)
	}
	param := openai.ChatCompletionToolParam{Function: functionDef}

	if _, exists := a.tools[tool.Name]; exists {
		for i, name := range a.order {
			if name == tool.Name {
				a.apiTools[i] = param
			}
		}
	} else {
		a.order = append(a.order, tool.Name)
		a.apiTools = append(a.apiTools, param)
	}
	a.tools[tool.Name] = tool
}

func (a *Agent) RegisterToolFunc(name string, handler tools.ToolHandler, opts ...tools.Option) {
	a.RegisterTool(tools.New(name, handler, opts...))
}

// Invoke answers a single query with no prior conversation.
func (a *Agent) Invoke(ctx context.Context, userQuery string) (string, error) {
	reply, err := a.Run(ctx, nil, userQuery)
	return reply.Text, err
}

// Run answers userQuery after the given history, calling tools until the
// model produces a final answer or MaxIters model calls were spent.
func (a *Agent) Run(ctx context.Context, history []openai.ChatCompletionMessageParamUnion, userQuery string) (Reply, error) {
	wrapper := a.promptWrapper.Clone()
	wrapper.AddSystemPrompt(a.systemPrompt)
	wrapper.AddUserPrompt(userQuery)
	messages := wrapper.WrapMessages(a.Name, a.Description, history)

	maxIters := a.MaxIters
	if maxIters <= 0 {
		maxIters = DefaultMaxIters
	}
	for i := 1; i <= maxIters; i++ {
		msg, err := a.model.Complete(ctx, llm.Request{Messages: messages, Tools: a.apiTools})
		if err != nil {
			return Reply{}, err
		}
		if len(msg.ToolCalls) == 0 {
			return Reply{Text: msg.Content, Streamed: true}, nil
		}
		messages = append(messages, msg.ToParam())
		for _, toolCall := range msg.ToolCalls {
			toolName := toolCall.Function.Name
			args := toolCall.Function.Arguments
			tool, exists := a.tools[toolName]
			if !exists {
				log.Warn().Str("tool", toolName).Msg("model requested unknown tool")
				messages = append(messages, openai.ToolMessage(fmt.Sprintf("Error: tool %q does not exist", toolName), toolCall.ID))
				continue
			}
			log.Debug().Int("iteration", i).Str("tool", toolName).Str("args", args).Msg("calling tool")
			result, err := tool.Handler(ctx, args)
			if err != nil {
				log.Warn().Err(err).Str("tool", toolName).Msg("tool failed")
				messages = append(messages, openai.ToolMessage(fmt.Sprintf("Error executing tool: %v", err), toolCall.ID))
				continue
			}
			if tool.ReturnDirect {
				return Reply{Text: result}, nil
			}
			messages = append(messages, openai.ToolMessage(result, toolCall.ID))
		}
	}
	return Reply{}, fmt.Errorf("%w (%d)", ErrIterationLimit, maxIters)
}
