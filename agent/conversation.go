package agent

import (
	"unicode/utf8"

	"github.com/openai/openai-go"
)

// messageOverhead approximates the role and framing tokens of one message.
const messageOverhead = 4

// Turn is one answered user input.
type Turn struct {
	User      string
	Assistant string
}

// Conversation keeps the turns that still fit in a token budget. The oldest
// turns are dropped first. A budget <= 0 keeps everything.
type Conversation struct {
	budget int
	turns  []Turn
}

func NewConversation(budget int) *Conversation {
	return &Conversation{budget: budget}
}

// ConversationBudget is the part of the context window left for history
// once the completion reserve is taken out.
func ConversationBudget(contextSize, maxTokens int) int {
	if contextSize <= 0 {
		return 0
	}
	reserve := min(max(maxTokens, 0), contextSize/2)
	return contextSize - reserve
}

// EstimateTokens approximates the tokens of one message as one per rune.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) + messageOverhead
}

func (t Turn) tokens() int {
	return EstimateTokens(t.User) + EstimateTokens(t.Assistant)
}

func (c *Conversation) Append(user, assistant string) {
	c.turns = append(c.turns, Turn{User: user, Assistant: assistant})
	c.trim()
}

func (c *Conversation) trim() {
	if c.budget <= 0 {
		return
	}
	total := 0
	for _, t := range c.turns {
		total += t.tokens()
	}
	drop := 0
	for drop < len(c.turns) && total > c.budget {
		total -= c.turns[drop].tokens()
		drop++
	}
	if drop > 0 {
		c.turns = append([]Turn(nil), c.turns[drop:]...)
	}
}

func (c *Conversation) Turns() []Turn {
	return append([]Turn(nil), c.turns...)
}

func (c *Conversation) Len() int {
	return len(c.turns)
}

func (c *Conversation) Reset() {
	c.turns = nil
}

// Messages renders the kept turns as alternating user and assistant messages.
func (c *Conversation) Messages() []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2*len(c.turns))
	for _, t := range c.turns {
		messages = append(messages, openai.UserMessage(t.User), openai.AssistantMessage(t.Assistant))
	}
	return messages
}
