package llm

import (
	"sync"
	"time"

	"github.com/openai/openai-go"
)

// Role of a transcript entry
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one spoken line of the call transcript
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Conversation is the chat history of one call. Tool traffic is kept in the
// model history but not in the spoken transcript.
type Conversation struct {
	mu       sync.Mutex
	messages []openai.ChatCompletionMessageParamUnion
	turns    []Turn
	now      func() time.Time
}

// NewConversation starts a history with the persona instructions as system prompt
func NewConversation(instructions string) *Conversation {
	c := &Conversation{now: time.Now}
	if instructions != "" {
		c.messages = append(c.messages, openai.SystemMessage(instructions))
	}
	return c
}

// AddUser records what the caller said
func (c *Conversation) AddUser(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, openai.UserMessage(text))
	c.turns = append(c.turns, Turn{Role: RoleUser, Text: text, At: c.now()})
}

// Turns returns a copy of the spoken transcript
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *Conversation) snapshot() []openai.ChatCompletionMessageParamUnion {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]openai.ChatCompletionMessageParamUnion, len(c.messages))
	copy(out, c.messages)
	return out
}

// commit appends the messages a completed reply produced
func (c *Conversation) commit(msgs []openai.ChatCompletionMessageParamUnion, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
	if reply != "" {
		c.turns = append(c.turns, Turn{Role: RoleAssistant, Text: reply, At: c.now()})
	}
}
