// Package chat provides the ordered message container sent to chat executors.
package chat

import (
	"github.com/germanamz/shrub/pkg/chats/message"
	"github.com/germanamz/shrub/pkg/chats/role"
)

// Chat is an ordered conversation container. The zero value is ready to use.
// Chat is not safe for concurrent use; callers must synchronize externally.
// Adapters only read from it, so a single Chat can be replayed against any
// number of providers.
type Chat struct {
	messages []message.Message
}

// New creates a Chat pre-populated with the given messages.
func New(msgs ...message.Message) *Chat {
	return &Chat{messages: msgs}
}

// Request builds the two-turn request used by shrub: an optional system turn
// followed by the user turn. An empty system prompt is omitted.
func Request(system, user string) *Chat {
	c := New()
	if system != "" {
		c.Append(message.System(system))
	}
	c.Append(message.User(user))
	return c
}

// Append adds one or more messages to the conversation.
func (c *Chat) Append(msgs ...message.Message) {
	c.messages = append(c.messages, msgs...)
}

// Len returns the number of messages in the conversation.
func (c *Chat) Len() int {
	return len(c.messages)
}

// At returns the message at the given index.
// It panics if the index is out of range.
func (c *Chat) At(index int) message.Message {
	return c.messages[index]
}

// Last returns the most recent message and true, or a zero Message and false
// if the conversation is empty.
func (c *Chat) Last() (message.Message, bool) {
	if len(c.messages) == 0 {
		return message.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Messages returns a copy of all messages in the conversation.
func (c *Chat) Messages() []message.Message {
	cp := make([]message.Message, len(c.messages))
	copy(cp, c.messages)
	return cp
}

// Each iterates over messages, calling fn for each one. If fn returns false,
// iteration stops early.
func (c *Chat) Each(fn func(int, message.Message) bool) {
	for i, m := range c.messages {
		if !fn(i, m) {
			return
		}
	}
}

// SystemPrompt returns the text content of the first system message, or an
// empty string if there is none.
func (c *Chat) SystemPrompt() string {
	for _, m := range c.messages {
		if m.Role == role.System {
			return m.TextContent()
		}
	}
	return ""
}

// Turns returns the non-system messages in order. Adapters whose APIs carry
// the system prompt out of band (Anthropic, Gemini) use it with SystemPrompt.
func (c *Chat) Turns() []message.Message {
	var out []message.Message
	for _, m := range c.messages {
		if m.Role != role.System {
			out = append(out, m)
		}
	}
	return out
}
