// Package message defines the Message type used in chat requests and replies.
package message

import (
	"strings"

	"github.com/germanamz/shrub/pkg/chats/content"
	"github.com/germanamz/shrub/pkg/chats/role"
)

// Message represents a single turn in a conversation.
// It is a value type that copies cheaply.
type Message struct {
	Role     role.Role
	Parts    []content.Part
	Metadata map[string]any
}

// New creates a message with the given role and content parts.
func New(r role.Role, parts ...content.Part) Message {
	return Message{
		Role:  r,
		Parts: parts,
	}
}

// NewText creates a message with a single Text content part.
func NewText(r role.Role, text string) Message {
	return New(r, content.Text{Text: text})
}

// System is shorthand for NewText(role.System, text).
func System(text string) Message { return NewText(role.System, text) }

// User is shorthand for NewText(role.User, text).
func User(text string) Message { return NewText(role.User, text) }

// TextContent concatenates the text of all Text parts in the message.
func (m Message) TextContent() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(content.Text); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// FirstText returns the text of the first non-empty Text part. The bool is
// false when the message carries no answer text at all, which callers treat
// as "no answer" rather than as an error.
func (m Message) FirstText() (string, bool) {
	for _, p := range m.Parts {
		if t, ok := p.(content.Text); ok && t.Text != "" {
			return t.Text, true
		}
	}
	return "", false
}

// ReasoningContent concatenates the text of all Reasoning parts.
func (m Message) ReasoningContent() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if r, ok := p.(content.Reasoning); ok {
			b.WriteString(r.Text)
		}
	}
	return b.String()
}

// SetMeta sets a metadata key-value pair on the message.
// It initializes the Metadata map if nil.
func (m *Message) SetMeta(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// GetMeta retrieves a metadata value by key.
func (m Message) GetMeta(key string) (any, bool) {
	if m.Metadata == nil {
		return nil, false
	}
	v, ok := m.Metadata[key]
	return v, ok
}
