// Package anthropic provides an Executor for the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/germanamz/shrub/pkg/chats/chat"
	"github.com/germanamz/shrub/pkg/chats/content"
	"github.com/germanamz/shrub/pkg/chats/message"
	"github.com/germanamz/shrub/pkg/chats/role"
	"github.com/germanamz/shrub/pkg/modeladapter"
	"github.com/germanamz/shrub/pkg/modeladapter/usage"
)

const messagesPath = "/v1/messages"

var _ modeladapter.Executor = (*Adapter)(nil)

// Adapter implements modeladapter.Executor for the Anthropic Messages API.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter configured for the Anthropic API.
// The baseURL should be "https://api.anthropic.com" (no trailing slash).
func New(baseURL, apiKey, model string) *Adapter {
	a := &Adapter{}
	a.BaseURL = baseURL
	a.Auth = modeladapter.Auth{
		Key:    apiKey,
		Header: "x-api-key",
	}
	a.Name = model
	a.MaxTokens = 4096
	a.Headers = map[string]string{
		"anthropic-version": "2023-06-01",
	}

	return a
}

// Complete sends a conversation to the Anthropic Messages API and returns the
// assistant's reply.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat) (message.Message, error) {
	req := a.buildRequest(c, false)

	var resp apiResponse
	if err := a.PostJSON(ctx, messagesPath, req, &resp); err != nil {
		return message.Message{}, fmt.Errorf("anthropic: %w", err)
	}

	a.Usage.Add(usage.TokenCount{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	})

	return parseResponse(resp), nil
}

// Stream sends the conversation with streaming enabled and yields text deltas.
func (a *Adapter) Stream(ctx context.Context, c *chat.Chat) (modeladapter.Stream, error) {
	req := a.buildRequest(c, true)

	body, err := a.PostStream(ctx, messagesPath, req, "text/event-stream")
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	var st streamState
	return modeladapter.NewSSEStream(body, func(frame string) (string, bool, error) {
		return a.parseEvent(&st, frame)
	}), nil
}

// --- request types ---

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	System      string       `json:"system,omitempty"`
	Messages    []apiMessage `json:"messages"`
	Temperature *float64     `json:"temperature,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

// --- response types ---

type apiResponse struct {
	Content    []apiContent `json:"content"`
	StopReason string       `json:"stop_reason"`
	Usage      apiUsage     `json:"usage"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage apiUsage `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *apiUsage `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// streamState carries token counts across events of one stream.
type streamState struct {
	inputTokens int
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(c *chat.Chat, stream bool) apiRequest {
	req := apiRequest{
		Model:     a.Name,
		MaxTokens: a.MaxTokens,
		System:    c.SystemPrompt(),
		Stream:    stream,
	}

	if a.Temperature != 0 {
		t := a.Temperature
		req.Temperature = &t
	}

	for _, m := range c.Turns() {
		appendMessage(&req.Messages, m)
	}

	return req
}

func appendMessage(msgs *[]apiMessage, m message.Message) {
	text := m.TextContent()
	if text == "" {
		return
	}

	msgRole := "user"
	if m.Role == role.Assistant {
		msgRole = "assistant"
	}

	block := apiContent{Type: "text", Text: text}

	// Consecutive turns with the same role must be merged.
	if n := len(*msgs); n > 0 && (*msgs)[n-1].Role == msgRole {
		(*msgs)[n-1].Content = append((*msgs)[n-1].Content, block)
		return
	}

	*msgs = append(*msgs, apiMessage{Role: msgRole, Content: []apiContent{block}})
}

func parseResponse(resp apiResponse) message.Message {
	var parts []content.Part

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			parts = append(parts, content.Text{Text: block.Text})
		case "thinking":
			parts = append(parts, content.Reasoning{Text: block.Thinking})
		}
	}

	msg := message.New(role.Assistant, parts...)
	if resp.StopReason != "" {
		msg.SetMeta("finish_reason", resp.StopReason)
	}

	return msg
}

func (a *Adapter) parseEvent(st *streamState, frame string) (string, bool, error) {
	var ev apiEvent
	if err := json.Unmarshal([]byte(frame), &ev); err != nil {
		return "", false, fmt.Errorf("anthropic: decode event: %w", err)
	}

	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			st.inputTokens = ev.Message.Usage.InputTokens
		}
	case "content_block_delta":
		if ev.Delta != nil && ev.Delta.Type == "text_delta" {
			return ev.Delta.Text, false, nil
		}
	case "message_delta":
		if ev.Usage != nil {
			a.Usage.Add(usage.TokenCount{
				InputTokens:  st.inputTokens,
				OutputTokens: ev.Usage.OutputTokens,
			})
		}
	case "message_stop":
		return "", true, nil
	case "error":
		if ev.Error != nil {
			return "", false, fmt.Errorf("anthropic: %s: %s", ev.Error.Type, ev.Error.Message)
		}
		return "", false, errors.New("anthropic: stream error")
	}

	return "", false, nil
}
