// Package openai provides an Executor for the OpenAI Chat Completions API and
// the many backends that mirror it.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/germanamz/shrub/pkg/chats/chat"
	"github.com/germanamz/shrub/pkg/chats/content"
	"github.com/germanamz/shrub/pkg/chats/message"
	"github.com/germanamz/shrub/pkg/chats/role"
	"github.com/germanamz/shrub/pkg/modeladapter"
	"github.com/germanamz/shrub/pkg/modeladapter/usage"
)

// DefaultPath is the chat completions endpoint relative to the base URL.
const DefaultPath = "/v1/chat/completions"

var _ modeladapter.Executor = (*Adapter)(nil)

// Adapter implements modeladapter.Executor for the OpenAI Chat Completions API.
type Adapter struct {
	modeladapter.ModelAdapter
	Path string // Endpoint path; defaults to DefaultPath.
}

// New creates an Adapter configured for an OpenAI-compatible API.
// The baseURL should be "https://api.openai.com" (no trailing slash).
func New(baseURL, apiKey, model string) *Adapter {
	a := &Adapter{Path: DefaultPath}
	a.BaseURL = baseURL
	a.Auth = modeladapter.Auth{Key: apiKey}
	a.Name = model
	a.MaxTokens = 4096

	return a
}

func (a *Adapter) path() string {
	if a.Path == "" {
		return DefaultPath
	}
	return a.Path
}

// Complete sends a conversation to the chat completions endpoint and returns
// the assistant's reply.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat) (message.Message, error) {
	req := a.buildRequest(c, false)

	var resp apiResponse
	if err := a.PostJSON(ctx, a.path(), req, &resp); err != nil {
		return message.Message{}, fmt.Errorf("openai: %w", err)
	}

	a.Usage.Add(usage.TokenCount{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	})

	if len(resp.Choices) == 0 {
		return message.New(role.Assistant), nil
	}

	return parseChoice(resp.Choices[0]), nil
}

// Stream sends the conversation with stream enabled and yields content deltas.
func (a *Adapter) Stream(ctx context.Context, c *chat.Chat) (modeladapter.Stream, error) {
	req := a.buildRequest(c, true)

	body, err := a.PostStream(ctx, a.path(), req, "text/event-stream")
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	return modeladapter.NewSSEStream(body, a.parseChunk), nil
}

// --- request types ---

type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// --- response types ---

type apiResponse struct {
	Choices []apiChoice `json:"choices"`
	Usage   apiUsage    `json:"usage"`
}

type apiChoice struct {
	Message      apiRespMessage `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

type apiRespMessage struct {
	Role             string  `json:"role"`
	Content          *string `json:"content"`
	ReasoningContent string  `json:"reasoning_content,omitempty"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type apiChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *apiUsage `json:"usage"`
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(c *chat.Chat, stream bool) apiRequest {
	req := apiRequest{
		Model:     a.Name,
		MaxTokens: a.MaxTokens,
		Stream:    stream,
	}

	if a.Temperature != 0 {
		t := a.Temperature
		req.Temperature = &t
	}

	for _, m := range c.Messages() {
		req.Messages = append(req.Messages, apiMessage{
			Role:    mapRole(m.Role),
			Content: m.TextContent(),
		})
	}

	return req
}

func mapRole(r role.Role) string {
	switch r {
	case role.System:
		return "system"
	case role.Assistant:
		return "assistant"
	default:
		return "user"
	}
}

func parseChoice(choice apiChoice) message.Message {
	var parts []content.Part

	if choice.Message.ReasoningContent != "" {
		parts = append(parts, content.Reasoning{Text: choice.Message.ReasoningContent})
	}

	if choice.Message.Content != nil && *choice.Message.Content != "" {
		parts = append(parts, content.Text{Text: *choice.Message.Content})
	}

	msg := message.New(role.Assistant, parts...)
	if choice.FinishReason != "" {
		msg.SetMeta("finish_reason", choice.FinishReason)
	}

	return msg
}

func (a *Adapter) parseChunk(frame string) (string, bool, error) {
	if frame == "[DONE]" {
		return "", true, nil
	}

	var chunk apiChunk
	if err := json.Unmarshal([]byte(frame), &chunk); err != nil {
		return "", false, fmt.Errorf("openai: decode chunk: %w", err)
	}

	if chunk.Usage != nil {
		a.Usage.Add(usage.TokenCount{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
		})
	}

	if len(chunk.Choices) == 0 {
		return "", false, nil
	}

	return chunk.Choices[0].Delta.Content, false, nil
}
