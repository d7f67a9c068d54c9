// Package ollama provides an Executor for a locally hosted Ollama server's
// native chat API. No credentials are involved.
package ollama

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

// DefaultBaseURL is where `ollama serve` listens by default.
const DefaultBaseURL = "http://localhost:11434"

const chatPath = "/api/chat"

var _ modeladapter.Executor = (*Adapter)(nil)

// Adapter implements modeladapter.Executor for Ollama's /api/chat.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter for the given Ollama server and model tag
// (e.g. "codellama:7b").
func New(baseURL, model string) *Adapter {
	a := &Adapter{}
	a.BaseURL = baseURL
	a.Name = model

	return a
}

// Complete sends the conversation with streaming disabled.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat) (message.Message, error) {
	req := a.buildRequest(c, false)

	var resp apiResponse
	if err := a.PostJSON(ctx, chatPath, req, &resp); err != nil {
		return message.Message{}, fmt.Errorf("ollama: %w", err)
	}

	if resp.Error != "" {
		return message.Message{}, fmt.Errorf("ollama: %s", resp.Error)
	}

	a.recordUsage(resp)

	var parts []content.Part
	if resp.Message.Thinking != "" {
		parts = append(parts, content.Reasoning{Text: resp.Message.Thinking})
	}
	if resp.Message.Content != "" {
		parts = append(parts, content.Text{Text: resp.Message.Content})
	}

	msg := message.New(role.Assistant, parts...)
	if resp.DoneReason != "" {
		msg.SetMeta("finish_reason", resp.DoneReason)
	}

	return msg, nil
}

// Stream sends the conversation with streaming enabled. Ollama answers with
// one JSON object per line; the last one has done set.
func (a *Adapter) Stream(ctx context.Context, c *chat.Chat) (modeladapter.Stream, error) {
	req := a.buildRequest(c, true)

	body, err := a.PostStream(ctx, chatPath, req, "application/x-ndjson")
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}

	return modeladapter.NewLineStream(body, a.parseLine), nil
}

// --- wire types ---

type apiRequest struct {
	Model    string       `json:"model"`
	Messages []apiMessage `json:"messages"`
	Stream   bool         `json:"stream"`
	Options  *apiOptions  `json:"options,omitempty"`
}

type apiMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
}

type apiOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type apiResponse struct {
	Message         apiMessage `json:"message"`
	Done            bool       `json:"done"`
	DoneReason      string     `json:"done_reason"`
	PromptEvalCount int        `json:"prompt_eval_count"`
	EvalCount       int        `json:"eval_count"`
	Error           string     `json:"error"`
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(c *chat.Chat, stream bool) apiRequest {
	req := apiRequest{
		Model:  a.Name,
		Stream: stream,
	}

	if a.Temperature != 0 || a.MaxTokens != 0 {
		req.Options = &apiOptions{NumPredict: a.MaxTokens}
		if a.Temperature != 0 {
			t := a.Temperature
			req.Options.Temperature = &t
		}
	}

	for _, m := range c.Messages() {
		req.Messages = append(req.Messages, apiMessage{
			Role:    m.Role.String(),
			Content: m.TextContent(),
		})
	}

	return req
}

func (a *Adapter) recordUsage(resp apiResponse) {
	a.Usage.Add(usage.TokenCount{
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	})
}

func (a *Adapter) parseLine(line string) (string, bool, error) {
	var resp apiResponse
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return "", false, fmt.Errorf("ollama: decode line: %w", err)
	}

	if resp.Error != "" {
		return "", false, errors.New("ollama: " + resp.Error)
	}

	if resp.Done {
		a.recordUsage(resp)
	}

	return resp.Message.Content, resp.Done, nil
}
