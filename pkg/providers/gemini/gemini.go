// Package gemini provides an Executor for the Google Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/germanamz/shrub/pkg/chats/chat"
	"github.com/germanamz/shrub/pkg/chats/content"
	"github.com/germanamz/shrub/pkg/chats/message"
	"github.com/germanamz/shrub/pkg/chats/role"
	"github.com/germanamz/shrub/pkg/modeladapter"
	"github.com/germanamz/shrub/pkg/modeladapter/usage"
)

var _ modeladapter.Executor = (*Adapter)(nil)

// Adapter implements modeladapter.Executor for the Google Gemini API.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter configured for the Gemini API.
// The baseURL should be "https://generativelanguage.googleapis.com" (no trailing slash).
func New(baseURL, apiKey, model string) *Adapter {
	a := &Adapter{}
	a.BaseURL = baseURL
	a.Auth = modeladapter.Auth{
		Key:    apiKey,
		Header: "x-goog-api-key",
	}
	a.Name = model
	a.MaxTokens = 8192

	return a
}

// Complete sends a conversation to the Gemini API and returns the assistant's reply.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat) (message.Message, error) {
	req := a.buildRequest(c)
	path := fmt.Sprintf("/v1beta/models/%s:generateContent", url.PathEscape(a.Name))

	var resp apiResponse
	if err := a.PostJSON(ctx, path, req, &resp); err != nil {
		return message.Message{}, fmt.Errorf("gemini: %w", err)
	}

	a.recordUsage(resp.UsageMetadata)

	// A blocked prompt comes back with promptFeedback and no candidates.
	if len(resp.Candidates) == 0 {
		return message.New(role.Assistant), nil
	}

	return parseCandidate(resp.Candidates[0]), nil
}

// Stream uses streamGenerateContent with SSE framing. Each event is a partial
// response whose text parts are forwarded as fragments.
func (a *Adapter) Stream(ctx context.Context, c *chat.Chat) (modeladapter.Stream, error) {
	req := a.buildRequest(c)
	path := fmt.Sprintf("/v1beta/models/%s:streamGenerateContent?alt=sse", url.PathEscape(a.Name))

	body, err := a.PostStream(ctx, path, req, "text/event-stream")
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	return modeladapter.NewSSEStream(body, a.parseChunk), nil
}

// --- request types ---

type apiRequest struct {
	Contents          []apiContent     `json:"contents"`
	SystemInstruction *apiContent      `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens"`
}

// --- response types ---

type apiResponse struct {
	Candidates    []apiCandidate `json:"candidates"`
	UsageMetadata apiUsageMeta   `json:"usageMetadata"`
}

type apiCandidate struct {
	Content      apiContent `json:"content"`
	FinishReason string     `json:"finishReason"`
}

type apiUsageMeta struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(c *chat.Chat) apiRequest {
	req := apiRequest{
		GenerationConfig: generationConfig{MaxOutputTokens: a.MaxTokens},
	}

	if a.Temperature != 0 {
		t := a.Temperature
		req.GenerationConfig.Temperature = &t
	}

	if sp := c.SystemPrompt(); sp != "" {
		req.SystemInstruction = &apiContent{Parts: []apiPart{{Text: sp}}}
	}

	for _, m := range c.Turns() {
		apiRole := "user"
		if m.Role == role.Assistant {
			apiRole = "model"
		}

		part := apiPart{Text: m.TextContent()}

		// Gemini requires alternating roles; merge consecutive turns.
		if n := len(req.Contents); n > 0 && req.Contents[n-1].Role == apiRole {
			req.Contents[n-1].Parts = append(req.Contents[n-1].Parts, part)
			continue
		}

		req.Contents = append(req.Contents, apiContent{Role: apiRole, Parts: []apiPart{part}})
	}

	return req
}

func (a *Adapter) recordUsage(u apiUsageMeta) {
	a.Usage.Add(usage.TokenCount{
		InputTokens:  u.PromptTokenCount,
		OutputTokens: u.CandidatesTokenCount,
	})
}

func parseCandidate(cand apiCandidate) message.Message {
	var parts []content.Part

	for _, p := range cand.Content.Parts {
		if p.Thought {
			parts = append(parts, content.Reasoning{Text: p.Text})
			continue
		}
		parts = append(parts, content.Text{Text: p.Text})
	}

	msg := message.New(role.Assistant, parts...)
	if cand.FinishReason != "" {
		msg.SetMeta("finish_reason", cand.FinishReason)
	}

	return msg
}

func (a *Adapter) parseChunk(frame string) (string, bool, error) {
	var resp apiResponse
	if err := json.Unmarshal([]byte(frame), &resp); err != nil {
		return "", false, fmt.Errorf("gemini: decode chunk: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", false, nil
	}

	cand := resp.Candidates[0]
	done := cand.FinishReason != ""
	if done {
		// Only the final chunk carries complete usage metadata.
		a.recordUsage(resp.UsageMetadata)
	}

	return parseCandidate(cand).TextContent(), done, nil
}
