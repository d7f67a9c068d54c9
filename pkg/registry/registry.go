// Package registry holds the static table of models shrub drives, the rules
// that map a model identifier to the API that serves it, and glob filtering
// over the table.
package registry

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Entry is one provider in the batch: a model identifier plus the environment
// variable that gates its use. An empty CredentialEnv means the model is
// always enabled (a locally hosted model). Identity is Model.
type Entry struct {
	Model         string // Model identifier, optionally namespaced as "kind::model".
	CredentialEnv string // Environment variable holding the API key; empty for none.
	Kind          Kind   // Explicit adapter kind; empty means resolve from Model.
	BaseURL       string // Overrides the kind's default base URL.
	MaxTokens     int    // Overrides the adapter's default response budget.
	Temperature   float64
}

// Resolve returns the adapter kind for e and the model name to send on the
// wire (with any "kind::" namespace removed).
func (e Entry) Resolve() (Kind, string) {
	kind, name := ResolveKind(e.Model)
	if e.Kind != "" {
		kind = e.Kind
	}
	return kind, name
}

// Models used by the default table.
const (
	ModelOpenAI    = "gpt-4o-mini"
	ModelAnthropic = "claude-3-haiku-20240307"
	ModelGemini    = "gemini-2.0-flash"
	ModelFireworks = "accounts/fireworks/models/qwen3-30b-a3b"
	ModelTogether  = "together::openai/gpt-oss-20b"
	ModelGroq      = "llama-3.1-8b-instant"
	ModelXAI       = "grok-3-mini"
	ModelDeepSeek  = "deepseek-chat"
	ModelOllama    = "codellama:7b"
	ModelZAI       = "glm-4-plus"
	ModelCohere    = "command-r7b-12-2024"
)

// Default returns the built-in table. Order is the display and iteration
// order, not a priority. A fresh slice is returned on every call.
func Default() []Entry {
	return []Entry{
		{Model: ModelOpenAI, CredentialEnv: "OPENAI_API_KEY"},
		{Model: ModelAnthropic, CredentialEnv: "ANTHROPIC_API_KEY"},
		{Model: ModelGemini, CredentialEnv: "GEMINI_API_KEY"},
		{Model: ModelFireworks, CredentialEnv: "FIREWORKS_API_KEY"},
		{Model: ModelTogether, CredentialEnv: "TOGETHER_API_KEY"},
		{Model: ModelGroq, CredentialEnv: "GROQ_API_KEY"},
		{Model: ModelXAI, CredentialEnv: "XAI_API_KEY"},
		{Model: ModelDeepSeek, CredentialEnv: "DEEPSEEK_API_KEY"},
		{Model: ModelOllama},
		{Model: ModelZAI, CredentialEnv: "ZAI_API_KEY"},
		{Model: ModelCohere, CredentialEnv: "COHERE_API_KEY"},
	}
}

// Filter keeps the entries whose model matches at least one doublestar glob,
// preserving order. No patterns means no filtering. Patterns are matched
// against the full model identifier, so "**/qwen*" matches
// "accounts/fireworks/models/qwen3-30b-a3b".
func Filter(entries []Entry, patterns []string) ([]Entry, error) {
	var pats []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("registry: invalid model pattern %q", p)
		}
		pats = append(pats, p)
	}

	if len(pats) == 0 {
		return entries, nil
	}

	var out []Entry
	for _, e := range entries {
		for _, p := range pats {
			if ok, _ := doublestar.Match(p, e.Model); ok {
				out = append(out, e)
				break
			}
		}
	}

	return out, nil
}
