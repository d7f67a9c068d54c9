package registry

import "strings"

// Kind names the API family that serves a model.
type Kind string

const (
	OpenAI    Kind = "openai"
	Anthropic Kind = "anthropic"
	Gemini    Kind = "gemini"
	Ollama    Kind = "ollama"
	Groq      Kind = "groq"
	XAI       Kind = "xai"
	DeepSeek  Kind = "deepseek"
	Together  Kind = "together"
	Fireworks Kind = "fireworks"
	ZAI       Kind = "zai"
	Cohere    Kind = "cohere"
)

// Protocol is the wire protocol a kind speaks.
type Protocol string

const (
	ProtocolOpenAI    Protocol = "openai_chat_completions"
	ProtocolAnthropic Protocol = "anthropic_messages"
	ProtocolGemini    Protocol = "google_generate_content"
	ProtocolOllama    Protocol = "ollama_chat"
)

// KindSpec describes how to reach a kind's API.
type KindSpec struct {
	Protocol       Protocol
	DefaultBaseURL string
	Path           string // Endpoint path for OpenAI-compatible kinds; empty uses the adapter default.
	CredentialEnv  string // Conventional API key variable.
}

var kindSpecs = map[Kind]KindSpec{
	OpenAI:    {Protocol: ProtocolOpenAI, DefaultBaseURL: "https://api.openai.com", CredentialEnv: "OPENAI_API_KEY"},
	Anthropic: {Protocol: ProtocolAnthropic, DefaultBaseURL: "https://api.anthropic.com", CredentialEnv: "ANTHROPIC_API_KEY"},
	Gemini:    {Protocol: ProtocolGemini, DefaultBaseURL: "https://generativelanguage.googleapis.com", CredentialEnv: "GEMINI_API_KEY"},
	Ollama:    {Protocol: ProtocolOllama, DefaultBaseURL: "http://localhost:11434"},
	Groq:      {Protocol: ProtocolOpenAI, DefaultBaseURL: "https://api.groq.com/openai", CredentialEnv: "GROQ_API_KEY"},
	XAI:       {Protocol: ProtocolOpenAI, DefaultBaseURL: "https://api.x.ai", CredentialEnv: "XAI_API_KEY"},
	DeepSeek:  {Protocol: ProtocolOpenAI, DefaultBaseURL: "https://api.deepseek.com", CredentialEnv: "DEEPSEEK_API_KEY"},
	Together:  {Protocol: ProtocolOpenAI, DefaultBaseURL: "https://api.together.xyz", CredentialEnv: "TOGETHER_API_KEY"},
	Fireworks: {Protocol: ProtocolOpenAI, DefaultBaseURL: "https://api.fireworks.ai/inference", CredentialEnv: "FIREWORKS_API_KEY"},
	ZAI:       {Protocol: ProtocolOpenAI, DefaultBaseURL: "https://open.bigmodel.cn/api/paas/v4", Path: "/chat/completions", CredentialEnv: "ZAI_API_KEY"},
	Cohere:    {Protocol: ProtocolOpenAI, DefaultBaseURL: "https://api.cohere.ai/compatibility", CredentialEnv: "COHERE_API_KEY"},
}

// Spec returns the KindSpec for k.
func Spec(k Kind) (KindSpec, bool) {
	s, ok := kindSpecs[k]
	return s, ok
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindSpecs[k]
	return ok
}

// groqModels are served by Groq but carry no recognizable prefix.
var groqModels = map[string]struct{}{
	"llama-3.1-8b-instant":    {},
	"llama-3.3-70b-versatile": {},
	"gemma2-9b-it":            {},
	"openai/gpt-oss-20b":      {},
	"openai/gpt-oss-120b":     {},
	"qwen/qwen3-32b":          {},
}

const fireworksPrefix = "accounts/fireworks/models/"

// ResolveKind maps a model identifier to its kind and wire model name.
//
// An explicit "kind::model" namespace wins. Otherwise:
//   - gpt, o1, o3, o4 → openai
//   - claude → anthropic
//   - command → cohere
//   - gemini → gemini
//   - glm → zai
//   - grok → xai
//   - deepseek → deepseek
//   - accounts/fireworks/ → fireworks
//   - known Groq models → groq
//   - anything else → ollama
func ResolveKind(model string) (Kind, string) {
	if ns, name, ok := strings.Cut(model, "::"); ok {
		kind := Kind(strings.ToLower(strings.TrimSpace(ns)))
		if kind.Valid() {
			if kind == Fireworks && !strings.Contains(name, "/") {
				name = fireworksPrefix + name
			}
			return kind, name
		}
	}

	switch {
	case hasAnyPrefix(model, "gpt", "o1", "o3", "o4"):
		return OpenAI, model
	case strings.HasPrefix(model, "claude"):
		return Anthropic, model
	case strings.HasPrefix(model, "command"):
		return Cohere, model
	case strings.HasPrefix(model, "gemini"):
		return Gemini, model
	case strings.HasPrefix(model, "glm"):
		return ZAI, model
	case strings.HasPrefix(model, "grok"):
		return XAI, model
	case strings.HasPrefix(model, "deepseek"):
		return DeepSeek, model
	case strings.HasPrefix(model, fireworksPrefix):
		return Fireworks, model
	}

	if _, ok := groqModels[model]; ok {
		return Groq, model
	}

	return Ollama, model
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
