// Package providers groups the concrete chat executors shrub can drive.
//
// Each sub-package implements [github.com/germanamz/shrub/pkg/modeladapter.Executor]
// on top of the embeddable [github.com/germanamz/shrub/pkg/modeladapter.ModelAdapter]:
//   - [github.com/germanamz/shrub/pkg/providers/openai]: OpenAI Chat Completions, and every backend that speaks the same protocol (Groq, xAI, DeepSeek, Together, Fireworks, Z.AI, Cohere compatibility)
//   - [github.com/germanamz/shrub/pkg/providers/anthropic]: Anthropic Messages
//   - [github.com/germanamz/shrub/pkg/providers/gemini]: Google Gemini generateContent
//   - [github.com/germanamz/shrub/pkg/providers/ollama]: local Ollama chat, no credentials
package providers
