// Package content defines the content parts carried by chat messages.
package content

// Part is a piece of content within a message.
type Part interface {
	PartKind() string
}

// Text is answer text produced by the model or supplied by the caller.
type Text struct {
	Text string
}

func (t Text) PartKind() string { return "text" }

// Reasoning is thinking text some models emit alongside their answer
// (e.g. DeepSeek reasoning_content, Qwen3 think blocks). It is never treated
// as part of the answer.
type Reasoning struct {
	Text string
}

func (r Reasoning) PartKind() string { return "reasoning" }
