// Package models contains shared data models used across the AyuPilot codebase.
package models

import "context"

// AIProvider is the text-generation capability behind every job handler.
// Never call specific AI providers directly; always inject this interface.
type AIProvider interface {
	// Generate returns the model's reply to a system preamble plus message history.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	// Name returns the provider identifier (e.g., "mock", "openai").
	Name() string
}

// MessageRole is the speaker of a message in a generation request.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn of the conversation sent to a provider.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// GenerateRequest is the input to a generation call. Kind identifies the job
// that is asking; Attributes carry the structured facts the prompt was built
// from so deterministic providers can answer without parsing prose.
type GenerateRequest struct {
	Kind       JobKind
	System     string
	Messages   []Message
	Attributes map[string]string
	// Images are data URIs or URLs attached to the last user message for
	// providers that accept vision input.
	Images []string
}

// LastUserMessage returns the content of the most recent user turn.
func (r GenerateRequest) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}
