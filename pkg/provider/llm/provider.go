// Package llm defines the Provider interface for text-generation backends.
//
// A provider wraps a remote or local model API (Gemini, OpenAI, Anthropic, a
// local Ollama instance, ...) and exposes a single blocking completion call so
// the rest of mockprep never couples to a specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically
	// from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness. Zero means provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int

	// SystemPrompt is an optional instruction sent ahead of Messages.
	SystemPrompt string
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any text-generation backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// It returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier requests are sent to.
	Model() string
}

// UserPrompt builds a request holding a single user-role message.
func UserPrompt(prompt string) CompletionRequest {
	return CompletionRequest{Messages: []Message{{Role: RoleUser, Content: prompt}}}
}
