// Package llm defines the Provider interface for chat completion backends.
//
// A chat provider wraps a remote model API (e.g., OpenAI, Groq, or any
// OpenAI-compatible endpoint) and exposes a uniform interface for generating
// the interviewer's next utterance without coupling to a specific SDK.
//
// Unlike a provider bound to one model, every request names the model it
// targets. The fallback executor picks that model from the ranked catalogue
// and may call the same Provider several times with different models.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Message is a single message in the conversation sent to the model.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Model must be set; Messages may be empty when SystemPrompt alone
// drives the opening turn.
type CompletionRequest struct {
	// Model is the provider model identifier to run the request against.
	Model string

	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation history.
	SystemPrompt string

	// Messages is the ordered conversation history.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// FinishReason reports why generation stopped ("stop", "length", ...).
	FinishReason string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any chat completion backend.
type Provider interface {
	// Complete sends req to the model named in req.Model and waits for the full
	// response. Returns an error if the request fails, the model returns no
	// choices, or ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
