// Package llm defines the Provider interface for Large Language Model
// backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI GPT-4,
// Anthropic Claude, or a local Ollama instance) and exposes a uniform
// completion interface for the extraction gateway without coupling to any
// specific SDK. The pipeline only needs single-shot completions — no
// streaming, no tool calling — so the interface is deliberately small.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Message is a single message in a conversation history. The gateway uses
// multi-turn histories for validation-feedback retries.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Conversation role values.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages
	// and system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// Add accumulates other into u. Used by the gateway to report combined usage
// across retries.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation history.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. The
	// extraction pipeline runs near 0 for reproducibility.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may
	// generate. Zero means use the provider default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// Complete must return promptly with ctx.Err() when ctx is cancelled.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// ModelID returns the provider-specific model identifier, for logging.
	ModelID() string
}
