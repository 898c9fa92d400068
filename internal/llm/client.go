package llm

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is a provider-neutral message, including system prompts.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage is the generation metadata fed into usage accounting.
type TokenUsage struct {
	InputTokens  int32 `json:"input_tokens"`
	OutputTokens int32 `json:"output_tokens"`
	TotalTokens  int32 `json:"total_tokens"`
}

// Request describes one generation call.
type Request struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
}

// StreamChunk is one event on a generation stream. Exactly one terminal
// chunk is emitted: either Done with usage, or Err.
type StreamChunk struct {
	Text  string
	Done  bool
	Usage TokenUsage
	Err   error
}

// StreamingClient produces an ordered stream of partial text chunks. The
// returned channel is closed after the terminal chunk; cancelling ctx
// aborts the provider stream.
type StreamingClient interface {
	CompleteStream(ctx context.Context, req Request) (<-chan StreamChunk, error)
}
