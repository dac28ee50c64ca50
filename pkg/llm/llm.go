// Package llm provides chat completion against any OpenAI-compatible
// API, with incremental token streaming and the "thinking" pre/post
// processing calls used to refine queries and polish replies.
package llm

import "context"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn sent to or received from the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest for chat completions.
type ChatRequest struct {
	// Messages is the conversation history.
	Messages []Message

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature float64
}

// ChatResponse from a non-streaming completion.
type ChatResponse struct {
	Content      string
	FinishReason string
	Model        string
	LatencyMs    int64
}

// Stream is a lazy, single-pass, non-restartable sequence of text
// fragments ending with an explicit done or error.
type Stream interface {
	// Recv returns the next chunk. Done is set on the terminal chunk.
	Recv() (*StreamChunk, error)

	// Close stops the stream and releases resources.
	Close() error
}

// StreamChunk is one piece of a streaming response.
type StreamChunk struct {
	// Delta is the incremental text content.
	Delta string

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Done is true when the stream is complete.
	Done bool
}

// Provider generates chat completions.
type Provider interface {
	// Chat generates a complete response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream generates a streaming response for real-time output.
	Stream(ctx context.Context, req *ChatRequest) (Stream, error)

	// Models lists the model IDs the endpoint serves.
	Models(ctx context.Context) ([]string, error)

	// Health checks connectivity and key validity.
	Health(ctx context.Context) error

	// Close releases resources.
	Close() error
}
