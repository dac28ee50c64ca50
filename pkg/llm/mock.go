package llm

import (
	"context"
	"sync"
)

// Mock implements Provider for tests with scripted responses.
type Mock struct {
	mu sync.Mutex

	// ChatContent is returned by Chat calls in order; the last entry
	// repeats once exhausted.
	ChatContent []string

	// ChatErr, when set, fails every Chat call.
	ChatErr error

	// StreamTokens are emitted by Stream one chunk per token.
	StreamTokens []string

	// StreamErr, when set, fails the stream after StreamErrAfter tokens.
	StreamErr      error
	StreamErrAfter int

	// ModelList is returned by Models.
	ModelList []string

	chatCalls   int
	streamCalls int

	// Requests records every chat/stream request for assertions.
	Requests []*ChatRequest
}

// Chat returns the next scripted response.
func (m *Mock) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	if m.ChatErr != nil {
		return nil, m.ChatErr
	}

	idx := m.chatCalls
	if idx >= len(m.ChatContent) {
		idx = len(m.ChatContent) - 1
	}
	m.chatCalls++

	content := ""
	if idx >= 0 {
		content = m.ChatContent[idx]
	}
	return &ChatResponse{Content: content, FinishReason: "stop"}, nil
}

// Stream returns a scripted token stream.
func (m *Mock) Stream(ctx context.Context, req *ChatRequest) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	m.streamCalls++
	return &mockStream{
		tokens:   append([]string(nil), m.StreamTokens...),
		err:      m.StreamErr,
		errAfter: m.StreamErrAfter,
	}, nil
}

// Models returns the scripted model list.
func (m *Mock) Models(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ModelList...), nil
}

// Health reports the scripted chat error state.
func (m *Mock) Health(ctx context.Context) error { return m.ChatErr }

// Close releases nothing.
func (m *Mock) Close() error { return nil }

// ChatCalls returns how many Chat calls were made.
func (m *Mock) ChatCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chatCalls
}

// StreamCalls returns how many Stream calls were made.
func (m *Mock) StreamCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCalls
}

type mockStream struct {
	tokens   []string
	pos      int
	err      error
	errAfter int
}

func (s *mockStream) Recv() (*StreamChunk, error) {
	if s.err != nil && s.pos >= s.errAfter {
		return nil, s.err
	}
	if s.pos >= len(s.tokens) {
		return &StreamChunk{Done: true, FinishReason: "stop"}, nil
	}
	tok := s.tokens[s.pos]
	s.pos++
	return &StreamChunk{Delta: tok}, nil
}

func (s *mockStream) Close() error { return nil }

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
var _ Stream = (*mockStream)(nil)
