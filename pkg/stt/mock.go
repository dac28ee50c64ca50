package stt

import (
	"context"
	"sync"
)

// Mock implements Provider for tests with scripted responses.
type Mock struct {
	mu sync.Mutex

	// Result is returned on success.
	Result *Result

	// Err, when set, fails every call.
	Err error

	// Calls records the byte length of each submitted blob.
	Calls []int
}

// NewMock creates a mock that returns the given text.
func NewMock(text string) *Mock {
	return &Mock{Result: &Result{Text: text, Language: "en"}}
}

// Transcribe returns the scripted result or error.
func (m *Mock) Transcribe(ctx context.Context, audio []byte, mime string) (*Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, len(audio))
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	r := *m.Result
	return &r, nil
}

// CallCount returns how many times Transcribe was invoked.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Health reports the scripted error state.
func (m *Mock) Health(ctx context.Context) error { return m.Err }

// Name identifies the provider.
func (m *Mock) Name() string { return "mock" }

// Close releases nothing.
func (m *Mock) Close() error { return nil }

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
