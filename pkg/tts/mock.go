package tts

import (
	"context"
	"sync"
)

// Mock implements Provider for tests. It produces a deterministic PCM
// buffer whose length scales with the input text.
type Mock struct {
	mu sync.Mutex

	// Err, when set, fails every call.
	Err error

	// SampleRate of generated audio (default 16000).
	SampleRate int

	// Texts records every synthesized string.
	Texts []string
}

// NewMock creates a working mock provider.
func NewMock() *Mock {
	return &Mock{SampleRate: 16000}
}

// Synthesize returns a deterministic buffer of 100 samples per character.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.mu.Lock()
	m.Texts = append(m.Texts, text)
	err := m.Err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, ErrEmptyText
	}

	audio := make([]byte, len(text)*200)
	for i := range audio {
		audio[i] = byte(i)
	}
	return &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: EncodingPCM16k, SampleRate: m.SampleRate, Channels: 1},
		CharCount: len(text),
	}, nil
}

// Stream wraps Synthesize in a single-chunk stream.
func (m *Mock) Stream(ctx context.Context, text string) (AudioStream, error) {
	result, err := m.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	return &bufferStream{data: result.Audio, format: result.Format}, nil
}

// Health reports the scripted error state.
func (m *Mock) Health(ctx context.Context) error { return m.Err }

// Close releases nothing.
func (m *Mock) Close() error { return nil }

// CallCount returns how many synthesis calls were made.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Texts)
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
