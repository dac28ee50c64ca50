package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"
)

// MockSource is a synthetic audio source for tests.
// It generates silence by default, or a sine wave at a set amplitude.
type MockSource struct {
	sampleRate int
	interval   time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	stopCh  chan struct{}

	streamCh chan Chunk
	latest   Chunk
	hasChunk bool

	phase     float64
	frequency float64
	amplitude float64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithTone configures the mock to generate a sine wave.
func WithTone(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithChunkInterval sets the cadence of generated chunks.
func WithChunkInterval(d time.Duration) MockSourceOption {
	return func(m *MockSource) {
		m.interval = d
	}
}

// NewMockSource creates a mock source at the given sample rate.
func NewMockSource(sampleRate int, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		sampleRate: sampleRate,
		interval:   20 * time.Millisecond,
		logger:     logger,
		streamCh:   make(chan Chunk, 16),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetTone changes the generated signal at runtime. Amplitude 0 is silence.
func (m *MockSource) SetTone(frequency, amplitude float64) {
	m.mu.Lock()
	m.frequency = frequency
	m.amplitude = amplitude
	m.mu.Unlock()
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.streamCh = make(chan Chunk, 16)

	go m.generateLoop(ctx)
	return nil
}

func (m *MockSource) generateLoop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			chunk := m.generateChunk()
			m.mu.Lock()
			m.latest = chunk
			m.hasChunk = true
			m.mu.Unlock()
			select {
			case m.streamCh <- chunk:
			default:
				m.logger.Debug("mock source: buffer full, dropping chunk")
			}
		}
	}
}

func (m *MockSource) generateChunk() Chunk {
	m.mu.Lock()
	freq, amp := m.frequency, m.amplitude
	m.mu.Unlock()

	n := int(float64(m.sampleRate) * m.interval.Seconds())
	samples := make([]int16, n)

	if freq > 0 && amp > 0 {
		for i := 0; i < n; i++ {
			v := amp * math.Sin(2*math.Pi*freq*m.phase/float64(m.sampleRate))
			samples[i] = int16(v * 32767)
			m.phase++
			if m.phase >= float64(m.sampleRate) {
				m.phase = 0
			}
		}
	}

	return Chunk{Samples: samples, SampleRate: m.sampleRate, Channels: 1}
}

// Latest returns the most recent chunk without blocking.
func (m *MockSource) Latest() (Chunk, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasChunk {
		return Chunk{}, false
	}
	m.hasChunk = false
	return m.latest, true
}

// Stream returns the chunk channel.
func (m *MockSource) Stream() <-chan Chunk {
	return m.streamCh
}

// Stop halts generation.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopCh)
	close(m.streamCh)
	return nil
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	return m.Stop()
}

// Ensure MockSource implements Source.
var _ Source = (*MockSource)(nil)

// MockSink discards audio while tracking what was written.
type MockSink struct {
	mu      sync.Mutex
	running bool
	closed  bool

	// Written chunks, retained for assertions.
	Written []Chunk
}

// NewMockSink creates a mock sink.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// Start prepares the sink.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return io.ErrClosedPipe
	}
	m.running = true
	return nil
}

// Write records the chunk.
func (m *MockSink) Write(ctx context.Context, chunk Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.running {
		return io.ErrClosedPipe
	}
	m.Written = append(m.Written, chunk)
	return nil
}

// Flush is instantaneous for the mock.
func (m *MockSink) Flush(ctx context.Context) error {
	return ctx.Err()
}

// Clear discards recorded chunks.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Written = m.Written[:0]
	return nil
}

// Stop halts the sink.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// Name returns "mock".
func (m *MockSink) Name() string {
	return "mock"
}

// Close releases resources.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.running = false
	return nil
}

// Ensure MockSink implements Sink.
var _ Sink = (*MockSink)(nil)
