// Package audioio abstracts microphone capture and speaker playback
// behind Source and Sink interfaces, with a mock pair for tests.
//
// All audio is mono PCM16 unless a chunk says otherwise. The package does
// not touch the network; transport-level audio is out of scope.
package audioio

import (
	"context"
	"io"
	"math"
)

// Chunk is a buffer of PCM16 audio samples.
type Chunk struct {
	// Samples contains PCM16 audio samples (little-endian).
	Samples []int16

	// SampleRate is the sample rate of this chunk in Hz.
	SampleRate int

	// Channels is the number of channels (1 = mono).
	Channels int
}

// Bytes returns the raw little-endian bytes of the chunk.
func (c *Chunk) Bytes() []byte {
	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// FromBytes populates the chunk from raw PCM16 bytes.
func (c *Chunk) FromBytes(data []byte, sampleRate, channels int) {
	c.SampleRate = sampleRate
	c.Channels = channels
	c.Samples = make([]int16, len(data)/2)
	for i := range c.Samples {
		c.Samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
}

// Duration returns the playback duration of the chunk in seconds.
func (c *Chunk) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// RMS returns the root-mean-square amplitude of the chunk normalized
// to [0,1]. An empty chunk has zero energy.
func (c *Chunk) RMS() float64 {
	if len(c.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range c.Samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(c.Samples)))
}

// Source captures audio from a microphone or other input device.
type Source interface {
	// Start begins audio capture.
	Start(ctx context.Context) error

	// Stop halts audio capture. Safe to call multiple times.
	Stop() error

	// Latest returns the most recent chunk without blocking.
	// ok is false when no chunk has arrived since the last call.
	Latest() (Chunk, bool)

	// Stream returns a channel that receives audio chunks.
	// The channel is closed when the source is stopped.
	Stream() <-chan Chunk

	// Name returns the backend name (e.g., "alsa", "mock").
	Name() string

	// Close releases all resources. The source cannot be restarted.
	io.Closer
}

// Sink plays audio to a speaker or other output device.
type Sink interface {
	// Start prepares the sink for playback.
	Start(ctx context.Context) error

	// Write queues a chunk for playback, blocking only on device
	// backpressure.
	Write(ctx context.Context, chunk Chunk) error

	// Flush blocks until queued audio has been played.
	Flush(ctx context.Context) error

	// Clear discards queued audio immediately.
	Clear() error

	// Stop halts playback. Safe to call multiple times.
	Stop() error

	// Name returns the backend name.
	Name() string

	io.Closer
}
