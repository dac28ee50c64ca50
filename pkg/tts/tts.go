// Package tts synthesizes assistant replies into playable audio.
//
// Providers return mono PCM16 so the audio queue can play and gain-scale
// segments without a decode step. A fallback chain and a mock provider
// round out the package.
package tts

import (
	"context"
	"encoding/binary"
)

// Provider defines the synthesis interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Stream converts text to audio with chunked output for lower
	// latency to first sound.
	Stream(ctx context.Context, text string) (AudioStream, error)

	// Health checks provider connectivity and key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioStream is a chunked audio response. Read until it returns nil,
// then Close.
type AudioStream interface {
	// Read returns the next audio chunk, or nil when complete.
	Read() ([]byte, error)

	// Close stops the stream and releases resources.
	Close() error

	// Format returns the audio format metadata.
	Format() AudioFormat
}

// AudioResult is a complete synthesis result.
type AudioResult struct {
	// Audio contains raw audio bytes in the specified format.
	Audio []byte

	// Format describes the encoding and sample rate.
	Format AudioFormat

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the provider round-trip time.
	LatencyMs int64
}

// AudioFormat describes encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// Encoding identifies the audio codec.
type Encoding string

const (
	EncodingPCM16k Encoding = "pcm_16000"
	EncodingPCM24k Encoding = "pcm_24000"
	EncodingMP3    Encoding = "mp3_44100_128"
)

// SampleRate returns the rate implied by the encoding.
func (e Encoding) SampleRate() int {
	switch e {
	case EncodingPCM16k:
		return 16000
	case EncodingPCM24k:
		return 24000
	case EncodingMP3:
		return 44100
	default:
		return 24000
	}
}

// PCMSamples converts raw little-endian PCM16 bytes to samples for the
// audio queue.
func PCMSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
