// Package stt provides speech-to-text providers behind a common
// interface, with a fallback chain and a mock for tests.
package stt

import "context"

// Result is one finished transcription.
type Result struct {
	// Text is the transcribed utterance, whitespace-trimmed.
	Text string

	// Language is the detected language code (e.g. "en").
	Language string

	// LatencyMs is the provider round-trip time.
	LatencyMs int64
}

// Provider transcribes audio blobs.
type Provider interface {
	// Transcribe submits an audio blob and returns the transcription.
	Transcribe(ctx context.Context, audio []byte, mime string) (*Result, error)

	// Health checks provider availability.
	Health(ctx context.Context) error

	// Name identifies the provider.
	Name() string

	// Close releases resources.
	Close() error
}
