package stt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
)

const providerGoogle = "google"

// Google implements Provider using Cloud Speech-to-Text synchronous
// recognition. Used as the fallback behind the local whisper service.
type Google struct {
	client     *speech.Client
	logger     *slog.Logger
	language   string
	sampleRate int
}

// GoogleOption configures the Google provider.
type GoogleOption func(*Google)

// WithLanguage sets the recognition language code (default "en-US").
func WithLanguage(code string) GoogleOption {
	return func(g *Google) { g.language = code }
}

// WithSampleRate sets the expected PCM sample rate (default 16000).
func WithSampleRate(rate int) GoogleOption {
	return func(g *Google) { g.sampleRate = rate }
}

// NewGoogle creates a Cloud Speech provider. Credentials come from the
// ambient GOOGLE_APPLICATION_CREDENTIALS environment.
func NewGoogle(ctx context.Context, opts ...GoogleOption) (*Google, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create client: %w", err))
	}

	g := &Google{
		client:     client,
		logger:     slog.Default().With("component", "stt.google"),
		language:   "en-US",
		sampleRate: 16000,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Transcribe runs synchronous recognition over the blob.
func (g *Google) Transcribe(ctx context.Context, audio []byte, mime string) (*Result, error) {
	if len(audio) == 0 {
		return nil, WrapError(providerGoogle, ErrEmptyAudio)
	}

	start := time.Now()

	// The recognizer wants bare PCM; strip the RIFF header off WAV blobs.
	content := audio
	if mime == "audio/wav" && len(content) > 44 {
		content = content[44:]
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(g.sampleRate),
			LanguageCode:    g.language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	})
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("recognize: %w", err))
	}

	var sb strings.Builder
	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			sb.WriteString(result.Alternatives[0].Transcript)
		}
	}

	latency := time.Since(start).Milliseconds()
	text := strings.TrimSpace(sb.String())
	g.logger.Debug("transcribed utterance",
		"bytes", len(audio),
		"chars", len(text),
		"latency_ms", latency)

	return &Result{
		Text:      text,
		Language:  g.language,
		LatencyMs: latency,
	}, nil
}

// Health verifies the client is usable. The API has no ping endpoint;
// a recognizer round trip on an empty request would bill, so this only
// confirms the client was constructed.
func (g *Google) Health(ctx context.Context) error {
	if g.client == nil {
		return WrapError(providerGoogle, ErrProviderUnavailable)
	}
	return nil
}

// Name identifies the provider.
func (g *Google) Name() string { return providerGoogle }

// Close releases the gRPC connection.
func (g *Google) Close() error {
	return g.client.Close()
}

// Verify Google implements Provider at compile time.
var _ Provider = (*Google)(nil)
