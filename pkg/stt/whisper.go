package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/mhalvorsen/go-parley/internal/httpc"
)

const providerWhisper = "whisper"

// Whisper implements Provider against a self-hosted faster-whisper
// service: multipart POST /transcribe, GET /health.
type Whisper struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// WhisperOption configures the Whisper provider.
type WhisperOption func(*Whisper)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) WhisperOption {
	return func(w *Whisper) { w.client = c }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) WhisperOption {
	return func(w *Whisper) { w.logger = l.With("component", "stt.whisper") }
}

// NewWhisper creates a provider for the whisper service at endpoint,
// e.g. "http://localhost:8086".
func NewWhisper(endpoint string, opts ...WhisperOption) (*Whisper, error) {
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}

	w := &Whisper{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   httpc.NewClient(60 * time.Second),
		logger:   slog.Default().With("component", "stt.whisper"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Transcribe submits the blob as a multipart upload. The service
// rejects blobs it considers too short with a 400; that maps to
// ErrAudioTooShort so callers can treat it as a noise blip.
func (w *Whisper) Transcribe(ctx context.Context, audio []byte, mime string) (*Result, error) {
	if len(audio) == 0 {
		return nil, WrapError(providerWhisper, ErrEmptyAudio)
	}

	start := time.Now()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", filenameFor(mime))
	if err != nil {
		return nil, WrapError(providerWhisper, fmt.Errorf("create form: %w", err))
	}
	if _, err := part.Write(audio); err != nil {
		return nil, WrapError(providerWhisper, fmt.Errorf("write form: %w", err))
	}
	if err := mw.Close(); err != nil {
		return nil, WrapError(providerWhisper, fmt.Errorf("close form: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.endpoint+"/transcribe", &buf)
	if err != nil {
		return nil, WrapError(providerWhisper, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, WrapError(providerWhisper, fmt.Errorf("transcribe request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, w.parseError(resp)
	}

	var out struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, WrapError(providerWhisper, fmt.Errorf("decode response: %w", err))
	}

	latency := time.Since(start).Milliseconds()
	w.logger.Debug("transcribed utterance",
		"bytes", len(audio),
		"chars", len(out.Text),
		"language", out.Language,
		"latency_ms", latency)

	return &Result{
		Text:      strings.TrimSpace(out.Text),
		Language:  out.Language,
		LatencyMs: latency,
	}, nil
}

// Health checks the service's /health endpoint.
func (w *Whisper) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", w.endpoint+"/health", nil)
	if err != nil {
		return WrapError(providerWhisper, err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return WrapError(providerWhisper, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return w.parseError(resp)
	}
	return nil
}

// Name identifies the provider.
func (w *Whisper) Name() string { return providerWhisper }

// Close releases resources.
func (w *Whisper) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

// parseError maps FastAPI error payloads. The service uses
// {"detail": "..."}; a 400 with "audio too short" is the documented
// rejection of a degenerate blob.
func (w *Whisper) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Detail string `json:"detail"`
	}
	message := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail != "" {
		message = errResp.Detail
	}

	if resp.StatusCode == http.StatusBadRequest && strings.Contains(message, "too short") {
		return WrapError(providerWhisper, ErrAudioTooShort)
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerWhisper,
	}
}

func filenameFor(mime string) string {
	switch mime {
	case "audio/wav":
		return "utterance.wav"
	case "audio/pcm":
		return "utterance.pcm"
	default:
		return "utterance.bin"
	}
}

// Verify Whisper implements Provider at compile time.
var _ Provider = (*Whisper)(nil)
