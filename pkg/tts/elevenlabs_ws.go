package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	elevenLabsWSBaseURL = "wss://api.elevenlabs.io/v1/text-to-speech"
	providerElevenWS    = "elevenlabs_ws"
)

// ErrNoVoiceID is returned when the voice ID is missing.
var ErrNoVoiceID = fmt.Errorf("tts: voice ID required")

// ElevenLabsWS implements Provider over the ElevenLabs stream-input
// WebSocket. Each synthesis opens one session: begin-of-stream with
// voice settings, the text, end-of-stream, then base64 PCM chunks back
// until the final marker.
type ElevenLabsWS struct {
	config *Config
	logger *slog.Logger
	dialer *websocket.Dialer
	wsURL  string
}

// NewElevenLabsWS creates a WebSocket-based ElevenLabs provider.
func NewElevenLabsWS(opts ...Option) (*ElevenLabsWS, error) {
	cfg := DefaultConfig()
	cfg.ModelID = "eleven_turbo_v2_5"
	cfg.OutputFormat = EncodingPCM24k
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.VoiceID == "" {
		return nil, ErrNoVoiceID
	}

	wsURL := cfg.BaseURL
	if wsURL == "" {
		wsURL = elevenLabsWSBaseURL
	}

	return &ElevenLabsWS{
		config: cfg,
		logger: cfg.Logger.With("component", "tts.elevenlabs_ws"),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		wsURL:  wsURL,
	}, nil
}

// Stream opens a session and returns audio chunks as they arrive.
func (e *ElevenLabsWS) Stream(ctx context.Context, text string) (AudioStream, error) {
	if text == "" {
		return nil, WrapError(providerElevenWS, ErrEmptyText)
	}

	url := fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=%s",
		e.wsURL, e.config.VoiceID, e.config.ModelID, e.config.OutputFormat)

	headers := http.Header{}
	headers.Set("xi-api-key", e.config.APIKey)

	conn, resp, err := e.dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return nil, WrapError(providerElevenWS, fmt.Errorf("dial (status %d): %w", resp.StatusCode, err))
		}
		return nil, WrapError(providerElevenWS, fmt.Errorf("dial: %w", err))
	}

	// Begin of stream, then the text, then end of stream.
	bos := map[string]interface{}{
		"text": " ",
		"voice_settings": map[string]interface{}{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
		"generation_config": map[string]interface{}{
			"chunk_length_schedule": []int{120, 160, 250, 290},
		},
	}
	for _, msg := range []map[string]interface{}{bos, {"text": text + " "}, {"text": ""}} {
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			return nil, WrapError(providerElevenWS, fmt.Errorf("send: %w", err))
		}
	}

	format := AudioFormat{
		Encoding:   e.config.OutputFormat,
		SampleRate: e.config.OutputFormat.SampleRate(),
		Channels:   1,
	}

	stream := &wsStream{
		conn:   conn,
		format: format,
		chunks: make(chan []byte, 16),
		errCh:  make(chan error, 1),
	}
	go stream.readLoop(e.logger)

	e.logger.Debug("synthesis session opened", "chars", len(text), "voice", e.config.VoiceID)
	return stream, nil
}

// Synthesize collects the full stream into one buffer.
func (e *ElevenLabsWS) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	stream, err := e.Stream(ctx, text)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var audio []byte
	for {
		chunk, err := stream.Read()
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			break
		}
		audio = append(audio, chunk...)
	}

	return &AudioResult{
		Audio:     audio,
		Format:    stream.Format(),
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Health verifies the API key against the voices endpoint.
func (e *ElevenLabsWS) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", "https://api.elevenlabs.io/v1/voices", nil)
	if err != nil {
		return WrapError(providerElevenWS, err)
	}
	req.Header.Set("xi-api-key", e.config.APIKey)

	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return WrapError(providerElevenWS, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "voices check failed", Provider: providerElevenWS}
	}
	return nil
}

// Close releases resources. Sessions are per-call, so nothing persists.
func (e *ElevenLabsWS) Close() error {
	return nil
}

// wsStream reads one session's audio messages.
type wsStream struct {
	conn   *websocket.Conn
	format AudioFormat
	chunks chan []byte
	errCh  chan error
	closed bool
}

func (s *wsStream) readLoop(logger *slog.Logger) {
	defer close(s.chunks)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.errCh <- WrapError(providerElevenWS, fmt.Errorf("read: %w", err))
			}
			return
		}

		var resp struct {
			Audio   string `json:"audio"`
			IsFinal bool   `json:"isFinal"`
		}
		if err := json.Unmarshal(message, &resp); err != nil {
			logger.Warn("unparseable synthesis message", "error", err)
			continue
		}

		if resp.Audio != "" {
			data, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				logger.Warn("undecodable audio chunk", "error", err)
				continue
			}
			s.chunks <- data
		}
		if resp.IsFinal {
			return
		}
	}
}

// Read returns the next audio chunk, or nil at end of stream.
func (s *wsStream) Read() ([]byte, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}

	select {
	case err := <-s.errCh:
		return nil, err
	case chunk, ok := <-s.chunks:
		if !ok {
			select {
			case err := <-s.errCh:
				return nil, err
			default:
			}
			return nil, nil
		}
		return chunk, nil
	}
}

// Close terminates the session.
func (s *wsStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

// Format returns the audio format.
func (s *wsStream) Format() AudioFormat {
	return s.format
}

// Verify ElevenLabsWS implements Provider at compile time.
var _ Provider = (*ElevenLabsWS)(nil)
