// Package recorder captures exactly one contiguous audio buffer per
// speech-start/speech-end pair and hands the assembled blob downstream.
//
// Start is guarded against overlapping captures; a hard timeout forces
// the capture closed if silence never arrives. Degenerate captures
// below a minimum byte size are discarded without touching the
// transcription collaborator.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mhalvorsen/go-parley/pkg/audioio"
	"github.com/mhalvorsen/go-parley/pkg/session"
)

var (
	// ErrMuted means the microphone is muted.
	ErrMuted = errors.New("recorder: microphone muted")

	// ErrAlreadyRecording means a capture is already in progress.
	ErrAlreadyRecording = errors.New("recorder: capture already active")

	// ErrNoSource means no audio stream is available.
	ErrNoSource = errors.New("recorder: no audio source")

	// ErrNotListening means the session is not in a listening state.
	ErrNotListening = errors.New("recorder: not listening")

	// ErrNotRecording is returned by Stop when nothing was started.
	ErrNotRecording = errors.New("recorder: no capture active")

	// ErrTooShort marks a capture discarded as a background noise blip.
	ErrTooShort = errors.New("recorder: capture too short")
)

// Config holds capture tuning.
type Config struct {
	// HardCutoff forces end-of-speech if silence never arrives, so a
	// continuous tone cannot hold the capture open.
	HardCutoff time.Duration

	// MinBlobBytes is the smallest blob considered a real utterance.
	MinBlobBytes int

	// ArchiveTTL is how long captures are kept in the archive.
	ArchiveTTL time.Duration
}

// DefaultConfig returns capture defaults.
func DefaultConfig() Config {
	return Config{
		HardCutoff:   6 * time.Second,
		MinBlobBytes: 200,
		ArchiveTTL:   60 * time.Second,
	}
}

// Archive receives finished captures for short-lived diagnostic storage.
// Failures are logged and never block the turn.
type Archive interface {
	Save(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Recorder buffers audio between speech edges.
type Recorder struct {
	cfg      Config
	state    *session.State
	source   audioio.Source
	encoders []Encoder
	archive  Archive
	logger   *slog.Logger

	handler func(Blob)

	mu         sync.Mutex
	active     bool
	buf        []int16
	sampleRate int
	startedAt  time.Time
	lastErr    error
	stopCh     chan struct{}
	done       chan struct{}
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithArchive attaches a best-effort capture archive.
func WithArchive(a Archive) Option {
	return func(r *Recorder) { r.archive = a }
}

// WithEncoders overrides the codec preference order.
func WithEncoders(encoders []Encoder) Option {
	return func(r *Recorder) { r.encoders = encoders }
}

// New creates a recorder over the given source.
func New(cfg Config, state *session.State, source audioio.Source, logger *slog.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HardCutoff == 0 {
		cfg = DefaultConfig()
	}
	r := &Recorder{
		cfg:      cfg,
		state:    state,
		source:   source,
		encoders: DefaultEncoders(),
		logger:   logger.With("component", "recorder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnUtterance sets the callback receiving each validated capture.
func (r *Recorder) OnUtterance(fn func(Blob)) {
	r.mu.Lock()
	r.handler = fn
	r.mu.Unlock()
}

// Recording reports whether a capture is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Start begins buffering audio. The guards make overlapping or
// impossible captures a refused no-op rather than a fault.
func (r *Recorder) Start(ctx context.Context) error {
	if r.source == nil {
		return ErrNoSource
	}

	snap := r.state.Snapshot()
	switch {
	case snap.MicMuted:
		return ErrMuted
	case snap.Recording:
		return ErrAlreadyRecording
	case !snap.Listening():
		return ErrNotListening
	}

	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.active = true
	r.buf = r.buf[:0]
	r.sampleRate = 0
	r.startedAt = time.Now()
	r.lastErr = nil
	r.stopCh = make(chan struct{})
	r.done = make(chan struct{})
	stopCh, done := r.stopCh, r.done
	r.mu.Unlock()

	r.state.SetRecording(true)
	r.logger.Debug("capture started")

	go r.collect(ctx, stopCh, done)
	return nil
}

// Stop ends the capture, assembles the blob, and delivers it to the
// utterance handler. Returns ErrTooShort for a discarded blip.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return ErrNotRecording
	}
	stopCh, done := r.stopCh, r.done
	r.mu.Unlock()

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-done

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// collect drains the source stream until silence, the hard cutoff, or
// stream closure, then finalizes.
func (r *Recorder) collect(ctx context.Context, stopCh chan struct{}, done chan struct{}) {
	defer close(done)

	cutoff := time.NewTimer(r.cfg.HardCutoff)
	defer cutoff.Stop()

	stream := r.source.Stream()
	for {
		select {
		case <-ctx.Done():
			r.finalize(ctx, "context cancelled")
			return
		case <-stopCh:
			r.finalize(ctx, "silence")
			return
		case <-cutoff.C:
			r.logger.Warn("hard cutoff reached, forcing end of capture")
			r.finalize(ctx, "cutoff")
			return
		case chunk, ok := <-stream:
			if !ok {
				r.finalize(ctx, "stream closed")
				return
			}
			r.append(chunk)
		}
	}
}

func (r *Recorder) append(chunk audioio.Chunk) {
	samples := chunk.Samples
	if chunk.Channels > 1 {
		samples = audioio.MonoMix(samples, chunk.Channels)
	}

	r.mu.Lock()
	if r.sampleRate == 0 {
		r.sampleRate = chunk.SampleRate
	}
	r.buf = append(r.buf, samples...)
	r.mu.Unlock()
}

// finalize assembles and validates the blob, then hands it off.
func (r *Recorder) finalize(ctx context.Context, reason string) {
	r.mu.Lock()
	samples := append([]int16(nil), r.buf...)
	sampleRate := r.sampleRate
	startedAt := r.startedAt
	handler := r.handler
	encoders := r.encoders
	r.buf = r.buf[:0]
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
		r.state.SetRecording(false)
	}()

	if sampleRate == 0 {
		sampleRate = 16000
	}

	blob, err := encodeFirst(encoders, samples, sampleRate)
	if err != nil {
		r.setErr(fmt.Errorf("recorder: encode: %w", err))
		r.logger.Error("capture encode failed", "error", err)
		return
	}

	if len(blob.Data) < r.cfg.MinBlobBytes {
		r.setErr(ErrTooShort)
		r.logger.Debug("capture discarded",
			"reason", reason,
			"bytes", len(blob.Data),
			"min_bytes", r.cfg.MinBlobBytes)
		return
	}

	r.setErr(nil)
	r.logger.Info("capture finished",
		"reason", reason,
		"bytes", len(blob.Data),
		"duration_ms", time.Since(startedAt).Milliseconds())

	if r.archive != nil {
		key := fmt.Sprintf("parley-audio:%d-%s", startedAt.Unix(), uuid.NewString())
		go func() {
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := r.archive.Save(saveCtx, key, blob.Data, r.cfg.ArchiveTTL); err != nil {
				r.logger.Warn("capture archive failed", "key", key, "error", err)
			}
		}()
	}

	if handler != nil {
		handler(blob)
	}
}

func (r *Recorder) setErr(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}
