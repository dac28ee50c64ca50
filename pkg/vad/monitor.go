// Package vad converts a continuous microphone energy signal into
// discrete speech-start and speech-end events.
//
// Detection uses two thresholds: a higher speech trigger and a lower
// silence trigger, so marginal noise near a single threshold cannot
// oscillate the state. Speech ends only after a continuous silence
// window (the debounce) elapses. Speech-start is gated on the session
// flag snapshot so the assistant's own playback or token stream is
// never captured as user input.
package vad

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mhalvorsen/go-parley/pkg/audioio"
	"github.com/mhalvorsen/go-parley/pkg/session"
)

// Config holds detection tuning.
type Config struct {
	// SpeechThreshold is the normalized RMS level that starts speech.
	SpeechThreshold float64

	// SilenceThreshold is the normalized RMS level below which the
	// silence timer runs. Must be below SpeechThreshold.
	SilenceThreshold float64

	// SilenceDebounce is the continuous-silence window that ends speech.
	SilenceDebounce time.Duration

	// TickInterval is the live polling cadence.
	TickInterval time.Duration
}

// DefaultConfig returns detection defaults tuned for close-mic speech.
func DefaultConfig() Config {
	return Config{
		SpeechThreshold:  0.12,
		SilenceThreshold: 0.05,
		SilenceDebounce:  600 * time.Millisecond,
		TickInterval:     16 * time.Millisecond,
	}
}

// Monitor watches an audio source and emits speech edge events.
type Monitor struct {
	cfg    Config
	state  *session.State
	source audioio.Source
	logger *slog.Logger

	mu               sync.Mutex
	speaking         bool
	silenceStartedAt time.Time
	lastSampleAt     time.Time
	stopped          bool

	onSpeechStart func()
	onSpeechEnd   func()
}

// New creates a monitor over the given source, gated by the session
// state snapshot.
func New(cfg Config, state *session.State, source audioio.Source, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SpeechThreshold == 0 {
		cfg = DefaultConfig()
	}
	return &Monitor{
		cfg:    cfg,
		state:  state,
		source: source,
		logger: logger.With("component", "vad"),
	}
}

// OnSpeechStart sets the callback fired when the user starts speaking.
func (m *Monitor) OnSpeechStart(fn func()) {
	m.mu.Lock()
	m.onSpeechStart = fn
	m.mu.Unlock()
}

// OnSpeechEnd sets the callback fired when debounced silence ends speech.
func (m *Monitor) OnSpeechEnd(fn func()) {
	m.mu.Lock()
	m.onSpeechEnd = fn
	m.mu.Unlock()
}

// Speaking reports whether the monitor currently considers the user to
// be speaking.
func (m *Monitor) Speaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaking
}

// Stopped reports whether the monitor has shut itself down after a
// tick failure.
func (m *Monitor) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Run polls the source until the context is cancelled. Blocks.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.ForceEnd()
			return
		case <-ticker.C:
			if m.Stopped() {
				return
			}
			m.tick(time.Now())
		}
	}
}

// tick reads the latest sample and advances the state machine. A panic
// anywhere in the tick must not escape: an unhandled error here would
// silently kill all future speech detection, so the monitor stops
// itself and raises the mic-error flag instead.
func (m *Monitor) tick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("vad tick failed, stopping monitor", "panic", r)
			m.mu.Lock()
			m.stopped = true
			m.speaking = false
			m.silenceStartedAt = time.Time{}
			m.mu.Unlock()
			m.state.SetMicError(true)
		}
	}()

	snap := m.state.Snapshot()
	if !snap.Active {
		m.ForceEnd()
		return
	}

	chunk, ok := m.source.Latest()
	if !ok {
		return
	}

	m.Step(chunk.RMS(), now)
}

// Step advances the detector with one energy sample. Exposed separately
// from the tick loop so tests can drive it deterministically.
func (m *Monitor) Step(energy float64, now time.Time) {
	snap := m.state.Snapshot()

	m.mu.Lock()
	m.lastSampleAt = now

	if !m.speaking {
		if energy > m.cfg.SpeechThreshold && snap.Listening() {
			m.speaking = true
			m.silenceStartedAt = time.Time{}
			fn := m.onSpeechStart
			m.mu.Unlock()
			m.logger.Debug("speech start", "energy", energy)
			if fn != nil {
				fn()
			}
			return
		}
		m.mu.Unlock()
		return
	}

	// Speaking. The assistant becoming busy counts as silence: the turn
	// has been handed off and the capture should wind down.
	if snap.AssistantBusy() || energy < m.cfg.SilenceThreshold {
		if m.silenceStartedAt.IsZero() {
			m.silenceStartedAt = now
			m.mu.Unlock()
			return
		}
		if now.Sub(m.silenceStartedAt) >= m.cfg.SilenceDebounce {
			m.speaking = false
			m.silenceStartedAt = time.Time{}
			fn := m.onSpeechEnd
			m.mu.Unlock()
			m.logger.Debug("speech end", "energy", energy)
			if fn != nil {
				fn()
			}
			return
		}
		m.mu.Unlock()
		return
	}

	// Any energy above the silence trigger resets the timer, even if it
	// never reaches the speech trigger.
	m.silenceStartedAt = time.Time{}
	m.mu.Unlock()
}

// ForceEnd emits an immediate speech-end without debounce. Used on
// session teardown so a capture in flight is closed out.
func (m *Monitor) ForceEnd() {
	m.mu.Lock()
	if !m.speaking {
		m.mu.Unlock()
		return
	}
	m.speaking = false
	m.silenceStartedAt = time.Time{}
	fn := m.onSpeechEnd
	m.mu.Unlock()

	m.logger.Debug("speech end forced")
	if fn != nil {
		fn()
	}
}
