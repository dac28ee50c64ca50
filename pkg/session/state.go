// Package session holds conversational session state: the shared flag
// set read by the voice activity tick loop, the message log types, and
// the persistence interface.
package session

import "sync/atomic"

// State is the mutable flag set shared between the orchestrator and the
// voice activity monitor. The orchestrator writes; the monitor's tick
// loop reads a Snapshot. Atomics keep reads allocation-free and
// consistent without a lock in the tick path.
type State struct {
	active        atomic.Bool
	micMuted      atomic.Bool
	streaming     atomic.Bool // assistant generating a reply
	playing       atomic.Bool // assistant audio playing
	recording     atomic.Bool
	pendingResume atomic.Bool
	voiceEnabled  atomic.Bool
	searchEnabled atomic.Bool
	micError      atomic.Bool
}

// Snapshot is an immutable copy of the flags for one tick.
type Snapshot struct {
	Active        bool
	MicMuted      bool
	Streaming     bool
	Playing       bool
	Recording     bool
	PendingResume bool
	VoiceEnabled  bool
	SearchEnabled bool
	MicError      bool
}

// NewState returns a State with voice and search enabled.
func NewState() *State {
	s := &State{}
	s.voiceEnabled.Store(true)
	s.searchEnabled.Store(true)
	return s
}

// Snapshot returns a consistent view of the flags.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Active:        s.active.Load(),
		MicMuted:      s.micMuted.Load(),
		Streaming:     s.streaming.Load(),
		Playing:       s.playing.Load(),
		Recording:     s.recording.Load(),
		PendingResume: s.pendingResume.Load(),
		VoiceEnabled:  s.voiceEnabled.Load(),
		SearchEnabled: s.searchEnabled.Load(),
		MicError:      s.micError.Load(),
	}
}

// AssistantBusy reports whether the assistant is generating or playing.
func (sn Snapshot) AssistantBusy() bool {
	return sn.Streaming || sn.Playing
}

// Listening reports whether speech-start detection is armed: session
// active, mic unmuted, no resume pending, assistant idle, and no
// capture already in progress.
func (sn Snapshot) Listening() bool {
	return sn.Active &&
		!sn.MicMuted &&
		!sn.PendingResume &&
		!sn.AssistantBusy() &&
		!sn.Recording
}

// Setters, one per flag. Writers are the orchestrator and the app.

func (s *State) SetActive(v bool)        { s.active.Store(v) }
func (s *State) SetMicMuted(v bool)      { s.micMuted.Store(v) }
func (s *State) SetStreaming(v bool)     { s.streaming.Store(v) }
func (s *State) SetPlaying(v bool)       { s.playing.Store(v) }
func (s *State) SetRecording(v bool)     { s.recording.Store(v) }
func (s *State) SetPendingResume(v bool) { s.pendingResume.Store(v) }
func (s *State) SetVoiceEnabled(v bool)  { s.voiceEnabled.Store(v) }
func (s *State) SetSearchEnabled(v bool) { s.searchEnabled.Store(v) }
func (s *State) SetMicError(v bool)      { s.micError.Store(v) }

// TryBeginStreaming marks the assistant streaming if it was idle,
// reporting whether this caller made the transition. The turn gate:
// exactly one caller wins when submissions race.
func (s *State) TryBeginStreaming() bool {
	return s.streaming.CompareAndSwap(false, true)
}

func (s *State) Active() bool        { return s.active.Load() }
func (s *State) MicMuted() bool      { return s.micMuted.Load() }
func (s *State) Streaming() bool     { return s.streaming.Load() }
func (s *State) VoiceEnabled() bool  { return s.voiceEnabled.Load() }
func (s *State) SearchEnabled() bool { return s.searchEnabled.Load() }
func (s *State) MicError() bool      { return s.micError.Load() }
