// Package audioqueue serializes assistant speech playback: at most one
// segment plays at a time, in FIFO submission order, with no overlap.
package audioqueue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mhalvorsen/go-parley/pkg/session"
)

// Segment is one playable piece of synthesized speech.
type Segment struct {
	ID         string
	Samples    []int16
	SampleRate int
}

// Player performs the actual playback of one segment. Play blocks until
// the segment ends naturally, fails, or the context is cancelled.
type Player interface {
	Play(ctx context.Context, seg Segment) error
	SetVolume(v float64)
	SetMuted(muted bool)
}

// Queue owns the pending segment list and the single playing handle.
// Enqueue never blocks; completion or failure of the current segment
// advances to the next.
type Queue struct {
	player Player
	state  *session.State
	logger *slog.Logger

	onIdle func()

	mu      sync.Mutex
	pending []Segment
	current *Segment
	gen     uint64
	cancel  context.CancelFunc
	volume  float64
	muted   bool
}

// New creates an idle queue over the given player.
func New(player Player, state *session.State, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		player: player,
		state:  state,
		logger: logger.With("component", "audioqueue"),
		volume: 1.0,
	}
}

// OnIdle sets the callback fired when the last segment finishes and the
// queue drains. Used to resume listening after the assistant speaks.
func (q *Queue) OnIdle(fn func()) {
	q.mu.Lock()
	q.onIdle = fn
	q.mu.Unlock()
}

// Enqueue appends a segment and starts playback if nothing is playing.
// Fire-and-forget: never blocks the caller.
func (q *Queue) Enqueue(seg Segment) {
	q.mu.Lock()
	q.pending = append(q.pending, seg)
	idle := q.current == nil
	q.mu.Unlock()

	if idle {
		q.playNext()
	}
}

// Playing reports whether a segment is currently playing.
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != nil
}

// Len returns the number of pending segments, excluding the one playing.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// playNext pops the head and begins playback. The head leaves the
// pending list the instant it starts; the current handle is the only
// record of in-flight playback.
func (q *Queue) playNext() {
	q.mu.Lock()
	if q.current != nil {
		// Another caller won the start race; the completion path
		// advances the queue.
		q.mu.Unlock()
		return
	}
	if len(q.pending) == 0 {
		q.cancel = nil
		onIdle := q.onIdle
		q.mu.Unlock()

		if q.state != nil {
			q.state.SetPlaying(false)
		}
		if onIdle != nil {
			onIdle()
		}
		return
	}

	seg := q.pending[0]
	q.pending = q.pending[1:]
	q.current = &seg
	q.gen++
	gen := q.gen

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	volume, muted := q.volume, q.muted
	q.mu.Unlock()

	if q.state != nil {
		q.state.SetPlaying(true)
	}

	q.player.SetVolume(volume)
	q.player.SetMuted(muted)

	go func() {
		err := q.player.Play(ctx, seg)
		cancel()

		q.mu.Lock()
		stale := gen != q.gen
		if !stale {
			q.current = nil
		}
		q.mu.Unlock()
		if stale {
			return
		}

		if err != nil && ctx.Err() == nil {
			// A bad segment never stalls the queue.
			q.logger.Warn("segment playback failed", "segment", seg.ID, "error", err)
		}
		q.playNext()
	}()
}

// Stop halts the current segment and clears every pending one. Used for
// hard interruption: voice disabled, new session, or barge-in.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.pending = nil
	q.current = nil
	q.gen++
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if q.state != nil {
		q.state.SetPlaying(false)
	}
}

// SetVolume applies to the current segment and to segments as they
// become current.
func (q *Queue) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	q.mu.Lock()
	q.volume = v
	playing := q.current != nil
	q.mu.Unlock()

	if playing {
		q.player.SetVolume(v)
	}
}

// SetMuted applies to the current segment and to segments as they
// become current.
func (q *Queue) SetMuted(muted bool) {
	q.mu.Lock()
	q.muted = muted
	playing := q.current != nil
	q.mu.Unlock()

	if playing {
		q.player.SetMuted(muted)
	}
}
