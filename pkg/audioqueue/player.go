package audioqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/mhalvorsen/go-parley/pkg/audioio"
)

// frameSamples is the write granularity, about 100ms at 16kHz. Small
// enough that volume and mute changes land mid-segment.
const frameSamples = 1600

// SinkPlayer plays segments through an audioio.Sink, applying gain in
// software per frame.
type SinkPlayer struct {
	sink audioio.Sink

	mu     sync.Mutex
	volume float64
	muted  bool
}

// NewSinkPlayer creates a player over the given sink at full volume.
func NewSinkPlayer(sink audioio.Sink) *SinkPlayer {
	return &SinkPlayer{sink: sink, volume: 1.0}
}

// SetVolume sets the playback gain in [0,1].
func (p *SinkPlayer) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
}

// SetMuted silences output without stopping playback position.
func (p *SinkPlayer) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
}

// Play writes the segment frame by frame and blocks until the sink has
// drained it. Cancellation clears any queued device audio.
func (p *SinkPlayer) Play(ctx context.Context, seg Segment) error {
	for off := 0; off < len(seg.Samples); off += frameSamples {
		if err := ctx.Err(); err != nil {
			p.sink.Clear()
			return err
		}

		end := off + frameSamples
		if end > len(seg.Samples) {
			end = len(seg.Samples)
		}

		chunk := audioio.Chunk{
			Samples:    p.applyGain(seg.Samples[off:end]),
			SampleRate: seg.SampleRate,
			Channels:   1,
		}
		if err := p.sink.Write(ctx, chunk); err != nil {
			return fmt.Errorf("audioqueue: write: %w", err)
		}
	}

	if err := p.sink.Flush(ctx); err != nil {
		if ctx.Err() != nil {
			p.sink.Clear()
			return ctx.Err()
		}
		return fmt.Errorf("audioqueue: flush: %w", err)
	}
	return nil
}

func (p *SinkPlayer) applyGain(samples []int16) []int16 {
	p.mu.Lock()
	volume, muted := p.volume, p.muted
	p.mu.Unlock()

	if muted || volume == 0 {
		return make([]int16, len(samples))
	}
	if volume >= 1.0 {
		return append([]int16(nil), samples...)
	}

	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = int16(float64(s) * volume)
	}
	return out
}

var _ Player = (*SinkPlayer)(nil)
