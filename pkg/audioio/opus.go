package audioio

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/hraban/opus.v2"
)

// FrameSource delivers opus-encoded audio frames, e.g. from a local
// media pipeline that hands us compressed chunks.
type FrameSource interface {
	// Frames returns a channel of opus packets. Closed on stop.
	Frames() <-chan []byte

	Start(ctx context.Context) error
	Stop() error
	Close() error
	Name() string
}

// maxOpusFrameSamples covers a 120ms frame at 48kHz.
const maxOpusFrameSamples = 5760

// OpusSource adapts a FrameSource of opus packets into a PCM Source by
// decoding each frame as it arrives.
type OpusSource struct {
	inner      FrameSource
	sampleRate int
	channels   int
	logger     *slog.Logger

	decoder  *opus.Decoder
	streamCh chan Chunk
	latestCh chan Chunk
}

// NewOpusSource creates a decoding source over a frame source.
// Sample rate must be one opus supports (8/12/16/24/48 kHz).
func NewOpusSource(inner FrameSource, sampleRate, channels int, logger *slog.Logger) (*OpusSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus decoder: %w", err)
	}

	return &OpusSource{
		inner:      inner,
		sampleRate: sampleRate,
		channels:   channels,
		logger:     logger.With("component", "audioio.opus"),
		decoder:    dec,
		streamCh:   make(chan Chunk, 16),
		latestCh:   make(chan Chunk, 1),
	}, nil
}

// Start begins decoding frames from the inner source.
func (o *OpusSource) Start(ctx context.Context) error {
	if err := o.inner.Start(ctx); err != nil {
		return err
	}

	go o.decodeLoop(ctx)
	return nil
}

func (o *OpusSource) decodeLoop(ctx context.Context) {
	defer close(o.streamCh)

	pcm := make([]int16, maxOpusFrameSamples*o.channels)
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-o.inner.Frames():
			if !ok {
				return
			}
			n, err := o.decoder.Decode(frame, pcm)
			if err != nil {
				o.logger.Debug("dropping undecodable frame", "error", err)
				continue
			}
			chunk := Chunk{
				Samples:    append([]int16(nil), pcm[:n*o.channels]...),
				SampleRate: o.sampleRate,
				Channels:   o.channels,
			}
			select {
			case o.streamCh <- chunk:
			default:
				// Consumer is behind; drop this frame.
			}
			// Keep the latest slot fresh for non-blocking reads.
			select {
			case <-o.latestCh:
			default:
			}
			o.latestCh <- chunk
		}
	}
}

// Latest returns the most recently decoded chunk without blocking.
func (o *OpusSource) Latest() (Chunk, bool) {
	select {
	case chunk := <-o.latestCh:
		return chunk, true
	default:
		return Chunk{}, false
	}
}

// Stream returns the decoded PCM chunk channel.
func (o *OpusSource) Stream() <-chan Chunk {
	return o.streamCh
}

// Stop halts the inner source.
func (o *OpusSource) Stop() error {
	return o.inner.Stop()
}

// Name returns the backend name.
func (o *OpusSource) Name() string {
	return "opus:" + o.inner.Name()
}

// Close releases the inner source.
func (o *OpusSource) Close() error {
	return o.inner.Close()
}

// Ensure OpusSource implements Source.
var _ Source = (*OpusSource)(nil)
