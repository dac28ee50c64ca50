package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mhalvorsen/go-parley/pkg/audioio"
	"github.com/mhalvorsen/go-parley/pkg/session"
)

// chanSource feeds chunks pushed by the test.
type chanSource struct {
	ch chan audioio.Chunk
}

func newChanSource() *chanSource {
	return &chanSource{ch: make(chan audioio.Chunk, 64)}
}

func (s *chanSource) push(n int) {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}
	s.ch <- audioio.Chunk{Samples: samples, SampleRate: 16000, Channels: 1}
}

func (s *chanSource) Start(ctx context.Context) error { return nil }
func (s *chanSource) Stop() error                     { return nil }
func (s *chanSource) Latest() (audioio.Chunk, bool)   { return audioio.Chunk{}, false }
func (s *chanSource) Stream() <-chan audioio.Chunk    { return s.ch }
func (s *chanSource) Name() string                    { return "chan" }
func (s *chanSource) Close() error                    { return nil }

var _ audioio.Source = (*chanSource)(nil)

func listeningState() *session.State {
	st := session.NewState()
	st.SetActive(true)
	return st
}

func waitChunkDrained(t *testing.T, src *chanSource) {
	t.Helper()
	deadline := time.After(time.Second)
	for len(src.ch) > 0 {
		select {
		case <-deadline:
			t.Fatal("collector never drained the stream")
		case <-time.After(time.Millisecond):
		}
	}
	// One more tick so the in-flight chunk is appended.
	time.Sleep(5 * time.Millisecond)
}

func TestStartGuards(t *testing.T) {
	src := newChanSource()

	t.Run("no source", func(t *testing.T) {
		r := New(DefaultConfig(), listeningState(), nil, nil)
		if err := r.Start(context.Background()); !errors.Is(err, ErrNoSource) {
			t.Errorf("expected ErrNoSource, got %v", err)
		}
	})

	t.Run("muted", func(t *testing.T) {
		st := listeningState()
		st.SetMicMuted(true)
		r := New(DefaultConfig(), st, src, nil)
		if err := r.Start(context.Background()); !errors.Is(err, ErrMuted) {
			t.Errorf("expected ErrMuted, got %v", err)
		}
	})

	t.Run("already recording", func(t *testing.T) {
		st := listeningState()
		st.SetRecording(true)
		r := New(DefaultConfig(), st, src, nil)
		if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
			t.Errorf("expected ErrAlreadyRecording, got %v", err)
		}
	})

	t.Run("assistant busy", func(t *testing.T) {
		st := listeningState()
		st.SetStreaming(true)
		r := New(DefaultConfig(), st, src, nil)
		if err := r.Start(context.Background()); !errors.Is(err, ErrNotListening) {
			t.Errorf("expected ErrNotListening, got %v", err)
		}
	})
}

func TestCaptureDeliversBlob(t *testing.T) {
	src := newChanSource()
	st := listeningState()
	r := New(DefaultConfig(), st, src, nil)

	var mu sync.Mutex
	var got *Blob
	r.OnUtterance(func(b Blob) {
		mu.Lock()
		got = &b
		mu.Unlock()
	})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !st.Snapshot().Recording {
		t.Fatal("recording flag not raised")
	}

	src.push(2000)
	src.push(2000)
	waitChunkDrained(t, src)

	if err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got == nil {
		t.Fatal("handler never received a blob")
	}
	if got.MIME != "audio/wav" {
		t.Errorf("expected audio/wav, got %s", got.MIME)
	}
	if len(got.Data) != 44+4000*2 {
		t.Errorf("unexpected blob size %d", len(got.Data))
	}
	if st.Snapshot().Recording {
		t.Error("recording flag not cleared")
	}
}

func TestShortCaptureDiscarded(t *testing.T) {
	src := newChanSource()
	st := listeningState()
	r := New(DefaultConfig(), st, src, nil)

	called := false
	r.OnUtterance(func(Blob) { called = true })

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.push(10) // 44 + 20 bytes, well under the minimum
	waitChunkDrained(t, src)

	if err := r.Stop(); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
	if called {
		t.Error("short blob must not reach the handler")
	}
	if st.Snapshot().Recording {
		t.Error("listening not re-armed after discard")
	}
}

func TestHardCutoffForcesEnd(t *testing.T) {
	src := newChanSource()
	st := listeningState()
	cfg := DefaultConfig()
	cfg.HardCutoff = 30 * time.Millisecond
	r := New(cfg, st, src, nil)

	done := make(chan Blob, 1)
	r.OnUtterance(func(b Blob) { done <- b })

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.push(2000)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cutoff never fired")
	}
	if r.Recording() {
		t.Error("recorder still active after cutoff")
	}
}

type memArchive struct {
	mu   sync.Mutex
	keys []string
}

func (a *memArchive) Save(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	a.mu.Lock()
	a.keys = append(a.keys, key)
	a.mu.Unlock()
	return nil
}

func TestArchiveReceivesCapture(t *testing.T) {
	src := newChanSource()
	arch := &memArchive{}
	r := New(DefaultConfig(), listeningState(), src, nil, WithArchive(arch))
	r.OnUtterance(func(Blob) {})

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.push(2000)
	waitChunkDrained(t, src)
	if err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		arch.mu.Lock()
		n := len(arch.keys)
		arch.mu.Unlock()
		if n == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("archive never received the capture")
		case <-time.After(time.Millisecond):
		}
	}
}
