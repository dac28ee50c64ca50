package vad

import (
	"context"
	"testing"
	"time"

	"github.com/mhalvorsen/go-parley/pkg/audioio"
	"github.com/mhalvorsen/go-parley/pkg/session"
)

// staticSource always has a fresh chunk at a fixed amplitude.
type staticSource struct {
	chunk audioio.Chunk
}

func newStaticSource(level float64) *staticSource {
	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = int16(level * 32767)
	}
	return &staticSource{chunk: audioio.Chunk{Samples: samples, SampleRate: 16000, Channels: 1}}
}

func (s *staticSource) Start(ctx context.Context) error { return nil }
func (s *staticSource) Stop() error                     { return nil }
func (s *staticSource) Latest() (audioio.Chunk, bool)   { return s.chunk, true }
func (s *staticSource) Stream() <-chan audioio.Chunk    { return nil }
func (s *staticSource) Name() string                    { return "static" }
func (s *staticSource) Close() error                    { return nil }

var _ audioio.Source = (*staticSource)(nil)

func activeState() *session.State {
	st := session.NewState()
	st.SetActive(true)
	return st
}

func newTestMonitor(st *session.State) (*Monitor, *int, *int) {
	m := New(DefaultConfig(), st, nil, nil)
	starts, ends := 0, 0
	m.OnSpeechStart(func() { starts++ })
	m.OnSpeechEnd(func() { ends++ })
	return m, &starts, &ends
}

func TestSpeechStartOnLoudSample(t *testing.T) {
	m, starts, _ := newTestMonitor(activeState())
	now := time.Now()

	m.Step(0.04, now)
	if m.Speaking() {
		t.Fatal("quiet sample should not start speech")
	}
	m.Step(0.2, now.Add(16*time.Millisecond))
	if !m.Speaking() {
		t.Fatal("loud sample should start speech")
	}
	if *starts != 1 {
		t.Errorf("expected 1 start event, got %d", *starts)
	}
}

func TestNoStartWhileAssistantBusy(t *testing.T) {
	st := activeState()
	st.SetPlaying(true)
	m, starts, _ := newTestMonitor(st)

	m.Step(0.5, time.Now())
	if m.Speaking() || *starts != 0 {
		t.Fatal("speech must not start while assistant audio is playing")
	}

	st.SetPlaying(false)
	st.SetStreaming(true)
	m.Step(0.5, time.Now())
	if m.Speaking() || *starts != 0 {
		t.Fatal("speech must not start while a reply is streaming")
	}
}

func TestNoStartWhileMuted(t *testing.T) {
	st := activeState()
	st.SetMicMuted(true)
	m, starts, _ := newTestMonitor(st)

	m.Step(0.5, time.Now())
	if m.Speaking() || *starts != 0 {
		t.Fatal("speech must not start while muted")
	}
}

func TestSpeechEndAfterDebounce(t *testing.T) {
	m, _, ends := newTestMonitor(activeState())
	now := time.Now()

	m.Step(0.2, now)
	if !m.Speaking() {
		t.Fatal("expected speaking")
	}

	// Silence begins but the debounce has not elapsed.
	m.Step(0.01, now.Add(100*time.Millisecond))
	m.Step(0.01, now.Add(400*time.Millisecond))
	if !m.Speaking() {
		t.Fatal("speech ended before the debounce elapsed")
	}

	m.Step(0.01, now.Add(750*time.Millisecond))
	if m.Speaking() {
		t.Fatal("expected speech end after 600ms of silence")
	}
	if *ends != 1 {
		t.Errorf("expected 1 end event, got %d", *ends)
	}
}

func TestMidThresholdEnergyResetsDebounce(t *testing.T) {
	m, _, _ := newTestMonitor(activeState())
	now := time.Now()

	m.Step(0.2, now)
	m.Step(0.01, now.Add(100*time.Millisecond))

	// Above the silence trigger but below the speech trigger: the timer
	// resets even though this would not start speech on its own.
	m.Step(0.08, now.Add(500*time.Millisecond))

	// 400ms into the restarted window, the original 600ms is long past.
	m.Step(0.01, now.Add(900*time.Millisecond))
	m.Step(0.01, now.Add(1300*time.Millisecond))
	if !m.Speaking() {
		t.Fatal("spike should have restarted the debounce window")
	}

	m.Step(0.01, now.Add(1600*time.Millisecond))
	if m.Speaking() {
		t.Fatal("expected speech end once the restarted window elapsed")
	}
}

func TestAssistantBusyCountsAsSilence(t *testing.T) {
	st := activeState()
	m, _, ends := newTestMonitor(st)
	now := time.Now()

	m.Step(0.2, now)
	st.SetStreaming(true)

	// Loud samples, but the assistant is busy so the silence timer runs.
	m.Step(0.3, now.Add(100*time.Millisecond))
	m.Step(0.3, now.Add(800*time.Millisecond))
	if m.Speaking() {
		t.Fatal("expected speech end once the assistant took over")
	}
	if *ends != 1 {
		t.Errorf("expected 1 end event, got %d", *ends)
	}
}

func TestForceEnd(t *testing.T) {
	m, _, ends := newTestMonitor(activeState())
	m.Step(0.2, time.Now())

	m.ForceEnd()
	if m.Speaking() {
		t.Fatal("expected not speaking after force end")
	}
	if *ends != 1 {
		t.Errorf("expected 1 end event, got %d", *ends)
	}

	// Idempotent when not speaking.
	m.ForceEnd()
	if *ends != 1 {
		t.Errorf("expected no extra end event, got %d", *ends)
	}
}

func TestTickPanicStopsMonitor(t *testing.T) {
	st := activeState()
	m := New(DefaultConfig(), st, nil, nil)

	// The nil source panics inside tick; the monitor must contain it.
	m.tick(time.Now())

	if !m.Stopped() {
		t.Fatal("expected monitor stopped after tick panic")
	}
	if !st.MicError() {
		t.Fatal("expected mic error flag raised")
	}
}

func TestInactiveSessionForcesEnd(t *testing.T) {
	st := activeState()
	src := newStaticSource(0.2)
	m := New(DefaultConfig(), st, src, nil)
	ends := 0
	m.OnSpeechEnd(func() { ends++ })

	m.tick(time.Now())
	if !m.Speaking() {
		t.Fatal("expected speaking")
	}

	st.SetActive(false)
	m.tick(time.Now())
	if m.Speaking() || ends != 1 {
		t.Fatal("session stop should force an immediate speech end")
	}
}
