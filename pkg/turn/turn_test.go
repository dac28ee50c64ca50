package turn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mhalvorsen/go-parley/pkg/audioqueue"
	"github.com/mhalvorsen/go-parley/pkg/llm"
	"github.com/mhalvorsen/go-parley/pkg/recorder"
	"github.com/mhalvorsen/go-parley/pkg/search"
	"github.com/mhalvorsen/go-parley/pkg/session"
	"github.com/mhalvorsen/go-parley/pkg/stt"
	"github.com/mhalvorsen/go-parley/pkg/tts"
	"github.com/mhalvorsen/go-parley/pkg/weather"
	"github.com/mhalvorsen/go-parley/pkg/workflow"
)

type stubPlayer struct {
	mu    sync.Mutex
	plays int
}

func (p *stubPlayer) Play(ctx context.Context, seg audioqueue.Segment) error {
	p.mu.Lock()
	p.plays++
	p.mu.Unlock()
	return nil
}

func (p *stubPlayer) SetVolume(v float64) {}
func (p *stubPlayer) SetMuted(m bool)     {}

func (p *stubPlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}

// stageLog collects every published stage set.
type stageLog struct {
	mu   sync.Mutex
	sets [][]workflow.Stage
}

func (l *stageLog) record(stages []workflow.Stage) {
	l.mu.Lock()
	l.sets = append(l.sets, append([]workflow.Stage(nil), stages...))
	l.mu.Unlock()
}

func (l *stageLog) contains(id workflow.StageID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, set := range l.sets {
		for _, s := range set {
			if s.ID == id {
				return true
			}
		}
	}
	return false
}

func (l *stageLog) lastSet() []workflow.Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sets) == 0 {
		return nil
	}
	return l.sets[len(l.sets)-1]
}

func (l *stageLog) lastStatus(id workflow.StageID) workflow.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.sets) - 1; i >= 0; i-- {
		for _, s := range l.sets[i] {
			if s.ID == id {
				return s.Status
			}
		}
	}
	return ""
}

// gatedTranscriber blocks its first call until released, so tests can
// observe state while a capture is mid-transcription.
type gatedTranscriber struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
	texts   []string
}

func newGatedTranscriber(texts ...string) *gatedTranscriber {
	return &gatedTranscriber{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		texts:   texts,
	}
}

func (g *gatedTranscriber) Transcribe(ctx context.Context, audio []byte, mime string) (*stt.Result, error) {
	g.mu.Lock()
	n := g.calls
	g.calls++
	g.mu.Unlock()

	if n == 0 {
		g.entered <- struct{}{}
		<-g.release
	}
	if n >= len(g.texts) {
		n = len(g.texts) - 1
	}
	return &stt.Result{Text: g.texts[n], Language: "en"}, nil
}

func (g *gatedTranscriber) Health(ctx context.Context) error { return nil }
func (g *gatedTranscriber) Name() string                     { return "gated" }
func (g *gatedTranscriber) Close() error                     { return nil }

type fixture struct {
	o      *Orchestrator
	state  *session.State
	store  *session.JSONStore
	model  *llm.Mock
	trans  *stt.Mock
	speech *tts.Mock
	player *stubPlayer
	sess   *session.Session
	stages *stageLog
}

func newFixture(t *testing.T, mods ...func(*Deps)) *fixture {
	t.Helper()

	state := session.NewState()
	state.SetActive(true)

	store, err := session.NewJSONStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	model := &llm.Mock{
		ChatContent:  []string{"test reply"},
		StreamTokens: []string{"Hello", " there."},
	}
	trans := stt.NewMock("what is the answer")
	speech := tts.NewMock()
	player := &stubPlayer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	queue := audioqueue.New(player, state, logger)

	deps := Deps{
		State:       state,
		Store:       store,
		Model:       model,
		Transcriber: trans,
		Speech:      speech,
		Queue:       queue,
		Logger:      logger,
	}
	for _, mod := range mods {
		mod(&deps)
	}

	stages := &stageLog{}
	cfg := DefaultConfig()
	cfg.ChatModel = "test-model"
	o := New(cfg, deps, Callbacks{OnStages: stages.record})

	sess := session.NewSession()
	if err := store.Create(context.Background(), sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	o.UseSession(sess)
	o.SetReady(true)

	return &fixture{
		o: o, state: state, store: store, model: model,
		trans: trans, speech: speech, player: player,
		sess: sess, stages: stages,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (f *fixture) persistedByRole(t *testing.T, role session.Role) []session.Message {
	t.Helper()
	sess, err := f.store.Get(context.Background(), f.sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	var out []session.Message
	for _, m := range sess.Messages {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

func TestVoiceTurnEndToEnd(t *testing.T) {
	f := newFixture(t)

	blob := recorder.Blob{Data: make([]byte, 4000), MIME: "audio/wav"}
	if err := f.o.HandleCapture(context.Background(), blob); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	if got := f.trans.CallCount(); got != 1 {
		t.Errorf("expected 1 transcription call, got %d", got)
	}
	if got := f.model.StreamCalls(); got != 1 {
		t.Errorf("expected 1 model stream call, got %d", got)
	}
	if got := f.speech.CallCount(); got != 1 {
		t.Errorf("expected 1 synthesis call, got %d", got)
	}

	waitFor(t, "assistant message persisted", func() bool {
		return len(f.persistedByRole(t, session.RoleAssistant)) == 1
	})
	msg := f.persistedByRole(t, session.RoleAssistant)[0]
	if msg.Content != "Hello there." {
		t.Errorf("unexpected content %q", msg.Content)
	}
	if len(msg.WorkflowStages) == 0 {
		t.Fatal("expected a stage snapshot")
	}
	for _, s := range msg.WorkflowStages {
		if s.Status == workflow.StatusPending {
			t.Errorf("pending stage %s persisted", s.ID)
		}
	}
	if msg.CompletedAt.IsZero() {
		t.Error("expected completion timestamp")
	}

	waitFor(t, "playback to drain", func() bool {
		snap := f.state.Snapshot()
		return f.player.count() == 1 && !snap.Playing && !snap.PendingResume
	})
	if !f.state.Snapshot().Listening() {
		t.Error("listening must resume after the turn")
	}
}

func TestVoiceDisabledSkipsSynthesis(t *testing.T) {
	f := newFixture(t)
	f.state.SetVoiceEnabled(false)

	if err := f.o.SubmitText(context.Background(), "hello"); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	if f.stages.contains(workflow.StageTTS) {
		t.Error("stage set must never contain tts with voice disabled")
	}
	if f.speech.CallCount() != 0 {
		t.Error("synthesis must not run with voice disabled")
	}
	if f.player.count() != 0 {
		t.Error("audio queue must never be touched with voice disabled")
	}
}

func TestStreamErrorAbortsTurn(t *testing.T) {
	f := newFixture(t)
	f.model.StreamErr = errors.New("connection reset")
	f.model.StreamErrAfter = 1

	err := f.o.SubmitText(context.Background(), "tell me something")
	if err == nil {
		t.Fatal("expected stream error to surface")
	}

	if got := f.stages.lastStatus(workflow.StageModel); got != workflow.StatusError {
		t.Errorf("model stage must end as error, got %q", got)
	}
	if f.speech.CallCount() != 0 {
		t.Error("no synthesis after a generation failure")
	}

	waitFor(t, "user message persisted", func() bool {
		return len(f.persistedByRole(t, session.RoleUser)) == 1
	})
	if n := len(f.persistedByRole(t, session.RoleAssistant)); n != 0 {
		t.Errorf("expected no persisted assistant message, got %d", n)
	}
	if !f.state.Snapshot().Listening() {
		t.Error("listening must resume after a failed turn")
	}
}

func TestSearchFailureDegradesAndDisables(t *testing.T) {
	searcher := &search.Mock{Err: errors.New("backend down")}
	f := newFixture(t, func(d *Deps) { d.Search = searcher })

	if err := f.o.SubmitText(context.Background(), "who won the election"); err != nil {
		t.Fatalf("turn must survive a search failure: %v", err)
	}

	if f.state.SearchEnabled() {
		t.Error("web search must auto-disable after a failure")
	}

	// The generation request carries the failure-context substitution.
	var sawNote bool
	for _, req := range f.model.Requests {
		for _, m := range req.Messages {
			if m.Role == llm.RoleSystem && strings.Contains(m.Content, "failed") {
				sawNote = true
			}
		}
	}
	if !sawNote {
		t.Error("expected a search-failure context message in the model request")
	}

	waitFor(t, "assistant message persisted", func() bool {
		return len(f.persistedByRole(t, session.RoleAssistant)) == 1
	})
	if msg := f.persistedByRole(t, session.RoleAssistant)[0]; msg.Content == "" {
		t.Error("textual reply must still arrive")
	}

	// The next turn must not hit the searcher again.
	calls := searcher.CallCount()
	if err := f.o.SubmitText(context.Background(), "and the runner up"); err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if searcher.CallCount() != calls {
		t.Error("search must stay disabled for the session")
	}
}

func TestWeatherIntentSkipsSearch(t *testing.T) {
	searcher := &search.Mock{Results: []search.Result{{Title: "T", URL: "u"}}}
	forecaster := &weather.Mock{Report: &weather.Report{TempC: 4, WindKmh: 10, Description: "rain"}}
	f := newFixture(t, func(d *Deps) {
		d.Search = searcher
		d.Weather = forecaster
	})

	if err := f.o.SubmitText(context.Background(), "what's the weather in Paris"); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	if forecaster.Calls != 1 {
		t.Errorf("expected 1 weather call, got %d", forecaster.Calls)
	}
	if searcher.CallCount() != 0 {
		t.Error("weather intent must not trigger web search")
	}

	var sawWeather bool
	for _, req := range f.model.Requests {
		for _, m := range req.Messages {
			if strings.Contains(m.Content, "Current weather in Paris") {
				sawWeather = true
			}
		}
	}
	if !sawWeather {
		t.Error("expected weather context in the model request")
	}
}

func TestTypedInputRejectedWhenNotReady(t *testing.T) {
	f := newFixture(t)
	f.o.SetReady(false)

	if err := f.o.SubmitText(context.Background(), "hello"); err != ErrNotReady {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestTypedInputRejectedWhileBusy(t *testing.T) {
	f := newFixture(t)
	f.state.SetStreaming(true)

	if err := f.o.SubmitText(context.Background(), "hello"); err != ErrBusy {
		t.Errorf("expected ErrBusy, got %v", err)
	}
}

func TestEmptyInputRejected(t *testing.T) {
	f := newFixture(t)
	if err := f.o.SubmitText(context.Background(), "   "); err != ErrEmptyInput {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

func TestListeningStaysOffDuringTranscription(t *testing.T) {
	gate := newGatedTranscriber("hello there")
	f := newFixture(t, func(d *Deps) { d.Transcriber = gate })

	blob := recorder.Blob{Data: make([]byte, 4000), MIME: "audio/wav"}
	done := make(chan error, 1)
	go func() { done <- f.o.HandleCapture(context.Background(), blob) }()
	<-gate.entered

	if f.state.Snapshot().Listening() {
		t.Error("listening must stay off between capture finalize and turn completion")
	}
	if err := f.o.SubmitText(context.Background(), "typed mid-transcription"); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy for typed input mid-transcription, got %v", err)
	}

	close(gate.release)
	if err := <-done; err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	waitFor(t, "listening to resume", func() bool {
		return f.state.Snapshot().Listening()
	})
}

func TestCaptureWhileBusyIsQueuedNotDropped(t *testing.T) {
	gate := newGatedTranscriber("first words", "second words")
	f := newFixture(t, func(d *Deps) { d.Transcriber = gate })

	blob := recorder.Blob{Data: make([]byte, 4000), MIME: "audio/wav"}
	done := make(chan error, 1)
	go func() { done <- f.o.HandleCapture(context.Background(), blob) }()
	<-gate.entered

	// A second utterance lands while the first turn holds the gate.
	if err := f.o.HandleCapture(context.Background(), blob); err != nil {
		t.Fatalf("second capture: %v", err)
	}
	if got := len(f.persistedByRole(t, session.RoleUser)); got != 0 {
		t.Fatalf("no turn may start while the first holds the gate, got %d user messages", got)
	}

	close(gate.release)
	if err := <-done; err != nil {
		t.Fatalf("first turn: %v", err)
	}

	waitFor(t, "both turns to complete", func() bool {
		return len(f.persistedByRole(t, session.RoleAssistant)) == 2
	})
	users := f.persistedByRole(t, session.RoleUser)
	if len(users) != 2 || users[0].Content != "first words" || users[1].Content != "second words" {
		t.Errorf("expected both utterances to run in order, got %v", users)
	}
}

func TestEmptyTranscriptionClearsStages(t *testing.T) {
	f := newFixture(t)
	f.trans.Result.Text = "   "

	blob := recorder.Blob{Data: make([]byte, 4000), MIME: "audio/wav"}
	if err := f.o.HandleCapture(context.Background(), blob); err != nil {
		t.Fatalf("capture: %v", err)
	}

	if got := f.stages.lastSet(); len(got) != 0 {
		t.Errorf("discarded utterance must clear the stage set, got %v", got)
	}
	if f.model.StreamCalls() != 0 {
		t.Error("no turn may run for an empty transcription")
	}
	if !f.state.Snapshot().Listening() {
		t.Error("listening must re-arm after a discarded utterance")
	}
}

func TestQueuedUtteranceLastWriteWins(t *testing.T) {
	f := newFixture(t)
	f.o.SetReady(false)

	blob := recorder.Blob{Data: make([]byte, 4000), MIME: "audio/wav"}
	f.trans.Result.Text = "first words"
	if err := f.o.HandleCapture(context.Background(), blob); err != nil {
		t.Fatalf("first capture: %v", err)
	}
	f.trans.Result.Text = "second words"
	if err := f.o.HandleCapture(context.Background(), blob); err != nil {
		t.Fatalf("second capture: %v", err)
	}

	f.o.SetReady(true)

	waitFor(t, "queued turn to complete", func() bool {
		return len(f.persistedByRole(t, session.RoleAssistant)) == 1
	})
	users := f.persistedByRole(t, session.RoleUser)
	if len(users) != 1 || users[0].Content != "second words" {
		t.Errorf("expected only the replacement utterance, got %v", users)
	}
}

func TestAutoTitleEveryThirdTurn(t *testing.T) {
	f := newFixture(t)
	f.model.ChatContent = []string{"Rainy Day Plans"}

	for i := 0; i < 3; i++ {
		if err := f.o.SubmitText(context.Background(), "turn input"); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	waitFor(t, "session to be titled", func() bool {
		sess, err := f.store.Get(context.Background(), f.sess.ID)
		return err == nil && sess.Title == "Rainy Day Plans"
	})
}

func TestHeuristicTitle(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"what is the meaning of life anyway?", "What is the meaning of life"},
		{"hi", "Hi"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := heuristicTitle(tt.text); got != tt.want {
			t.Errorf("heuristicTitle(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
