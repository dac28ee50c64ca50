// Package turn drives one conversational turn end to end: context
// gathering, thinking refinement, streaming generation, polish, speech
// synthesis, playback enqueue, and persistence. At most one turn runs
// at a time; voice input arriving while busy or before the model is
// ready is queued last-write-wins.
package turn

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mhalvorsen/go-parley/pkg/audioqueue"
	"github.com/mhalvorsen/go-parley/pkg/browse"
	"github.com/mhalvorsen/go-parley/pkg/llm"
	"github.com/mhalvorsen/go-parley/pkg/recorder"
	"github.com/mhalvorsen/go-parley/pkg/search"
	"github.com/mhalvorsen/go-parley/pkg/session"
	"github.com/mhalvorsen/go-parley/pkg/stt"
	"github.com/mhalvorsen/go-parley/pkg/tts"
	"github.com/mhalvorsen/go-parley/pkg/weather"
	"github.com/mhalvorsen/go-parley/pkg/workflow"
)

var (
	// ErrNotReady rejects typed input before the model is ready. A human
	// is present to retry; voice input is queued instead.
	ErrNotReady = errors.New("turn: model not ready")

	// ErrBusy rejects typed input while a turn is in flight.
	ErrBusy = errors.New("turn: a turn is already in progress")

	// ErrEmptyInput rejects blank submissions with no side effects.
	ErrEmptyInput = errors.New("turn: empty input")

	// ErrNoSession is returned when no session is active.
	ErrNoSession = errors.New("turn: no active session")
)

// Config holds orchestrator tunables.
type Config struct {
	// ChatModel is the generation model ID.
	ChatModel string

	// ThinkingModel runs the pre/post refinement calls. Empty disables
	// the thinking pipeline.
	ThinkingModel string

	// HistoryLimit caps how many prior messages go to the model.
	HistoryLimit int

	// SearchResults is how many raw results to request before curation.
	SearchResults int

	// TitleEvery is the auto-title cadence in completed turns.
	TitleEvery int

	// DefaultLocation is used for weather queries that name no place.
	DefaultLocation string
}

// DefaultConfig returns the standard tunables.
func DefaultConfig() Config {
	return Config{
		HistoryLimit:    12,
		SearchResults:   8,
		TitleEvery:      3,
		DefaultLocation: "Oslo",
	}
}

// Deps are the collaborators the orchestrator coordinates. Store,
// Search, Weather, Browse, Speech, and Queue are optional; a missing
// collaborator disables the corresponding phase.
type Deps struct {
	State       *session.State
	Store       session.Store
	Model       llm.Provider
	Transcriber stt.Provider
	Speech      tts.Provider
	Search      search.Searcher
	Weather     weather.Provider
	Browse      browse.Fetcher
	Queue       *audioqueue.Queue
	Logger      *slog.Logger
}

// Callbacks publish turn progress to the UI layer. All are optional and
// must not block.
type Callbacks struct {
	// OnStages fires whenever the turn's stage set changes.
	OnStages func(stages []workflow.Stage)

	// OnAssistantDelta fires as the assistant reply grows, with the full
	// content so far.
	OnAssistantDelta func(messageID, content string)

	// OnStatus fires with short status notes (degraded context, errors).
	OnStatus func(text string)
}

// TurnContext is the ephemeral per-utterance state, owned by one turn.
type TurnContext struct {
	Input     string
	FromVoice bool
	StartedAt time.Time

	// Stages carries a stage set begun by the transcription path, so
	// the stt stage started before dispatch survives into the turn.
	Stages []workflow.Stage

	// Refined is the thinking pre-process rewrite, empty when the
	// refinement did not run or failed.
	Refined string

	// ContextNote is the system-role context injected before generation.
	ContextNote string

	// Sources are the curated search results behind ContextNote.
	Sources []session.SearchSource
}

// Orchestrator sequences one turn at a time against the collaborators.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	cb     Callbacks
	logger *slog.Logger

	metrics *Collector

	mu     sync.Mutex
	sess   *session.Session
	ready  bool
	queued *TurnContext
}

// New creates an orchestrator and wires the playback-idle hook that
// clears the pending-resume flag once the assistant finishes speaking.
func New(cfg Config, deps Deps, cb Callbacks) *Orchestrator {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 12
	}
	if cfg.SearchResults <= 0 {
		cfg.SearchResults = 8
	}
	if cfg.TitleEvery <= 0 {
		cfg.TitleEvery = 3
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		cb:      cb,
		logger:  logger.With("component", "turn"),
		metrics: NewCollector(),
	}
	if deps.Queue != nil {
		deps.Queue.OnIdle(func() {
			deps.State.SetPendingResume(false)
		})
	}
	return o
}

// UseSession makes the given session current.
func (o *Orchestrator) UseSession(sess *session.Session) {
	o.mu.Lock()
	o.sess = sess
	o.mu.Unlock()
}

// Session returns the current session, or nil.
func (o *Orchestrator) Session() *session.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess
}

// Metrics returns the turn latency collector.
func (o *Orchestrator) Metrics() *Collector {
	return o.metrics
}

// Ready reports whether the model is ready to take turns.
func (o *Orchestrator) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ready
}

// SetReady flips model readiness. Becoming ready dispatches the queued
// utterance, if any.
func (o *Orchestrator) SetReady(ready bool) {
	o.mu.Lock()
	o.ready = ready
	o.mu.Unlock()

	if ready {
		o.dispatchQueued()
	}
}

// dispatchQueued runs the queued utterance when the model is ready and
// no turn is in flight. Called on readiness flips and at turn end.
func (o *Orchestrator) dispatchQueued() {
	o.mu.Lock()
	waiting := o.queued != nil && o.ready
	o.mu.Unlock()
	if !waiting {
		return
	}

	if !o.deps.State.TryBeginStreaming() {
		// The active turn redispatches when it completes.
		return
	}

	o.mu.Lock()
	tc := o.queued
	o.queued = nil
	o.mu.Unlock()
	if tc == nil {
		o.deps.State.SetStreaming(false)
		return
	}

	o.logger.Info("dispatching queued utterance", "input", tc.Input)
	go o.runTurnOwned(context.Background(), tc)
}

// SubmitText runs a turn for directly typed input. Rejected outright
// when the model is not ready or a turn is already in flight.
func (o *Orchestrator) SubmitText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	if !o.Ready() {
		return ErrNotReady
	}
	if o.deps.State.Streaming() {
		return ErrBusy
	}

	return o.runTurn(ctx, &TurnContext{
		Input:     text,
		StartedAt: time.Now(),
	})
}

// DispatchCapture claims the turn gate synchronously, then transcribes
// in the background. The recorder calls this from capture finalize
// while Recording is still set, so listening never re-arms between
// capture end and turn completion.
func (o *Orchestrator) DispatchCapture(ctx context.Context, blob recorder.Blob) {
	owns := o.deps.State.TryBeginStreaming()
	go func() {
		if err := o.handleCapture(ctx, blob, owns); err != nil {
			o.logger.Warn("voice turn failed", "error", err)
		}
	}()
}

// HandleCapture transcribes a recorded utterance and runs the turn
// synchronously. Capture and transcription errors re-arm listening;
// they never start a turn.
func (o *Orchestrator) HandleCapture(ctx context.Context, blob recorder.Blob) error {
	return o.handleCapture(ctx, blob, o.deps.State.TryBeginStreaming())
}

// handleCapture runs the transcription phase under the busy flag when
// owns is true; when false another turn holds the gate and a validated
// utterance goes to the queued slot.
func (o *Orchestrator) handleCapture(ctx context.Context, blob recorder.Blob, owns bool) error {
	o.metrics.MarkInput()

	stages := workflow.New(true, o.deps.State.VoiceEnabled())
	stages = workflow.Start(stages, workflow.StageSTT)
	o.publishStages(stages)

	result, err := o.deps.Transcriber.Transcribe(ctx, blob.Data, blob.MIME)
	if err != nil {
		stages = workflow.Complete(stages, workflow.StageSTT, workflow.StatusError)
		o.publishStages(stages)
		o.status("Transcription failed: " + err.Error())
		o.endCapture(owns)
		return err
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		o.logger.Debug("empty transcription, discarding utterance")
		// No turn follows this capture; clear the published stage set.
		o.publishStages(nil)
		o.endCapture(owns)
		return nil
	}
	o.metrics.MarkTranscript()
	stages = workflow.Complete(stages, workflow.StageSTT, workflow.StatusSuccess)
	o.publishStages(stages)

	tc := &TurnContext{
		Input:     text,
		FromVoice: true,
		StartedAt: time.Now(),
		Stages:    stages,
	}

	// A validated utterance is never dropped: when the model is not
	// ready, or another turn already holds the busy flag, it waits in
	// the single queued slot, last write wins.
	o.mu.Lock()
	ready := o.ready
	wait := !ready || !owns
	if wait {
		if o.queued != nil {
			o.logger.Warn("replacing queued utterance", "dropped", o.queued.Input)
		}
		o.queued = tc
	}
	o.mu.Unlock()

	if wait {
		if !ready {
			o.status("Model not ready, utterance queued")
		} else {
			o.logger.Info("turn in flight, utterance queued", "input", tc.Input)
		}
		o.endCapture(owns)
		return nil
	}
	return o.runTurnOwned(ctx, tc)
}

// endCapture releases the busy flag held for a capture that did not
// become a running turn, then retries the queued slot.
func (o *Orchestrator) endCapture(owns bool) {
	if !owns {
		return
	}
	o.deps.State.SetStreaming(false)
	o.dispatchQueued()
}

func (o *Orchestrator) publishStages(stages []workflow.Stage) {
	if o.cb.OnStages != nil {
		o.cb.OnStages(stages)
	}
}

func (o *Orchestrator) status(text string) {
	if o.cb.OnStatus != nil {
		o.cb.OnStatus(text)
	}
}

func (o *Orchestrator) delta(id, content string) {
	if o.cb.OnAssistantDelta != nil {
		o.cb.OnAssistantDelta(id, content)
	}
}

// speechSamples converts a synthesis result for the audio queue.
func speechSamples(res *tts.AudioResult) audioqueue.Segment {
	rate := res.Format.SampleRate
	if rate == 0 {
		rate = res.Format.Encoding.SampleRate()
	}
	return audioqueue.Segment{
		Samples:    tts.PCMSamples(res.Audio),
		SampleRate: rate,
	}
}
