package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mhalvorsen/go-parley/internal/log"
	"github.com/mhalvorsen/go-parley/pkg/audioio"
	"github.com/mhalvorsen/go-parley/pkg/audioqueue"
	"github.com/mhalvorsen/go-parley/pkg/browse"
	"github.com/mhalvorsen/go-parley/pkg/capture"
	"github.com/mhalvorsen/go-parley/pkg/llm"
	"github.com/mhalvorsen/go-parley/pkg/recorder"
	"github.com/mhalvorsen/go-parley/pkg/search"
	"github.com/mhalvorsen/go-parley/pkg/session"
	"github.com/mhalvorsen/go-parley/pkg/stt"
	"github.com/mhalvorsen/go-parley/pkg/tts"
	"github.com/mhalvorsen/go-parley/pkg/turn"
	"github.com/mhalvorsen/go-parley/pkg/vad"
	"github.com/mhalvorsen/go-parley/pkg/weather"
	"github.com/mhalvorsen/go-parley/pkg/web"
	"github.com/mhalvorsen/go-parley/pkg/workflow"
)

// App owns every component and its lifecycle: construct with New,
// wire with Init, then Run until the context is cancelled.
type App struct {
	cfg    Config
	logger *slog.Logger

	state *session.State
	store session.Store

	model       llm.Provider
	transcriber stt.Provider
	speech      tts.Provider
	searcher    search.Searcher
	forecaster  weather.Provider
	fetcher     browse.Fetcher

	source  audioio.Source
	sink    audioio.Sink
	queue   *audioqueue.Queue
	rec     *recorder.Recorder
	monitor *vad.Monitor
	archive *capture.RedisArchive

	orch *turn.Orchestrator
	web  *web.Server

	// modelList is the app-context cache of served model IDs, loaded
	// once the backend answers and dropped on shutdown.
	modelList []string

	runCtx context.Context
}

// New creates the application. Environment overrides are applied and
// the configuration validated here; no I/O happens until Init.
func New(cfg Config) (*App, error) {
	cfg.LoadEnvConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	log.Init(level)

	return &App{
		cfg:    cfg,
		logger: log.With("component", "app"),
		state:  session.NewState(),
	}, nil
}

// SetAudio injects the microphone source and speaker sink. Call before
// Init; without injection a mock pair is used.
func (a *App) SetAudio(source audioio.Source, sink audioio.Sink) {
	a.source = source
	a.sink = sink
}

// Init constructs and wires all components.
func (a *App) Init(ctx context.Context) error {
	store, err := session.NewJSONStore(a.cfg.StorePath)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	a.store = store

	if err := a.initProviders(ctx); err != nil {
		return err
	}
	if err := a.initAudio(ctx); err != nil {
		return err
	}

	a.orch = turn.New(turn.Config{
		ChatModel:       a.cfg.ChatModel,
		ThinkingModel:   a.cfg.ThinkingModel,
		HistoryLimit:    12,
		SearchResults:   8,
		TitleEvery:      3,
		DefaultLocation: a.cfg.DefaultLocation,
	}, turn.Deps{
		State:       a.state,
		Store:       a.store,
		Model:       a.model,
		Transcriber: a.transcriber,
		Speech:      a.speech,
		Search:      a.searcher,
		Weather:     a.forecaster,
		Browse:      a.fetcher,
		Queue:       a.queue,
		Logger:      log.L(),
	}, turn.Callbacks{
		OnStages: func(stages []workflow.Stage) {
			if a.web != nil {
				a.web.SetStages(stages)
			}
		},
		OnAssistantDelta: func(id, content string) {
			if a.web != nil {
				a.web.AssistantDelta(id, content)
			}
		},
		OnStatus: func(text string) {
			if a.web != nil {
				a.web.SetStatusLine(text)
				a.web.AddLog("status", text)
			}
		},
	})

	a.web = web.NewServer(a.cfg.Addr, web.Deps{
		State:  a.state,
		Store:  a.store,
		Orch:   a.orch,
		Queue:  a.queue,
		Logger: log.L(),
	})

	// Voice edges drive the recorder; finished captures drive turns.
	a.monitor.OnSpeechStart(func() {
		if err := a.rec.Start(a.runCtx); err != nil {
			a.logger.Debug("capture not started", "reason", err)
		}
	})
	a.monitor.OnSpeechEnd(func() {
		if err := a.rec.Stop(); err != nil && err != recorder.ErrNotRecording {
			a.logger.Debug("capture ended", "result", err)
		}
	})
	// DispatchCapture claims the turn gate before finalize clears the
	// recording flag, so listening stays off through the hand-off.
	a.rec.OnUtterance(func(blob recorder.Blob) {
		a.orch.DispatchCapture(a.runCtx, blob)
	})

	return nil
}

// initProviders builds the model, transcription, synthesis, search,
// weather, and browse collaborators.
func (a *App) initProviders(ctx context.Context) error {
	llmOpts := []llm.Option{
		llm.WithAPIKey(a.cfg.OpenAIKey),
		llm.WithModel(a.cfg.ChatModel),
		llm.WithLogger(log.L()),
	}
	if a.cfg.LLMBaseURL != "" {
		llmOpts = append(llmOpts, llm.WithBaseURL(a.cfg.LLMBaseURL))
	}
	model, err := llm.NewClient(llmOpts...)
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}
	a.model = model

	whisper, err := stt.NewWhisper(a.cfg.WhisperEndpoint, stt.WithLogger(log.L()))
	if err != nil {
		return fmt.Errorf("whisper client: %w", err)
	}
	if a.cfg.GoogleSTT {
		google, err := stt.NewGoogle(ctx)
		if err != nil {
			a.logger.Warn("google stt unavailable, whisper only", "error", err)
			a.transcriber = whisper
		} else {
			chain, err := stt.NewChain(whisper, google)
			if err != nil {
				return fmt.Errorf("stt chain: %w", err)
			}
			a.transcriber = chain
		}
	} else {
		a.transcriber = whisper
	}

	if err := a.initSpeech(); err != nil {
		return err
	}

	if a.cfg.GoogleAPIKey != "" && a.cfg.SearchEngineID != "" {
		searcher, err := search.NewGoogle(ctx, a.cfg.GoogleAPIKey, a.cfg.SearchEngineID)
		if err != nil {
			a.logger.Warn("search unavailable", "error", err)
			a.state.SetSearchEnabled(false)
		} else {
			a.searcher = searcher
		}
	} else {
		a.state.SetSearchEnabled(false)
	}

	a.forecaster = weather.NewOpenMeteo()
	a.fetcher = browse.NewClient()
	return nil
}

// initSpeech builds the synthesis chain for the configured mode.
func (a *App) initSpeech() error {
	openai, err := tts.NewOpenAI(
		tts.WithAPIKey(a.cfg.OpenAIKey),
		tts.WithLogger(log.L()),
	)
	if err != nil {
		return fmt.Errorf("openai tts: %w", err)
	}

	if a.cfg.TTSMode != "elevenlabs" {
		a.speech = openai
		return nil
	}

	eleven, err := tts.NewElevenLabsWS(
		tts.WithAPIKey(a.cfg.ElevenLabsKey),
		tts.WithVoice(a.cfg.TTSVoice),
		tts.WithLogger(log.L()),
	)
	if err != nil {
		return fmt.Errorf("elevenlabs tts: %w", err)
	}

	chain, err := tts.NewChain(eleven, openai)
	if err != nil {
		return fmt.Errorf("tts chain: %w", err)
	}
	a.speech = chain
	return nil
}

// initAudio builds the capture and playback pipeline.
func (a *App) initAudio(ctx context.Context) error {
	if a.source == nil {
		a.logger.Warn("no audio source injected, using mock microphone")
		a.source = audioio.NewMockSource(16000, log.L())
	}
	if a.sink == nil {
		a.sink = audioio.NewMockSink()
	}

	a.queue = audioqueue.New(audioqueue.NewSinkPlayer(a.sink), a.state, log.L())
	a.monitor = vad.New(vad.DefaultConfig(), a.state, a.source, log.L())

	var recOpts []recorder.Option
	if a.cfg.RedisAddr != "" {
		archive, err := capture.NewRedis(a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB, log.L())
		if err != nil {
			a.logger.Warn("capture archive unavailable", "error", err)
		} else {
			a.archive = archive
			recOpts = append(recOpts, recorder.WithArchive(archive))
		}
	}
	a.rec = recorder.New(recorder.DefaultConfig(), a.state, a.source, log.L(), recOpts...)
	return nil
}

// Run starts the pipeline and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.runCtx = ctx

	sess, err := a.currentSession(ctx)
	if err != nil {
		return err
	}
	a.orch.UseSession(sess)
	a.state.SetActive(true)

	if err := a.source.Start(ctx); err != nil {
		a.state.SetMicError(true)
		a.logger.Error("microphone unavailable", "error", err)
	}
	if err := a.sink.Start(ctx); err != nil {
		return fmt.Errorf("speaker: %w", err)
	}

	go a.monitor.Run(ctx)
	go func() {
		if err := a.web.Start(); err != nil {
			a.logger.Error("dashboard server stopped", "error", err)
		}
	}()
	go a.loadModels(ctx)
	go a.healthCheck(ctx)

	a.logger.Info("parley running", "session", sess.ID, "addr", a.cfg.Addr)
	<-ctx.Done()
	return nil
}

// currentSession resumes the most recently active session, or creates
// a fresh one.
func (a *App) currentSession(ctx context.Context) (*session.Session, error) {
	sessions, err := a.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) > 0 {
		sess, err := a.store.Get(ctx, sessions[0].ID)
		if err == nil {
			return sess, nil
		}
		a.logger.Warn("resume failed, starting fresh", "error", err)
	}

	sess := session.NewSession()
	if err := a.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// loadModels polls the backend until the model list loads, then marks
// the orchestrator ready. A queued utterance dispatches at that point.
func (a *App) loadModels(ctx context.Context) {
	for {
		models, err := a.model.Models(ctx)
		if err == nil {
			a.modelList = models
			a.orch.SetReady(true)
			a.logger.Info("model backend ready", "models", len(models))
			a.web.AddLog("info", "model backend ready")
			return
		}
		a.logger.Warn("model backend not ready", "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(3 * time.Second):
		}
	}
}

// Models returns the cached model list.
func (a *App) Models() []string {
	return a.modelList
}

// healthCheck probes the providers once at startup and logs failures.
func (a *App) healthCheck(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	checks := []struct {
		name  string
		check func(context.Context) error
	}{
		{"stt", a.transcriber.Health},
		{"tts", a.speech.Health},
	}
	for _, c := range checks {
		if err := c.check(ctx); err != nil {
			a.logger.Warn("provider unhealthy", "provider", c.name, "error", err)
			a.web.AddLog("error", c.name+" provider unhealthy")
		}
	}
}

// Shutdown tears everything down in reverse dependency order.
func (a *App) Shutdown() {
	a.state.SetActive(false)
	a.monitor.ForceEnd()
	a.queue.Stop()
	a.rec.Stop()

	a.modelList = nil

	if a.web != nil {
		a.web.Shutdown()
	}
	if a.archive != nil {
		a.archive.Close()
	}
	if a.source != nil {
		a.source.Close()
	}
	if a.sink != nil {
		a.sink.Close()
	}
	if a.speech != nil {
		a.speech.Close()
	}
	if a.transcriber != nil {
		a.transcriber.Close()
	}
	if a.model != nil {
		a.model.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	a.logger.Info("shutdown complete")
}
