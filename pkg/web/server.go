// Package web serves the status dashboard: session REST endpoints,
// typed-input submission, live state and conversation over websockets,
// and host metrics. It renders no HTML; clients consume JSON.
package web

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/mhalvorsen/go-parley/pkg/audioqueue"
	"github.com/mhalvorsen/go-parley/pkg/hub"
	"github.com/mhalvorsen/go-parley/pkg/session"
	"github.com/mhalvorsen/go-parley/pkg/turn"
	"github.com/mhalvorsen/go-parley/pkg/workflow"
)

// statusLineTTL is how long a status note stays up before auto-clear.
const statusLineTTL = 5 * time.Second

// Status is the dashboard's view of the assistant.
type Status struct {
	Ready         bool   `json:"ready"`
	Active        bool   `json:"active"`
	MicMuted      bool   `json:"mic_muted"`
	Streaming     bool   `json:"streaming"`
	Playing       bool   `json:"playing"`
	Recording     bool   `json:"recording"`
	PendingResume bool   `json:"pending_resume"`
	VoiceEnabled  bool   `json:"voice_enabled"`
	SearchEnabled bool   `json:"search_enabled"`
	MicError      bool   `json:"mic_error"`
	Listening     bool   `json:"listening"`
	SessionID     string `json:"session_id,omitempty"`
	StatusLine    string `json:"status_line,omitempty"`

	Stages []workflow.Stage `json:"stages,omitempty"`
}

// LogEntry is one dashboard log line.
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Delta is a streaming assistant-reply update.
type Delta struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// Server is the dashboard HTTP and websocket server.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	state *session.State
	store session.Store
	orch  *turn.Orchestrator
	queue *audioqueue.Queue

	statusHub *hub.Hub
	logHub    *hub.Hub
	convHub   *hub.Hub

	mu         sync.RWMutex
	stages     []workflow.Stage
	statusLine string
	clearTimer *time.Timer

	logsMu sync.RWMutex
	logs   []LogEntry
}

// Deps are the server's collaborators. Store and Queue may be nil.
type Deps struct {
	State  *session.State
	Store  session.Store
	Orch   *turn.Orchestrator
	Queue  *audioqueue.Queue
	Logger *slog.Logger
}

// NewServer builds the server and its routes.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		addr:      addr,
		logger:    logger,
		state:     deps.State,
		store:     deps.Store,
		orch:      deps.Orch,
		queue:     deps.Queue,
		statusHub: hub.New("status", logger),
		logHub:    hub.New("logs", logger),
		convHub:   hub.New("conversation", logger),
		logs:      make([]LogEntry, 0, 500),
	}

	app := fiber.New(fiber.Config{
		AppName:               "parley",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/system", s.handleSystem)
	api.Get("/metrics", s.handleMetrics)
	api.Get("/logs", s.handleGetLogs)
	api.Post("/message", s.handleMessage)
	api.Post("/settings", s.handleSettings)

	api.Get("/sessions", s.handleListSessions)
	api.Post("/sessions", s.handleCreateSession)
	api.Get("/sessions/:id", s.handleGetSession)
	api.Post("/sessions/:id/rename", s.handleRenameSession)
	api.Delete("/sessions/:id", s.handleDeleteSession)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))
	app.Get("/ws/conversation", websocket.New(s.handleConversationWS))

	s.app = app
	return s
}

// Start runs the hubs and listens. Blocks until Shutdown.
func (s *Server) Start() error {
	go s.statusHub.Run()
	go s.logHub.Run()
	go s.convHub.Run()

	s.logger.Info("dashboard listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// currentStatus assembles the status payload under the read lock.
func (s *Server) currentStatus() Status {
	snap := s.state.Snapshot()

	s.mu.RLock()
	stages := append([]workflow.Stage(nil), s.stages...)
	line := s.statusLine
	s.mu.RUnlock()

	st := Status{
		Active:        snap.Active,
		MicMuted:      snap.MicMuted,
		Streaming:     snap.Streaming,
		Playing:       snap.Playing,
		Recording:     snap.Recording,
		PendingResume: snap.PendingResume,
		VoiceEnabled:  snap.VoiceEnabled,
		SearchEnabled: snap.SearchEnabled,
		MicError:      snap.MicError,
		Listening:     snap.Listening(),
		StatusLine:    line,
		Stages:        stages,
	}
	if s.orch != nil {
		st.Ready = s.orch.Ready()
		if sess := s.orch.Session(); sess != nil {
			st.SessionID = sess.ID
		}
	}
	return st
}

// broadcastStatus pushes the current status to websocket clients.
func (s *Server) broadcastStatus() {
	s.statusHub.BroadcastJSON(s.currentStatus())
}

// SetStages records a stage set update and broadcasts it. Wire this to
// the orchestrator's OnStages callback.
func (s *Server) SetStages(stages []workflow.Stage) {
	s.mu.Lock()
	s.stages = append([]workflow.Stage(nil), stages...)
	s.mu.Unlock()
	s.broadcastStatus()
}

// SetStatusLine shows a transient note that auto-clears. Wire this to
// the orchestrator's OnStatus callback.
func (s *Server) SetStatusLine(text string) {
	s.mu.Lock()
	s.statusLine = text
	if s.clearTimer != nil {
		s.clearTimer.Stop()
	}
	s.clearTimer = time.AfterFunc(statusLineTTL, func() {
		s.mu.Lock()
		s.statusLine = ""
		s.mu.Unlock()
		s.broadcastStatus()
	})
	s.mu.Unlock()
	s.broadcastStatus()
}

// AssistantDelta broadcasts a growing assistant reply. Wire this to the
// orchestrator's OnAssistantDelta callback.
func (s *Server) AssistantDelta(messageID, content string) {
	s.convHub.BroadcastJSON(Delta{MessageID: messageID, Content: content})
}

// AddLog appends a dashboard log line and broadcasts it.
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > 500 {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	s.logHub.BroadcastJSON(entry)
}
