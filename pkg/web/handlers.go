package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mhalvorsen/go-parley/pkg/hub"
	"github.com/mhalvorsen/go-parley/pkg/session"
	"github.com/mhalvorsen/go-parley/pkg/turn"
)

// handleStatus returns the assistant's current state.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.currentStatus())
}

// SystemInfo is the host metrics payload.
type SystemInfo struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
}

// handleSystem returns host CPU and memory usage.
func (s *Server) handleSystem(c *fiber.Ctx) error {
	info := SystemInfo{}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		info.CPUPercent = percentages[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryPercent = vm.UsedPercent
		info.MemoryUsedMB = vm.Used / 1024 / 1024
		info.MemoryTotalMB = vm.Total / 1024 / 1024
	}
	return c.JSON(info)
}

// LatencyInfo is one turn's latency breakdown in milliseconds.
type LatencyInfo struct {
	TranscribeMs int64 `json:"transcribe_ms"`
	FirstTokenMs int64 `json:"first_token_ms"`
	SynthesisMs  int64 `json:"synthesis_ms"`
	TotalMs      int64 `json:"total_ms"`
	Tokens       int   `json:"tokens"`
}

// MetricsInfo is the turn latency payload.
type MetricsInfo struct {
	Turns   int         `json:"turns"`
	Current LatencyInfo `json:"current"`
	Average LatencyInfo `json:"average"`
}

func latencyInfo(m turn.TurnMetrics) LatencyInfo {
	return LatencyInfo{
		TranscribeMs: m.TranscribeLatency.Milliseconds(),
		FirstTokenMs: m.FirstTokenLatency.Milliseconds(),
		SynthesisMs:  m.SynthesisLatency.Milliseconds(),
		TotalMs:      m.TotalLatency.Milliseconds(),
		Tokens:       m.Tokens,
	}
}

// handleMetrics returns current and averaged turn latencies.
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	if s.orch == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no orchestrator"})
	}
	col := s.orch.Metrics()
	return c.JSON(MetricsInfo{
		Turns:   col.Turns(),
		Current: latencyInfo(col.Current()),
		Average: latencyInfo(col.Average()),
	})
}

// handleGetLogs returns the buffered log tail.
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

// MessageRequest is a typed composer submission.
type MessageRequest struct {
	Text string `json:"text"`
}

// handleMessage submits typed input to the orchestrator. Typed input is
// rejected outright when the assistant is not ready or busy; the human
// can retry.
func (s *Server) handleMessage(c *fiber.Ctx) error {
	if s.orch == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no orchestrator"})
	}

	var req MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	err := s.orch.SubmitText(c.Context(), req.Text)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"ok": true})
	case errors.Is(err, turn.ErrEmptyInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, turn.ErrNotReady), errors.Is(err, turn.ErrBusy):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

// SettingsRequest toggles runtime settings. Nil fields are untouched.
type SettingsRequest struct {
	VoiceEnabled  *bool    `json:"voice_enabled"`
	SearchEnabled *bool    `json:"search_enabled"`
	MicMuted      *bool    `json:"mic_muted"`
	Volume        *float64 `json:"volume"`
	Muted         *bool    `json:"muted"`
}

// handleSettings applies setting changes. Disabling voice stops any
// playback in flight.
func (s *Server) handleSettings(c *fiber.Ctx) error {
	var req SettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	if req.VoiceEnabled != nil {
		s.state.SetVoiceEnabled(*req.VoiceEnabled)
		if !*req.VoiceEnabled && s.queue != nil {
			s.queue.Stop()
			s.state.SetPendingResume(false)
		}
	}
	if req.SearchEnabled != nil {
		s.state.SetSearchEnabled(*req.SearchEnabled)
	}
	if req.MicMuted != nil {
		s.state.SetMicMuted(*req.MicMuted)
	}
	if s.queue != nil {
		if req.Volume != nil {
			s.queue.SetVolume(*req.Volume)
		}
		if req.Muted != nil {
			s.queue.SetMuted(*req.Muted)
		}
	}

	s.broadcastStatus()
	return c.JSON(s.currentStatus())
}

// handleListSessions returns all sessions, newest activity first.
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	sessions, err := s.store.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(sessions)
}

// handleCreateSession creates a session and makes it current.
func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	sess := session.NewSession()
	if err := s.store.Create(c.Context(), sess); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if s.orch != nil {
		s.orch.UseSession(sess)
	}
	if s.queue != nil {
		// A new session interrupts whatever the old one was saying.
		s.queue.Stop()
		s.state.SetPendingResume(false)
	}
	s.broadcastStatus()
	return c.Status(fiber.StatusCreated).JSON(sess)
}

// handleGetSession returns one session with its messages.
func (s *Server) handleGetSession(c *fiber.Ctx) error {
	sess, err := s.store.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(sess)
}

// RenameRequest carries a new session title.
type RenameRequest struct {
	Title string `json:"title"`
}

// handleRenameSession updates a session title.
func (s *Server) handleRenameSession(c *fiber.Ctx) error {
	var req RenameRequest
	if err := c.BodyParser(&req); err != nil || req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title required"})
	}

	if err := s.store.Rename(c.Context(), c.Params("id"), req.Title); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// handleDeleteSession removes a session.
func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	if err := s.store.Delete(c.Context(), c.Params("id")); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// handleStatusWS streams status updates; sends the current status on
// connect.
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	conn.WriteJSON(s.currentStatus())
	hub.NewClient(s.statusHub, conn).Run()
}

// handleLogsWS streams log entries.
func (s *Server) handleLogsWS(conn *websocket.Conn) {
	hub.NewClient(s.logHub, conn).Run()
}

// handleConversationWS streams assistant reply deltas.
func (s *Server) handleConversationWS(conn *websocket.Conn) {
	hub.NewClient(s.convHub, conn).Run()
}
