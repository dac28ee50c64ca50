package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/mhalvorsen/go-parley/pkg/workflow"
)

// DefaultTitle marks a session that has not been titled yet, either by
// the user or by auto-title generation.
const DefaultTitle = "New conversation"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// SearchSource is one curated search result attached to a message.
type SearchSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Message is one entry in a session's append-only log. The last
// assistant message may grow in place while a reply streams; it is
// immutable once CompletedAt is set.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`

	Sources        []SearchSource   `json:"sources,omitempty"`
	WorkflowStages []workflow.Stage `json:"workflow_stages,omitempty"`
	LatencyMs      int64            `json:"latency_ms,omitempty"`
	CompletedAt    time.Time        `json:"completed_at,omitzero"`
}

// Session is the metadata for one conversation.
type Session struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`

	// TurnCount counts completed turns, used for auto-title cadence.
	TurnCount int `json:"turn_count"`

	Messages []Message `json:"messages"`
}

// MemoryEntry is a freeform labeled fact the assistant was asked to keep.
type MemoryEntry struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSession creates an untitled session.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.NewString(),
		Title:      DefaultTitle,
		CreatedAt:  now,
		LastActive: now,
	}
}

// HasDefaultTitle reports whether the session still carries the
// placeholder title.
func (s *Session) HasDefaultTitle() bool {
	return s.Title == "" || s.Title == DefaultTitle
}

// NewMessage creates a message with a fresh ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
	}
}
