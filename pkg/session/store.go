package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session: not found")

// Store is the persistence collaborator: an append-only message log per
// session plus session metadata and labeled memory entries.
// Implementations may be local files or a remote service.
type Store interface {
	// Create persists a new session.
	Create(ctx context.Context, s *Session) error

	// Get returns a session with its messages.
	Get(ctx context.Context, id string) (*Session, error)

	// List returns all sessions ordered by last activity, newest first.
	List(ctx context.Context) ([]*Session, error)

	// Rename updates a session's title.
	Rename(ctx context.Context, id, title string) error

	// Delete removes a session and its messages.
	Delete(ctx context.Context, id string) error

	// AppendMessage appends a finalized message and bumps the
	// session's last-activity time and turn counter.
	AppendMessage(ctx context.Context, sessionID string, msg Message) error

	// Touch updates last-activity ordering without appending.
	Touch(ctx context.Context, sessionID string) error

	// SaveMemory stores a labeled memory entry.
	SaveMemory(ctx context.Context, entry MemoryEntry) error

	// ListMemory returns all memory entries.
	ListMemory(ctx context.Context) ([]MemoryEntry, error)

	// Close releases store resources.
	Close() error
}

// jsonState is the on-disk document for JSONStore.
type jsonState struct {
	Sessions []*Session    `json:"sessions"`
	Memory   []MemoryEntry `json:"memory"`
}

// JSONStore implements Store with a single JSON file.
// Suitable for a single-user desktop deployment.
type JSONStore struct {
	path string

	mu    sync.Mutex
	state jsonState
}

// NewJSONStore creates a store backed by the given file, loading any
// existing content.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("session store: read: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.state); err != nil {
			return nil, fmt.Errorf("session store: parse: %w", err)
		}
	}
	return s, nil
}

// flushLocked writes the state to disk. Must hold mu.
func (s *JSONStore) flushLocked() error {
	if s.path == "" {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("session store: create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(&s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("session store: marshal: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("session store: write: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *JSONStore) findLocked(id string) (*Session, error) {
	for _, sess := range s.state.Sessions {
		if sess.ID == id {
			return sess, nil
		}
	}
	return nil, ErrNotFound
}

// Create persists a new session.
func (s *JSONStore) Create(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Sessions = append(s.state.Sessions, sess)
	return s.flushLocked()
}

// Get returns a session by ID.
func (s *JSONStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.findLocked(id)
	if err != nil {
		return nil, err
	}
	cp := *sess
	cp.Messages = append([]Message(nil), sess.Messages...)
	return &cp, nil
}

// List returns sessions, most recently active first.
func (s *JSONStore) List(ctx context.Context) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Session, 0, len(s.state.Sessions))
	for _, sess := range s.state.Sessions {
		cp := *sess
		cp.Messages = nil
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActive.After(out[j].LastActive)
	})
	return out, nil
}

// Rename updates a session title.
func (s *JSONStore) Rename(ctx context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.findLocked(id)
	if err != nil {
		return err
	}
	sess.Title = title
	return s.flushLocked()
}

// Delete removes a session.
func (s *JSONStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sess := range s.state.Sessions {
		if sess.ID == id {
			s.state.Sessions = append(s.state.Sessions[:i], s.state.Sessions[i+1:]...)
			return s.flushLocked()
		}
	}
	return ErrNotFound
}

// AppendMessage appends a message and bumps activity tracking.
// Completed assistant messages advance the turn counter.
func (s *JSONStore) AppendMessage(ctx context.Context, sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.findLocked(sessionID)
	if err != nil {
		return err
	}
	sess.Messages = append(sess.Messages, msg)
	sess.LastActive = time.Now()
	if msg.Role == RoleAssistant {
		sess.TurnCount++
	}
	return s.flushLocked()
}

// Touch bumps last-activity ordering.
func (s *JSONStore) Touch(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.findLocked(sessionID)
	if err != nil {
		return err
	}
	sess.LastActive = time.Now()
	return s.flushLocked()
}

// SaveMemory stores a labeled memory entry.
func (s *JSONStore) SaveMemory(ctx context.Context, entry MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Memory = append(s.state.Memory, entry)
	return s.flushLocked()
}

// ListMemory returns all memory entries.
func (s *JSONStore) ListMemory(ctx context.Context) ([]MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MemoryEntry(nil), s.state.Memory...), nil
}

// Close is a no-op for the file store.
func (s *JSONStore) Close() error {
	return nil
}

// Ensure JSONStore implements Store.
var _ Store = (*JSONStore)(nil)
