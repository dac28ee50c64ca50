package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newStore(t *testing.T) (*JSONStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.json")
	s, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, path
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, path := newStore(t)

	sess := NewSession()
	if err := s.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.AppendMessage(ctx, sess.ID, NewMessage(RoleUser, "hi")); err != nil {
		t.Fatalf("append: %v", err)
	}
	assistant := NewMessage(RoleAssistant, "hello")
	assistant.CompletedAt = time.Now()
	if err := s.AppendMessage(ctx, sess.ID, assistant); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Reload from disk.
	s2, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, err := s2.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	if got.TurnCount != 1 {
		t.Errorf("assistant append must bump turn count, got %d", got.TurnCount)
	}
	if got.Messages[1].Content != "hello" {
		t.Errorf("unexpected content %q", got.Messages[1].Content)
	}
}

func TestStoreListOrdersByActivity(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	older := NewSession()
	newer := NewSession()
	s.Create(ctx, older)
	s.Create(ctx, newer)
	if err := s.Touch(ctx, older.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != older.ID {
		t.Errorf("touched session must list first")
	}
	if list[0].Messages != nil {
		t.Error("list must not carry message bodies")
	}
}

func TestStoreRenameDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	sess := NewSession()
	s.Create(ctx, sess)
	if err := s.Rename(ctx, sess.ID, "Groceries"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, _ := s.Get(ctx, sess.ID)
	if got.Title != "Groceries" || got.HasDefaultTitle() {
		t.Errorf("title %q", got.Title)
	}

	if err := s.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete must be ErrNotFound, got %v", err)
	}
}

func TestStoreMemoryEntries(t *testing.T) {
	ctx := context.Background()
	s, path := newStore(t)

	entry := MemoryEntry{ID: "m1", Label: "birthday", Content: "June 3rd", CreatedAt: time.Now()}
	if err := s.SaveMemory(ctx, entry); err != nil {
		t.Fatalf("save memory: %v", err)
	}

	s2, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	entries, err := s2.ListMemory(ctx)
	if err != nil {
		t.Fatalf("list memory: %v", err)
	}
	if len(entries) != 1 || entries[0].Label != "birthday" {
		t.Errorf("unexpected entries %v", entries)
	}
}
