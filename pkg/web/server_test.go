package web

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mhalvorsen/go-parley/pkg/llm"
	"github.com/mhalvorsen/go-parley/pkg/session"
	"github.com/mhalvorsen/go-parley/pkg/stt"
	"github.com/mhalvorsen/go-parley/pkg/turn"
)

func newTestServer(t *testing.T) (*Server, *session.State, *turn.Orchestrator, session.Store) {
	t.Helper()

	state := session.NewState()
	state.SetActive(true)
	store, err := session.NewJSONStore(filepath.Join(t.TempDir(), "sessions.json"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := turn.New(turn.DefaultConfig(), turn.Deps{
		State:       state,
		Store:       store,
		Model:       &llm.Mock{StreamTokens: []string{"ok"}},
		Transcriber: stt.NewMock("hi"),
		Logger:      logger,
	}, turn.Callbacks{})

	s := NewServer(":0", Deps{
		State:  state,
		Store:  store,
		Orch:   orch,
		Logger: logger,
	})
	return s, state, orch, store
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func TestStatusEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	resp := doJSON(t, s, "GET", "/api/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Active || !st.Listening {
		t.Errorf("expected active listening state, got %+v", st)
	}
	if st.Ready {
		t.Error("ready must be false before the model loads")
	}
}

func TestMessageRejectedWhenNotReady(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	resp := doJSON(t, s, "POST", "/api/message", MessageRequest{Text: "hello"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 before ready, got %d", resp.StatusCode)
	}

	resp = doJSON(t, s, "POST", "/api/message", MessageRequest{Text: "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty input, got %d", resp.StatusCode)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s, _, orch, _ := newTestServer(t)

	resp := doJSON(t, s, "POST", "/api/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}
	var created session.Session
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if orch.Session() == nil || orch.Session().ID != created.ID {
		t.Error("new session must become current")
	}

	resp = doJSON(t, s, "POST", "/api/sessions/"+created.ID+"/rename", RenameRequest{Title: "Trip planning"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rename: status %d", resp.StatusCode)
	}

	resp = doJSON(t, s, "GET", "/api/sessions/"+created.ID, nil)
	var got session.Session
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Title != "Trip planning" {
		t.Errorf("title %q", got.Title)
	}

	resp = doJSON(t, s, "DELETE", "/api/sessions/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}
	resp = doJSON(t, s, "GET", "/api/sessions/"+created.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestSettingsToggles(t *testing.T) {
	s, state, _, _ := newTestServer(t)

	off := false
	resp := doJSON(t, s, "POST", "/api/settings", SettingsRequest{VoiceEnabled: &off, SearchEnabled: &off})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("settings: status %d", resp.StatusCode)
	}
	if state.VoiceEnabled() || state.SearchEnabled() {
		t.Error("toggles did not apply")
	}
}

func TestSystemEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	resp := doJSON(t, s, "GET", "/api/system", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("system: status %d", resp.StatusCode)
	}
	var info SystemInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.MemoryTotalMB == 0 {
		t.Error("expected total memory to be reported")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	resp := doJSON(t, s, "GET", "/api/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: status %d", resp.StatusCode)
	}
	var info MetricsInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Turns != 0 {
		t.Errorf("fresh server must report 0 turns, got %d", info.Turns)
	}
}
