package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func whisperServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		file, _, err := r.FormFile("audio")
		if err != nil {
			http.Error(w, "missing audio", http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, _ := io.ReadAll(file)
		if len(data) < 1500 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"detail":"audio too short"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":" hello there ","language":"en"}`))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"model":"base","device":"auto"}`))
	})
	return httptest.NewServer(mux)
}

func TestWhisperTranscribe(t *testing.T) {
	srv := whisperServer(t)
	defer srv.Close()

	w, err := NewWhisper(srv.URL)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer w.Close()

	result, err := w.Transcribe(context.Background(), make([]byte, 2000), "audio/wav")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if result.Text != "hello there" {
		t.Errorf("expected trimmed text, got %q", result.Text)
	}
	if result.Language != "en" {
		t.Errorf("expected language en, got %q", result.Language)
	}
}

func TestWhisperTooShort(t *testing.T) {
	srv := whisperServer(t)
	defer srv.Close()

	w, err := NewWhisper(srv.URL)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer w.Close()

	_, err = w.Transcribe(context.Background(), make([]byte, 100), "audio/wav")
	if !errors.Is(err, ErrAudioTooShort) {
		t.Errorf("expected ErrAudioTooShort, got %v", err)
	}
}

func TestWhisperEmptyAudio(t *testing.T) {
	w, err := NewWhisper("http://localhost:1")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := w.Transcribe(context.Background(), nil, "audio/wav"); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestWhisperHealth(t *testing.T) {
	srv := whisperServer(t)
	defer srv.Close()

	w, err := NewWhisper(srv.URL)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := w.Health(context.Background()); err != nil {
		t.Errorf("health: %v", err)
	}
}

func TestWhisperRequiresEndpoint(t *testing.T) {
	if _, err := NewWhisper(""); !errors.Is(err, ErrNoEndpoint) {
		t.Errorf("expected ErrNoEndpoint, got %v", err)
	}
}

func TestChainFallback(t *testing.T) {
	failing := &Mock{Err: errors.New("offline")}
	working := NewMock("fallback text")

	chain, err := NewChain(failing, working)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}

	result, err := chain.Transcribe(context.Background(), make([]byte, 500), "audio/wav")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if result.Text != "fallback text" {
		t.Errorf("expected fallback result, got %q", result.Text)
	}
}

func TestChainTooShortShortCircuits(t *testing.T) {
	first := &Mock{Err: ErrAudioTooShort}
	second := NewMock("should not run")

	chain, err := NewChain(first, second)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}

	_, err = chain.Transcribe(context.Background(), make([]byte, 100), "audio/wav")
	if !errors.Is(err, ErrAudioTooShort) {
		t.Fatalf("expected ErrAudioTooShort, got %v", err)
	}
	if second.CallCount() != 0 {
		t.Error("too-short rejection must not fall through to the next provider")
	}
}

func TestChainAllFail(t *testing.T) {
	chain, err := NewChain(&Mock{Err: errors.New("a")}, &Mock{Err: errors.New("b")})
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}

	_, err = chain.Transcribe(context.Background(), make([]byte, 500), "audio/wav")
	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected ChainError, got %v", err)
	}
	if len(chainErr.Errors) != 2 {
		t.Errorf("expected 2 aggregated errors, got %d", len(chainErr.Errors))
	}
}
