package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAISynthesizePCM(t *testing.T) {
	pcm := make([]byte, 4800)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pcm)
	}))
	defer srv.Close()

	p, err := NewOpenAI(WithAPIKey("k"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer p.Close()

	result, err := p.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(result.Audio) != len(pcm) {
		t.Errorf("expected %d bytes, got %d", len(pcm), len(result.Audio))
	}
	if result.Format.SampleRate != 24000 {
		t.Errorf("expected 24kHz, got %d", result.Format.SampleRate)
	}
}

func TestOpenAIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()

	p, _ := NewOpenAI(WithAPIKey("k"), WithBaseURL(srv.URL))
	_, err := p.Synthesize(context.Background(), "hello")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "bad key" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestElevenLabsWSRequiresVoice(t *testing.T) {
	if _, err := NewElevenLabsWS(WithAPIKey("k")); !errors.Is(err, ErrNoVoiceID) {
		t.Errorf("expected ErrNoVoiceID, got %v", err)
	}
}

func TestChainFallback(t *testing.T) {
	failing := NewMock()
	failing.Err = errors.New("offline")
	working := NewMock()

	chain, err := NewChain(failing, working)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}

	result, err := chain.Synthesize(context.Background(), "hi")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(result.Audio) == 0 {
		t.Error("expected audio from fallback provider")
	}
	if working.CallCount() != 1 {
		t.Errorf("fallback provider called %d times", working.CallCount())
	}
}

func TestChainAllFail(t *testing.T) {
	a, b := NewMock(), NewMock()
	a.Err = errors.New("a down")
	b.Err = errors.New("b down")

	chain, _ := NewChain(a, b)
	_, err := chain.Synthesize(context.Background(), "hi")

	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("expected ChainError, got %v", err)
	}
	if len(chainErr.Errors) != 2 {
		t.Errorf("expected 2 errors, got %d", len(chainErr.Errors))
	}
}

func TestChainRequiresProvider(t *testing.T) {
	if _, err := NewChain(); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestPCMSamples(t *testing.T) {
	data := []byte{0x10, 0x00, 0x00, 0x80} // 16, -32768
	samples := PCMSamples(data)
	if len(samples) != 2 || samples[0] != 16 || samples[1] != -32768 {
		t.Errorf("unexpected samples: %v", samples)
	}
}
