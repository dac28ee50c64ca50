// Parley - a hands-free conversational assistant.
// Speech in, streamed model reply out, synthesized speech back.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/mhalvorsen/go-parley/pkg/app"
)

func main() {
	cfg := parseFlags()

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Init(ctx); err != nil {
		log.Fatalf("initialization failed: %v", err)
	}
	defer a.Shutdown()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}

// parseFlags parses command line flags and returns configuration.
// Environment overrides are applied later by app.New.
func parseFlags() app.Config {
	cfg := app.DefaultConfig()

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	addr := flag.String("addr", cfg.Addr, "Dashboard listen address")
	store := flag.String("store", cfg.StorePath, "Session store file")
	chatModel := flag.String("model", cfg.ChatModel, "Chat model ID")
	thinkingModel := flag.String("thinking-model", cfg.ThinkingModel, "Thinking model ID (empty disables thinking)")
	llmBase := flag.String("llm-url", "", "OpenAI-compatible API base URL")
	whisper := flag.String("whisper", cfg.WhisperEndpoint, "Whisper transcription service endpoint")
	googleSTT := flag.Bool("google-stt", false, "Enable Google Speech fallback for transcription")
	ttsMode := flag.String("tts", cfg.TTSMode, "TTS provider: openai, elevenlabs")
	ttsVoice := flag.String("tts-voice", "", "Voice ID for ElevenLabs")
	engineID := flag.String("search-engine", "", "Google custom search engine ID")
	redisAddr := flag.String("redis", "", "Redis address for the capture archive (empty disables)")
	location := flag.String("location", cfg.DefaultLocation, "Default location for weather queries")

	flag.Parse()

	cfg.Debug = *debug
	cfg.Addr = *addr
	cfg.StorePath = *store
	cfg.ChatModel = *chatModel
	cfg.ThinkingModel = *thinkingModel
	cfg.LLMBaseURL = *llmBase
	cfg.WhisperEndpoint = *whisper
	cfg.GoogleSTT = *googleSTT
	cfg.TTSMode = *ttsMode
	cfg.TTSVoice = *ttsVoice
	cfg.SearchEngineID = *engineID
	cfg.RedisAddr = *redisAddr
	cfg.DefaultLocation = *location

	return cfg
}
