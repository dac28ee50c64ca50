// Package app assembles the assistant: audio pipeline, providers,
// orchestrator, and dashboard, with a defined init/run/teardown
// lifecycle.
package app

import (
	"os"
	"path/filepath"
)

// Config holds all application configuration. Flag parsing is done in
// cmd/parley/main.go; this struct is data only.
type Config struct {
	// Debug enables verbose logging.
	Debug bool

	// Addr is the dashboard listen address.
	Addr string

	// StorePath is the session store file.
	StorePath string

	// Model configuration.
	LLMBaseURL    string
	ChatModel     string
	ThinkingModel string

	// Transcription.
	WhisperEndpoint string
	GoogleSTT       bool

	// Synthesis: "openai" or "elevenlabs".
	TTSMode  string
	TTSVoice string

	// Web search.
	SearchEngineID string

	// Capture archive; empty disables Redis.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// DefaultLocation for weather queries naming no place.
	DefaultLocation string

	// API keys, typically from environment variables.
	OpenAIKey     string
	ElevenLabsKey string
	GoogleAPIKey  string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}
	return Config{
		Addr:            ":8181",
		StorePath:       filepath.Join(home, ".parley", "sessions.json"),
		ChatModel:       "gpt-4o-mini",
		ThinkingModel:   "gpt-4o-mini",
		WhisperEndpoint: "http://localhost:8771",
		TTSMode:         "openai",
		DefaultLocation: "Oslo",
	}
}

// LoadEnvConfig applies environment overrides. Call after flag parsing.
func (c *Config) LoadEnvConfig() {
	c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.ElevenLabsKey = os.Getenv("ELEVENLABS_API_KEY")
	c.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")

	if v := os.Getenv("PARLEY_LLM_BASE_URL"); v != "" {
		c.LLMBaseURL = v
	}
	if v := os.Getenv("PARLEY_WHISPER_ENDPOINT"); v != "" {
		c.WhisperEndpoint = v
	}
	if v := os.Getenv("PARLEY_SEARCH_ENGINE_ID"); v != "" {
		c.SearchEngineID = v
	}
	if v := os.Getenv("PARLEY_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if c.TTSVoice == "" {
		c.TTSVoice = os.Getenv("ELEVENLABS_VOICE_ID")
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.OpenAIKey == "" {
		return &ConfigError{Field: "OpenAIKey", Message: "OPENAI_API_KEY environment variable is required"}
	}
	if c.TTSMode == "elevenlabs" {
		if c.ElevenLabsKey == "" {
			return &ConfigError{Field: "ElevenLabsKey", Message: "ELEVENLABS_API_KEY is required for ElevenLabs synthesis"}
		}
		if c.TTSVoice == "" {
			return &ConfigError{Field: "TTSVoice", Message: "ELEVENLABS_VOICE_ID is required for ElevenLabs synthesis"}
		}
	}
	return nil
}

// ConfigError is a configuration validation failure.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
