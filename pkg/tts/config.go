package tts

import (
	"log/slog"
	"time"
)

// Config holds provider configuration.
type Config struct {
	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL overrides the provider's default endpoint.
	BaseURL string

	// VoiceID selects the voice.
	VoiceID string

	// ModelID selects the synthesis model.
	ModelID string

	// OutputFormat is the requested audio encoding.
	OutputFormat Encoding

	// Timeout bounds each synthesis request.
	Timeout time.Duration

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Option is a functional option for configuring providers.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithVoice sets the voice ID.
func WithVoice(id string) Option {
	return func(c *Config) { c.VoiceID = id }
}

// WithModel sets the synthesis model.
func WithModel(id string) Option {
	return func(c *Config) { c.ModelID = id }
}

// WithOutputFormat sets the requested encoding.
func WithOutputFormat(enc Encoding) Option {
	return func(c *Config) { c.OutputFormat = enc }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns synthesis defaults.
func DefaultConfig() *Config {
	return &Config{
		OutputFormat: EncodingPCM24k,
		Timeout:      30 * time.Second,
		Logger:       slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}
