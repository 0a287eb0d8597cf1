package conversation

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// GeminiLiveURL is the Gemini Live BidiGenerateContent websocket endpoint.
	GeminiLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultModel is the native-audio Live model.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"

	// DefaultAPIVersion is used by the genai SDK transport.
	DefaultAPIVersion = "v1beta"
)

// Prebuilt Gemini voices.
const (
	VoicePuck   = "Puck"
	VoiceCharon = "Charon"
	VoiceKore   = "Kore"
	VoiceFenrir = "Fenrir"
	VoiceZephyr = "Zephyr"
)

// Voices returns the selectable prebuilt voices.
func Voices() []string {
	return []string{VoicePuck, VoiceCharon, VoiceKore, VoiceFenrir, VoiceZephyr}
}

// ValidVoice reports whether name is a known prebuilt voice.
func ValidVoice(name string) bool {
	return slices.Contains(Voices(), name)
}

// Config holds configuration for transports.
type Config struct {
	// APIKey is the authentication key for the Live API.
	APIKey string

	// Model is the Live model to use. SessionConfig.Model overrides it.
	Model string

	// Voice is the default prebuilt voice.
	Voice string

	// BaseURL overrides the websocket endpoint. For the Gemini transport it
	// is the full BidiGenerateContent URL; for the genai transport it is the
	// SDK base URL.
	BaseURL string

	// APIVersion is the API version used by the genai transport.
	APIVersion string

	// InputSampleRate is the rate of audio sent to the agent in Hz.
	InputSampleRate int

	// OutputSampleRate is the rate of audio received from the agent in Hz.
	OutputSampleRate int

	// Timeout bounds dialing and waiting for setup to complete.
	Timeout time.Duration

	// WriteTimeout bounds each outbound message.
	WriteTimeout time.Duration

	// HTTPClient is used by the genai transport for REST calls.
	HTTPClient *http.Client

	// Dialer is used by the Gemini transport. Nil uses a default dialer.
	Dialer *websocket.Dialer

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Model:            DefaultModel,
		Voice:            VoiceZephyr,
		APIVersion:       DefaultAPIVersion,
		InputSampleRate:  16000,
		OutputSampleRate: 24000,
		Timeout:          30 * time.Second,
		WriteTimeout:     10 * time.Second,
		Logger:           slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Voice != "" && !ValidVoice(c.Voice) {
		return fmt.Errorf("conversation: unknown voice %q", c.Voice)
	}
	if c.InputSampleRate <= 0 || c.OutputSampleRate <= 0 {
		return fmt.Errorf("conversation: sample rates must be positive")
	}
	return nil
}

// Option is a functional option for configuring transports.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithModel sets the Live model.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithVoice sets the default voice.
func WithVoice(voice string) Option {
	return func(c *Config) {
		c.Voice = voice
	}
}

// WithBaseURL sets the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithAPIVersion sets the API version for the genai transport.
func WithAPIVersion(version string) Option {
	return func(c *Config) {
		c.APIVersion = version
	}
}

// WithInputSampleRate sets the outbound audio sample rate.
func WithInputSampleRate(rate int) Option {
	return func(c *Config) {
		c.InputSampleRate = rate
	}
}

// WithOutputSampleRate sets the inbound audio sample rate.
func WithOutputSampleRate(rate int) Option {
	return func(c *Config) {
		c.OutputSampleRate = rate
	}
}

// WithTimeout sets the connect and setup timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithWriteTimeout sets the per-message write timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.WriteTimeout = d
	}
}

// WithHTTPClient sets the HTTP client for the genai transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithDialer sets the websocket dialer for the Gemini transport.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Config) {
		c.Dialer = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// newConfig builds a validated config from options.
func newConfig(opts []Option) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return cfg, nil
}
