// Package config loads the live CLI configuration from a YAML file, the
// environment, and an optional .env file.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-live/internal/httpc"
	"github.com/teslashibe/go-live/pkg/audioio"
	"github.com/teslashibe/go-live/pkg/conversation"
	"github.com/teslashibe/go-live/pkg/session"
)

// Transport names.
const (
	TransportGemini = "gemini"
	TransportGenAI  = "genai"
)

// Config represents the complete CLI configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`
	Audio   AudioConfig   `yaml:"audio"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the channel to the agent.
type APIConfig struct {
	// Key is normally taken from GEMINI_API_KEY rather than the file.
	Key        string        `yaml:"key"`
	Transport  string        `yaml:"transport"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	APIVersion string        `yaml:"api_version"`
	Timeout    time.Duration `yaml:"timeout"`
}

// SessionConfig configures the conversation.
type SessionConfig struct {
	Language string `yaml:"language"`
	Voice    string `yaml:"voice"`

	// Instruction is a template with {{.Language}}. InstructionFile, when
	// set, takes precedence.
	Instruction     string `yaml:"instruction"`
	InstructionFile string `yaml:"instruction_file"`

	GoogleSearch bool `yaml:"google_search"`
	StartMuted   bool `yaml:"start_muted"`
}

// AudioConfig configures both audio directions.
type AudioConfig struct {
	Capture  audioio.Config `yaml:"capture"`
	Playback audioio.Config `yaml:"playback"`
}

// HTTPConfig configures the web surface.
type HTTPConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Address     string `yaml:"address"`
	CORSOrigins string `yaml:"cors_origins"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Transport:  TransportGemini,
			Model:      conversation.DefaultModel,
			APIVersion: conversation.DefaultAPIVersion,
			Timeout:    30 * time.Second,
		},
		Session: SessionConfig{
			Language:     session.DefaultLanguage,
			Voice:        conversation.VoiceZephyr,
			Instruction:  session.DefaultInstruction,
			GoogleSearch: true,
		},
		Audio: AudioConfig{
			Capture:  audioio.DefaultCaptureConfig(),
			Playback: audioio.DefaultPlaybackConfig(),
		},
		HTTP: HTTPConfig{
			Enabled:     true,
			Address:     ":8080",
			CORSOrigins: "*",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration file at path over the defaults, applies
// environment overrides, and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() {
	if key := APIKey(); key != "" {
		c.API.Key = key
	}
	if v, ok := envString(EnvTransport); ok {
		c.API.Transport = v
	}
	if v, ok := envString(EnvModel); ok {
		c.API.Model = v
	}
	if v, ok := envString(EnvLanguage); ok {
		c.Session.Language = v
	}
	if v, ok := envString(EnvVoice); ok {
		c.Session.Voice = v
	}
	if v, ok := envString(EnvHTTPAddr); ok {
		c.HTTP.Address = v
	}
	if v, ok := envString(EnvAudioBackend); ok {
		c.Audio.Capture.Backend = audioio.Backend(v)
		c.Audio.Playback.Backend = audioio.Backend(v)
	}
	if v, ok := envString(EnvLogLevel); ok {
		c.Logging.Level = v
	}
	if v, ok := envBool(EnvGoogleSearch); ok {
		c.Session.GoogleSearch = v
	}
}

// Validate performs validation of the configuration. A missing API key is
// reported when connecting, not here.
func (c *Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api config: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if err := c.Audio.Capture.Validate(); err != nil {
		return fmt.Errorf("audio capture config: %w", err)
	}
	if err := c.Audio.Playback.Validate(); err != nil {
		return fmt.Errorf("audio playback config: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates API configuration.
func (a *APIConfig) Validate() error {
	if a.Transport != TransportGemini && a.Transport != TransportGenAI {
		return fmt.Errorf("transport must be %q or %q, got %q", TransportGemini, TransportGenAI, a.Transport)
	}
	if a.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if a.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %v", a.Timeout)
	}
	return nil
}

// Validate validates session configuration.
func (s *SessionConfig) Validate() error {
	if strings.TrimSpace(s.Language) == "" {
		return fmt.Errorf("language cannot be empty")
	}
	if s.Voice != "" && !conversation.ValidVoice(s.Voice) {
		return fmt.Errorf("voice must be one of %s, got %q", strings.Join(conversation.Voices(), ", "), s.Voice)
	}
	if s.InstructionFile == "" {
		if _, err := session.RenderInstruction(s.Instruction, s.Language); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates HTTP configuration.
func (h *HTTPConfig) Validate() error {
	if h.Enabled && h.Address == "" {
		return fmt.Errorf("http address cannot be empty when HTTP is enabled")
	}
	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, l.Level) {
		return fmt.Errorf("level must be one of debug, info, warn, error, got %q", l.Level)
	}
	return nil
}

// InstructionTemplate returns the system instruction template, reading
// InstructionFile when set.
func (c *Config) InstructionTemplate() (string, error) {
	if c.Session.InstructionFile == "" {
		return c.Session.Instruction, nil
	}
	data, err := os.ReadFile(c.Session.InstructionFile)
	if err != nil {
		return "", fmt.Errorf("failed to read instruction file %s: %w", c.Session.InstructionFile, err)
	}
	return string(data), nil
}

// EngineConfig builds the session engine configuration. Logger and Metrics
// are left for the caller to set.
func (c *Config) EngineConfig() (session.Config, error) {
	instruction, err := c.InstructionTemplate()
	if err != nil {
		return session.Config{}, err
	}

	cfg := session.DefaultConfig()
	cfg.APIKey = c.API.Key
	cfg.Model = c.API.Model
	cfg.Voice = c.Session.Voice
	cfg.Language = c.Session.Language
	cfg.Instruction = instruction
	cfg.GoogleSearch = c.Session.GoogleSearch
	cfg.Capture = c.Audio.Capture
	cfg.Playback = c.Audio.Playback

	switch c.API.Transport {
	case TransportGenAI:
		cfg.NewTransport = session.GenAITransport
	default:
		cfg.NewTransport = session.GeminiTransport
	}

	if c.API.BaseURL != "" {
		cfg.TransportOptions = append(cfg.TransportOptions, conversation.WithBaseURL(c.API.BaseURL))
	}
	if c.API.APIVersion != "" {
		cfg.TransportOptions = append(cfg.TransportOptions, conversation.WithAPIVersion(c.API.APIVersion))
	}
	if c.API.Timeout > 0 {
		cfg.TransportOptions = append(cfg.TransportOptions, conversation.WithTimeout(c.API.Timeout))
	}
	cfg.TransportOptions = append(cfg.TransportOptions,
		conversation.WithHTTPClient(httpc.NewClient(c.API.Timeout)),
		conversation.WithDialer(httpc.NewDialer(c.API.Timeout)),
	)

	if err := cfg.Validate(); err != nil {
		return session.Config{}, err
	}
	return cfg, nil
}
