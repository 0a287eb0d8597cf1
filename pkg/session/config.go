package session

import (
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/teslashibe/go-live/pkg/audioio"
	"github.com/teslashibe/go-live/pkg/conversation"
	"github.com/teslashibe/go-live/pkg/metrics"
)

// DefaultInstruction is the persona sent as the system instruction.
// {{.Language}} is replaced with the language passed to Connect.
const DefaultInstruction = `You are a friendly, energetic and knowledgeable live news anchor.

Instructions:
1. Speak primarily in {{.Language}}. If the user switches to English you may answer in English, but stay in character.
2. When asked about news or current events, always use Google Search to find the latest updates from reliable sources.
3. Be polite and clear, and keep answers short enough for a spoken conversation.

Start the conversation by introducing yourself.`

// DefaultLanguage is used when Connect is given an empty language.
const DefaultLanguage = "English"

// TransportFactory creates the channel to the agent for one session.
type TransportFactory func(opts ...conversation.Option) (conversation.Transport, error)

// CaptureFactory opens a microphone.
type CaptureFactory func(cfg audioio.Config, logger *slog.Logger) (audioio.Capture, error)

// OutputFactory opens a speaker.
type OutputFactory func(cfg audioio.Config, logger *slog.Logger) (audioio.Output, error)

// GeminiTransport creates a raw websocket Gemini Live transport.
func GeminiTransport(opts ...conversation.Option) (conversation.Transport, error) {
	return conversation.NewGemini(opts...)
}

// GenAITransport creates a Gemini Live transport backed by the genai SDK.
func GenAITransport(opts ...conversation.Option) (conversation.Transport, error) {
	return conversation.NewGenAI(opts...)
}

// Config holds configuration for the engine.
type Config struct {
	// APIKey authenticates the transport. It is checked at Connect time.
	APIKey string

	// Model and Voice are passed to the transport.
	Model string
	Voice string

	// Language is used when Connect is called with an empty language.
	Language string

	// Instruction is a text/template for the system instruction.
	Instruction string

	// GoogleSearch enables the search tool so answers carry citations.
	GoogleSearch bool

	// Capture and Playback configure the audio devices.
	Capture  audioio.Config
	Playback audioio.Config

	// FrameQueue is the number of encoded capture frames buffered between
	// the capture callback and the sender. Frames beyond it are dropped.
	FrameQueue int

	// EventBuffer is the number of transport events buffered per session.
	EventBuffer int

	// TransportOptions are appended to the options the engine builds.
	TransportOptions []conversation.Option

	NewTransport TransportFactory
	NewCapture   CaptureFactory
	NewOutput    OutputFactory

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:        conversation.DefaultModel,
		Voice:        conversation.VoiceZephyr,
		Language:     DefaultLanguage,
		Instruction:  DefaultInstruction,
		GoogleSearch: true,
		Capture:      audioio.DefaultCaptureConfig(),
		Playback:     audioio.DefaultPlaybackConfig(),
		FrameQueue:   32,
		EventBuffer:  256,
		NewTransport: GeminiTransport,
		NewCapture:   audioio.NewCapture,
		NewOutput:    audioio.NewOutput,
	}
}

// Validate checks the configuration. A missing API key is not an error
// here; Connect reports it.
func (c *Config) Validate() error {
	if c.Voice != "" && !conversation.ValidVoice(c.Voice) {
		return fmt.Errorf("session: unknown voice %q (want one of %s)",
			c.Voice, strings.Join(conversation.Voices(), ", "))
	}
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("session: capture: %w", err)
	}
	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("session: playback: %w", err)
	}
	if _, err := parseInstruction(c.Instruction); err != nil {
		return err
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.Instruction == "" {
		c.Instruction = d.Instruction
	}
	if c.Capture.SampleRate == 0 {
		c.Capture = d.Capture
	}
	if c.Playback.SampleRate == 0 {
		c.Playback = d.Playback
	}
	if c.FrameQueue <= 0 {
		c.FrameQueue = d.FrameQueue
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	if c.NewTransport == nil {
		c.NewTransport = d.NewTransport
	}
	if c.NewCapture == nil {
		c.NewCapture = d.NewCapture
	}
	if c.NewOutput == nil {
		c.NewOutput = d.NewOutput
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func parseInstruction(text string) (*template.Template, error) {
	tmpl, err := template.New("instruction").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("session: invalid instruction template: %w", err)
	}
	return tmpl, nil
}

// RenderInstruction renders an instruction template for language.
func RenderInstruction(text, language string) (string, error) {
	tmpl, err := parseInstruction(text)
	if err != nil {
		return "", err
	}
	return execInstruction(tmpl, language)
}

func execInstruction(tmpl *template.Template, language string) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, struct{ Language string }{language}); err != nil {
		return "", fmt.Errorf("session: render instruction: %w", err)
	}
	return b.String(), nil
}
