package conversation

import (
	"context"
	"time"
)

// ConnectionState represents the transport connection state.
type ConnectionState int

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates the connection or setup handshake is in progress.
	StateConnecting
	// StateConnected indicates setup completed and the channel is open.
	StateConnected
)

// String returns a human-readable connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Direction tells which side of the conversation a transcription belongs to.
type Direction string

const (
	// DirectionInput is the transcription of audio sent to the agent.
	DirectionInput Direction = "input"
	// DirectionOutput is the transcription of the agent's speech.
	DirectionOutput Direction = "output"
)

// Citation is a web source the agent grounded its answer on.
type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// SessionConfig is the per-session setup sent when the channel opens.
type SessionConfig struct {
	// Language is the conversation language, interpolated into the
	// system instruction by the caller.
	Language string

	// Model overrides Config.Model when set.
	Model string

	// Voice overrides Config.Voice when set.
	Voice string

	// SystemInstruction is the agent persona.
	SystemInstruction string

	// InputTranscription enables transcription of outbound audio.
	InputTranscription bool

	// OutputTranscription enables transcription of the agent's speech.
	OutputTranscription bool

	// GoogleSearch enables the search grounding tool.
	GoogleSearch bool
}

// Capabilities describes what a transport supports.
type Capabilities struct {
	// SupportsInterruption indicates the agent signals barge-in.
	SupportsInterruption bool

	// SupportsGrounding indicates citations are delivered.
	SupportsGrounding bool

	// SupportsTranscription indicates input/output transcription.
	SupportsTranscription bool

	// InputSampleRate is the expected audio input sample rate (Hz).
	InputSampleRate int

	// OutputSampleRate is the audio output sample rate (Hz).
	OutputSampleRate int
}

// Stats tracks connection and usage statistics.
type Stats struct {
	// ConnectedAt is when setup completed.
	ConnectedAt time.Time `json:"connected_at"`

	// MessagesSent is the total messages sent.
	MessagesSent int64 `json:"messages_sent"`

	// MessagesReceived is the total messages received.
	MessagesReceived int64 `json:"messages_received"`

	// AudioBytesSent is the total audio bytes sent.
	AudioBytesSent int64 `json:"audio_bytes_sent"`

	// AudioBytesReceived is the total audio bytes received.
	AudioBytesReceived int64 `json:"audio_bytes_received"`

	// Errors is the total errors encountered.
	Errors int64 `json:"errors"`
}

// Transport is a bidirectional channel to a live conversational agent.
//
// Callbacks must be registered before Connect. They are invoked from the
// transport's receive goroutine in arrival order and must not block.
type Transport interface {
	// Connect opens the channel and sends the session setup. It returns
	// once the agent confirms setup is complete.
	Connect(ctx context.Context, cfg SessionConfig) error

	// SendAudio streams one PCM16 LE frame at the input sample rate.
	SendAudio(pcm []byte) error

	// Close closes the channel. Callbacks are not invoked for a local close.
	// It is safe to call Close multiple times.
	Close() error

	// IsConnected returns true if setup completed and the channel is open.
	IsConnected() bool

	// Name returns the transport name (e.g., "gemini", "genai", "mock").
	Name() string

	// Capabilities returns transport capabilities.
	Capabilities() Capabilities

	// OnAudio is called with each PCM16 LE audio payload from the agent.
	OnAudio(fn func(pcm []byte))

	// OnTranscript is called with each transcription fragment.
	OnTranscript(fn func(dir Direction, text string))

	// OnTurnComplete is called when the agent finishes its turn.
	OnTurnComplete(fn func())

	// OnGrounding is called with the citation set of the current answer.
	OnGrounding(fn func(citations []Citation))

	// OnInterruption is called when the user barges in on the agent.
	OnInterruption(fn func())

	// OnClose is called when the agent closes the channel normally.
	OnClose(fn func(reason string))

	// OnError is called when the channel fails after setup.
	OnError(fn func(err error))
}
