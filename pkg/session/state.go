package session

import (
	"fmt"

	"github.com/teslashibe/go-live/pkg/conversation"
	"github.com/teslashibe/go-live/pkg/transcript"
)

// Status is the lifecycle phase of the engine.
type Status int

const (
	// StatusIdle means no session is open.
	StatusIdle Status = iota
	// StatusConnecting means devices and the channel are being opened.
	StatusConnecting
	// StatusActive means audio is streaming in both directions.
	StatusActive
	// StatusClosing means the session is being torn down.
	StatusClosing
	// StatusErrored means the session failed and is being torn down.
	// The engine settles on StatusIdle with State.Error kept.
	StatusErrored
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusActive:
		return "active"
	case StatusClosing:
		return "closing"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for st := StatusIdle; st <= StatusErrored; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("session: unknown status %q", text)
}

// State is a snapshot of the engine.
type State struct {
	Status    Status  `json:"status"`
	Muted     bool    `json:"muted"`
	Speaking  bool    `json:"speaking"`
	Activity  float64 `json:"activity"`
	Error     string  `json:"error,omitempty"`
	Language  string  `json:"language,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
}

// Connected reports whether audio is streaming.
func (s State) Connected() bool {
	return s.Status == StatusActive
}

// GroundingReference is a web source the agent cited.
type GroundingReference struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

func groundingFrom(cites []conversation.Citation) []GroundingReference {
	refs := make([]GroundingReference, 0, len(cites))
	for _, c := range cites {
		refs = append(refs, GroundingReference{URI: c.URI, Title: c.Title})
	}
	return refs
}

// EventType identifies a change notification.
type EventType string

const (
	// EventState carries a new State snapshot.
	EventState EventType = "state"
	// EventTurn carries a finalized transcript turn.
	EventTurn EventType = "turn"
	// EventGrounding carries the replaced grounding set.
	EventGrounding EventType = "grounding"
)

// Event is a change notification delivered to subscribers.
type Event struct {
	Type      EventType            `json:"type"`
	State     *State               `json:"state,omitempty"`
	Turn      *transcript.Turn     `json:"turn,omitempty"`
	Grounding []GroundingReference `json:"grounding,omitempty"`
}

// speakerFor maps a transcription direction to a transcript speaker.
func speakerFor(dir conversation.Direction) (transcript.Speaker, bool) {
	switch dir {
	case conversation.DirectionInput:
		return transcript.Local, true
	case conversation.DirectionOutput:
		return transcript.Remote, true
	}
	return "", false
}
