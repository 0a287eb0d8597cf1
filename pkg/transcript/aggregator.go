// Package transcript accumulates streamed transcription fragments and turns
// them into finalized conversation turns.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Speaker identifies which side of the conversation produced text.
type Speaker string

const (
	// Local is the microphone side (the user).
	Local Speaker = "local"
	// Remote is the agent side.
	Remote Speaker = "remote"
)

// Valid reports whether s is a known speaker.
func (s Speaker) Valid() bool {
	return s == Local || s == Remote
}

// Turn is one finalized utterance. Turns are immutable once emitted.
type Turn struct {
	ID        string    `json:"id"`
	Order     int       `json:"order"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Complete  bool      `json:"complete"`
	CreatedAt time.Time `json:"created_at"`
}

// Aggregator holds one in-progress accumulator per speaker.
type Aggregator struct {
	mu     sync.Mutex
	local  strings.Builder
	remote strings.Builder
	order  int
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Append adds text to the speaker's accumulator. Unknown speakers are ignored.
func (a *Aggregator) Append(speaker Speaker, text string) {
	if text == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch speaker {
	case Local:
		a.local.WriteString(text)
	case Remote:
		a.remote.WriteString(text)
	}
}

// CompleteTurn finalizes both accumulators. A nil turn is returned for an
// empty accumulator. When both are present the local turn is ordered first.
func (a *Aggregator) CompleteTurn() (local, remote *Turn) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if a.local.Len() > 0 {
		local = a.newTurn(Local, a.local.String(), now)
	}
	if a.remote.Len() > 0 {
		remote = a.newTurn(Remote, a.remote.String(), now)
	}
	a.local.Reset()
	a.remote.Reset()
	return local, remote
}

func (a *Aggregator) newTurn(speaker Speaker, text string, now time.Time) *Turn {
	a.order++
	return &Turn{
		ID:        uuid.NewString(),
		Order:     a.order,
		Speaker:   speaker,
		Text:      text,
		Complete:  true,
		CreatedAt: now,
	}
}

// DiscardRemote drops the remote accumulator without emitting a turn.
func (a *Aggregator) DiscardRemote() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.remote.Reset()
}

// Pending returns the current accumulator text for speaker.
func (a *Aggregator) Pending(speaker Speaker) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch speaker {
	case Local:
		return a.local.String()
	case Remote:
		return a.remote.String()
	}
	return ""
}

// Reset clears both accumulators. The order counter keeps counting so turn
// order stays monotonic across sessions of the same engine.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.local.Reset()
	a.remote.Reset()
}
