package audioio

import (
	"errors"
	"io"
)

// ErrOutputClosed is returned when scheduling on a closed output.
var ErrOutputClosed = errors.New("audioio: output closed")

// Clock is an audio clock. Now reports the playback position in seconds and
// advances only as the device consumes audio.
type Clock interface {
	Now() float64
}

// Voice is one scheduled buffer on an Output.
type Voice interface {
	// Stop silences the buffer immediately. The ended callback passed to
	// Play is not invoked for a stopped voice. Safe to call more than once.
	Stop()
}

// Output plays scheduled buffers against its own audio clock.
type Output interface {
	Clock

	// Play schedules chunk to start at the given clock time. A start time
	// already in the past starts the chunk immediately. onEnded is called
	// once, off the output's lock, when the chunk has been fully rendered.
	Play(chunk AudioChunk, at float64, onEnded func()) (Voice, error)

	// SampleRate is the rate of the output clock.
	SampleRate() int

	// Name returns the backend name (e.g., "oto", "mock").
	Name() string

	// Close stops the clock, silences every voice, and releases the device.
	// It is safe to call Close multiple times.
	io.Closer
}

// OutputStats contains statistics about an audio output.
type OutputStats struct {
	// Scheduled is the total number of buffers scheduled.
	Scheduled int64 `json:"scheduled"`

	// Ended is the total number of buffers played to completion.
	Ended int64 `json:"ended"`

	// Stopped is the total number of buffers stopped early.
	Stopped int64 `json:"stopped"`

	// Pending is the number of buffers currently scheduled or playing.
	Pending int `json:"pending"`

	// Position is the clock position in seconds.
	Position float64 `json:"position"`
}
