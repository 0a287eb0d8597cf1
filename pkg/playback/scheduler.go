// Package playback schedules decoded audio chunks back to back on an output
// clock.
//
// The scheduler keeps a running cursor, the next start time, instead of a
// fixed-size queue. Each chunk starts at max(cursor, now) and advances the
// cursor by its duration, so chunks arriving at irregular intervals still
// play without gaps or overlap.
package playback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/teslashibe/go-live/pkg/audioio"
)

// ErrEmptyChunk is returned when scheduling a chunk with no samples.
var ErrEmptyChunk = errors.New("playback: empty chunk")

// Handle is one scheduled buffer.
type Handle struct {
	// ID is unique per scheduler.
	ID uint64

	// Start is the scheduled start time on the output clock, in seconds.
	Start float64

	// Duration is the buffer length in seconds.
	Duration float64

	// Samples is the number of samples in the buffer.
	Samples int

	voice audioio.Voice
}

// End returns the time the buffer finishes playing.
func (h *Handle) End() float64 {
	return h.Start + h.Duration
}

// EndedFunc is called by the output when a handle finishes playing
// naturally. It is never called for stopped handles.
type EndedFunc func(h *Handle)

// Scheduler places chunks on an audioio.Output.
//
// Scheduler is not tied to a particular event loop, but all mutating calls
// for one session are expected to come from the same serialized owner.
type Scheduler struct {
	output  audioio.Output
	onEnded EndedFunc

	mu     sync.Mutex
	next   float64
	active map[uint64]*Handle
	seq    uint64
}

// NewScheduler creates a scheduler for output. onEnded may be nil.
func NewScheduler(output audioio.Output, onEnded EndedFunc) *Scheduler {
	return &Scheduler{
		output:  output,
		onEnded: onEnded,
		active:  make(map[uint64]*Handle),
	}
}

// Schedule starts chunk at max(NextStartTime, now) and advances the cursor
// by the chunk duration.
func (s *Scheduler) Schedule(chunk audioio.AudioChunk, now float64) (*Handle, error) {
	if len(chunk.Samples) == 0 {
		return nil, ErrEmptyChunk
	}

	s.mu.Lock()
	if now > s.next {
		s.next = now
	}
	s.seq++
	h := &Handle{
		ID:       s.seq,
		Start:    s.next,
		Duration: chunk.Duration(),
		Samples:  len(chunk.Samples),
	}
	s.next += h.Duration
	s.active[h.ID] = h
	s.mu.Unlock()

	voice, err := s.output.Play(chunk, h.Start, func() {
		if s.onEnded != nil {
			s.onEnded(h)
		}
	})
	if err != nil {
		s.mu.Lock()
		delete(s.active, h.ID)
		s.next -= h.Duration
		s.mu.Unlock()
		return nil, fmt.Errorf("play chunk: %w", err)
	}

	s.mu.Lock()
	h.voice = voice
	s.mu.Unlock()
	return h, nil
}

// OnPlaybackEnded removes h from the active set and reports whether the set
// is now empty. Unknown or already removed handles are ignored.
func (s *Scheduler) OnPlaybackEnded(h *Handle) (idle bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h != nil {
		delete(s.active, h.ID)
	}
	return len(s.active) == 0
}

// Interrupt stops every active handle, clears the set, and moves the cursor
// to now.
func (s *Scheduler) Interrupt(now float64) {
	s.mu.Lock()
	voices := make([]audioio.Voice, 0, len(s.active))
	for _, h := range s.active {
		if h.voice != nil {
			voices = append(voices, h.voice)
		}
	}
	s.active = make(map[uint64]*Handle)
	s.next = now
	s.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
}

// Reset stops everything and rewinds the cursor to now. It is used when the
// output is being torn down.
func (s *Scheduler) Reset(now float64) {
	s.Interrupt(now)
}

// Active returns the number of scheduled or playing handles.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStartTime returns the cursor.
func (s *Scheduler) NextStartTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
