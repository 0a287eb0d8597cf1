package audioio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"sync/atomic"
)

// Timeline is a mono PCM16 audio clock and mixer.
//
// Buffers are placed at absolute sample positions. Rendering advances the
// clock; every buffer overlapping the rendered span is mixed in, and buffers
// whose last sample has been rendered fire their ended callback. Timeline
// implements io.Reader so a device player can pull from it directly.
type Timeline struct {
	rate int

	mu     sync.Mutex
	pos    int64
	voices []*timelineVoice
	mix    []int32
	closed bool

	scheduled atomic.Int64
	ended     atomic.Int64
	stopped   atomic.Int64
}

type timelineVoice struct {
	t       *Timeline
	samples []int16
	start   int64
	onEnded func()
	done    bool
}

// NewTimeline creates a timeline clocked at sampleRate.
func NewTimeline(sampleRate int) *Timeline {
	if sampleRate <= 0 {
		sampleRate = PlaybackSampleRate
	}
	return &Timeline{rate: sampleRate}
}

// Now returns the rendered position in seconds.
func (t *Timeline) Now() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.pos) / float64(t.rate)
}

// SampleRate returns the clock rate.
func (t *Timeline) SampleRate() int {
	return t.rate
}

// Name returns "timeline".
func (t *Timeline) Name() string {
	return "timeline"
}

// Play schedules chunk at clock time at (seconds).
func (t *Timeline) Play(chunk AudioChunk, at float64, onEnded func()) (Voice, error) {
	samples := chunk.Samples
	if chunk.SampleRate != 0 && chunk.SampleRate != t.rate {
		samples = Resample(samples, chunk.SampleRate, t.rate)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrOutputClosed
	}

	start := int64(math.Round(at * float64(t.rate)))
	if start < t.pos {
		start = t.pos
	}

	v := &timelineVoice{t: t, samples: samples, start: start, onEnded: onEnded}
	t.voices = append(t.voices, v)
	t.scheduled.Add(1)
	return v, nil
}

// Stop removes the voice without firing its ended callback.
func (v *timelineVoice) Stop() {
	t := v.t
	t.mu.Lock()
	defer t.mu.Unlock()

	if v.done {
		return
	}
	v.done = true
	t.stopped.Add(1)
	for i, other := range t.voices {
		if other == v {
			t.voices = append(t.voices[:i], t.voices[i+1:]...)
			break
		}
	}
}

// Render advances the clock by frames samples and returns the mixed audio.
func (t *Timeline) Render(frames int) []int16 {
	out := make([]int16, frames)
	ended := t.render(out)
	for _, fn := range ended {
		fn()
	}
	return out
}

// Read implements io.Reader, rendering len(p)/2 samples as PCM16 LE.
// It returns io.EOF once the timeline is closed.
func (t *Timeline) Read(p []byte) (int, error) {
	frames := len(p) / 2
	if frames == 0 {
		return 0, nil
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, io.EOF
	}

	out := make([]int16, frames)
	ended := t.render(out)
	for i, s := range out {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(s))
	}
	for _, fn := range ended {
		fn()
	}
	return frames * 2, nil
}

// render mixes into out under the lock and returns ended callbacks to run
// after the lock is released.
func (t *Timeline) render(out []int16) []func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}

	frames := int64(len(out))
	from, to := t.pos, t.pos+frames

	if cap(t.mix) < len(out) {
		t.mix = make([]int32, len(out))
	}
	mix := t.mix[:len(out)]
	for i := range mix {
		mix[i] = 0
	}

	var ended []func()
	kept := t.voices[:0]
	for _, v := range t.voices {
		end := v.start + int64(len(v.samples))
		if v.start < to && end > from {
			lo := max(v.start, from)
			hi := min(end, to)
			for p := lo; p < hi; p++ {
				mix[p-from] += int32(v.samples[p-v.start])
			}
		}
		if end <= to {
			v.done = true
			t.ended.Add(1)
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
			continue
		}
		kept = append(kept, v)
	}
	for i := len(kept); i < len(t.voices); i++ {
		t.voices[i] = nil
	}
	t.voices = kept

	for i, s := range mix {
		switch {
		case s > math.MaxInt16:
			out[i] = math.MaxInt16
		case s < math.MinInt16:
			out[i] = math.MinInt16
		default:
			out[i] = int16(s)
		}
	}

	t.pos = to
	return ended
}

// Pending returns the number of voices scheduled or playing.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.voices)
}

// Close silences all voices and stops the clock.
func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	for _, v := range t.voices {
		v.done = true
		t.stopped.Add(1)
	}
	t.voices = nil
	return nil
}

// Stats returns output statistics.
func (t *Timeline) Stats() OutputStats {
	t.mu.Lock()
	pending := len(t.voices)
	pos := float64(t.pos) / float64(t.rate)
	t.mu.Unlock()

	return OutputStats{
		Scheduled: t.scheduled.Load(),
		Ended:     t.ended.Load(),
		Stopped:   t.stopped.Load(),
		Pending:   pending,
		Position:  pos,
	}
}

// Ensure Timeline implements Output.
var _ Output = (*Timeline)(nil)
