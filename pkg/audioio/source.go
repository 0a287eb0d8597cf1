package audioio

import (
	"context"
	"errors"
	"io"
)

// ErrDeviceUnavailable indicates the capture or playback device could not be
// opened (missing hardware, permission denied, or no cgo support).
var ErrDeviceUnavailable = errors.New("audioio: device unavailable")

// AudioChunk represents a chunk of mono PCM16 audio.
type AudioChunk struct {
	// Samples contains PCM16 audio samples.
	Samples []int16

	// SampleRate is the sample rate of this chunk.
	SampleRate int

	// Channels is the number of channels in this chunk. Always 1.
	Channels int
}

// NewChunk decodes a PCM16 payload into a mono chunk.
func NewChunk(data []byte, sampleRate int) (AudioChunk, error) {
	samples, err := DecodePCM16(data)
	if err != nil {
		return AudioChunk{}, err
	}
	return AudioChunk{Samples: samples, SampleRate: sampleRate, Channels: 1}, nil
}

// Bytes returns the raw bytes of the audio chunk.
func (c *AudioChunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// Duration returns the duration of this audio chunk in seconds.
func (c *AudioChunk) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// FrameFunc receives one fixed-size capture frame of samples in [-1, 1].
// It is called from the capture thread and must not block.
type FrameFunc func(frame []float32)

// Capture delivers microphone audio as fixed-size float frames.
type Capture interface {
	// Start opens the device and begins delivering frames to fn.
	// Start fails with an error wrapping ErrDeviceUnavailable when the
	// microphone cannot be opened.
	Start(ctx context.Context, fn FrameFunc) error

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "malgo", "mock").
	Name() string

	// Close stops capture and releases the device. It is safe to call
	// Close multiple times.
	io.Closer
}

// CaptureStats contains statistics about an audio capture.
type CaptureStats struct {
	// Frames is the total number of frames delivered.
	Frames int64 `json:"frames"`

	// Running indicates if the capture is currently delivering frames.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}
