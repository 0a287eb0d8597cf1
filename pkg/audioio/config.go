// Package audioio provides microphone capture, speaker output, and the PCM
// helpers shared by both directions of a live voice session.
//
// This package supports two backends:
//   - Device - miniaudio capture (malgo) and oto playback, requires cgo
//   - Mock - synthetic capture and a wall-clock paced output for CI/Testing
//
// Playback is built on Timeline, a pure-Go audio clock and mixer. Buffers are
// scheduled at absolute positions on the clock rather than queued, so the
// device backend only has to pull rendered frames from it.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects the device backend when cgo is available, mock otherwise.
	BackendAuto Backend = "auto"
	// BackendDevice uses the host sound card (malgo for capture, oto for playback).
	BackendDevice Backend = "device"
	// BackendMock uses synthetic capture and a paced in-memory output.
	BackendMock Backend = "mock"
)

// Standard session rates.
const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000

	// DefaultFrameSize matches the 4096-sample capture callback of browser
	// script processors, roughly 256ms at 16 kHz.
	DefaultFrameSize = 4096
)

// Config holds audio configuration for one direction (capture or playback).
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the rate delivered to (capture) or consumed from (playback)
	// the session, in Hz.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// DeviceSampleRate is the rate the hardware is opened at. Zero means the
	// same as SampleRate. Capture resamples when the two differ.
	DeviceSampleRate int `yaml:"device_sample_rate" json:"device_sample_rate"`

	// Channels is the number of audio channels. Only mono is supported.
	Channels int `yaml:"channels" json:"channels"`

	// FrameSize is the number of samples per capture frame.
	FrameSize int `yaml:"frame_size" json:"frame_size"`

	// BufferDuration is the device buffer size for playback and the render
	// period of the mock output.
	// Default: 20ms
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is an optional device name substring. Empty selects the
	// system default.
	Device string `yaml:"device" json:"device"`
}

// DefaultCaptureConfig returns the microphone configuration (16 kHz mono).
func DefaultCaptureConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     CaptureSampleRate,
		Channels:       1,
		FrameSize:      DefaultFrameSize,
		BufferDuration: 20 * time.Millisecond,
	}
}

// DefaultPlaybackConfig returns the speaker configuration (24 kHz mono).
func DefaultPlaybackConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     PlaybackSampleRate,
		Channels:       1,
		FrameSize:      DefaultFrameSize,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.DeviceSampleRate < 0 {
		return fmt.Errorf("device_sample_rate must not be negative, got %d", c.DeviceSampleRate)
	}
	if c.Channels != 1 {
		return fmt.Errorf("channels must be 1, got %d", c.Channels)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("frame_size must be positive, got %d", c.FrameSize)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	switch c.Backend {
	case BackendAuto, BackendDevice, BackendMock, "":
	default:
		return fmt.Errorf("unsupported backend: %s", c.Backend)
	}
	return nil
}

// HardwareRate returns the rate the device is opened at.
func (c *Config) HardwareRate() int {
	if c.DeviceSampleRate > 0 {
		return c.DeviceSampleRate
	}
	return c.SampleRate
}

// BufferSize returns the number of samples per device buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// FrameDuration returns the wall-clock length of one capture frame.
func (c *Config) FrameDuration() time.Duration {
	return time.Duration(float64(c.FrameSize) / float64(c.SampleRate) * float64(time.Second))
}
