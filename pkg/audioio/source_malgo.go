//go:build cgo

package audioio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// MalgoCapture captures microphone audio through miniaudio.
type MalgoCapture struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	framer  *framer
	running bool
	closed  bool

	frames atomic.Int64
}

// newDeviceCapture creates a miniaudio capture.
func newDeviceCapture(cfg Config, logger *slog.Logger) (Capture, error) {
	return &MalgoCapture{
		cfg:    cfg,
		logger: logger,
		framer: newFramer(cfg.FrameSize),
	}, nil
}

// Start opens the default (or configured) microphone and starts capture.
func (c *MalgoCapture) Start(ctx context.Context, fn FrameFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return io.ErrClosedPipe
	}
	if c.running {
		return nil
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("%w: init context: %v", ErrDeviceUnavailable, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(c.cfg.HardwareRate())
	deviceConfig.PeriodSizeInMilliseconds = uint32(c.cfg.BufferDuration.Milliseconds())

	if c.cfg.Device != "" {
		id, err := findCaptureDevice(mctx, c.cfg.Device)
		if err != nil {
			_ = mctx.Uninit()
			mctx.Free()
			return err
		}
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	deviceRate, sessionRate := c.cfg.HardwareRate(), c.cfg.SampleRate
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			samples := make([]float32, len(input)/4)
			for i := range samples {
				samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
			}
			samples = ResampleFloat32(samples, deviceRate, sessionRate)
			c.framer.push(samples, func(frame []float32) {
				c.frames.Add(1)
				fn(frame)
			})
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("%w: open microphone: %v", ErrDeviceUnavailable, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("%w: start microphone: %v", ErrDeviceUnavailable, err)
	}

	c.ctx = mctx
	c.device = device
	c.running = true

	c.logger.Info("microphone capture started",
		"device_rate", deviceRate,
		"sample_rate", sessionRate,
		"frame_size", c.cfg.FrameSize,
	)
	return nil
}

func findCaptureDevice(mctx *malgo.AllocatedContext, name string) (malgo.DeviceID, error) {
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("%w: list devices: %v", ErrDeviceUnavailable, err)
	}
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(name)) {
			return info.ID, nil
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("%w: no capture device matching %q", ErrDeviceUnavailable, name)
}

// Config returns the audio configuration.
func (c *MalgoCapture) Config() Config {
	return c.cfg
}

// Name returns "malgo".
func (c *MalgoCapture) Name() string {
	return "malgo"
}

// Close stops the device and releases the miniaudio context.
func (c *MalgoCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.running = false

	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}

	c.logger.Info("microphone capture stopped", "frames", c.frames.Load())
	return nil
}

// Stats returns capture statistics.
func (c *MalgoCapture) Stats() CaptureStats {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()

	return CaptureStats{
		Frames:  c.frames.Load(),
		Running: running,
		Backend: "malgo",
	}
}

// Ensure MalgoCapture implements Capture.
var _ Capture = (*MalgoCapture)(nil)

func deviceSupported() bool { return true }
