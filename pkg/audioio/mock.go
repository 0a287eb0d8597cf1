package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockCapture is a mock microphone for testing.
// It generates synthetic frames (silence or sine wave) at the real frame
// rate, and tests can inject frames directly with Emit.
type MockCapture struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	fn       FrameFunc
	stopCh   chan struct{}
	startErr error
	generate bool

	frames atomic.Int64

	// Synthetic audio generation
	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0
}

// MockCaptureOption configures a MockCapture.
type MockCaptureOption func(*MockCapture)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockCaptureOption {
	return func(m *MockCapture) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithStartError makes Start fail, simulating a denied microphone.
func WithStartError(err error) MockCaptureOption {
	return func(m *MockCapture) {
		m.startErr = err
	}
}

// WithoutGenerator disables the ticker so only Emit delivers frames.
func WithoutGenerator() MockCaptureOption {
	return func(m *MockCapture) {
		m.generate = false
	}
}

// NewMockCapture creates a new mock capture.
func NewMockCapture(cfg Config, logger *slog.Logger, opts ...MockCaptureOption) *MockCapture {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockCapture{
		cfg:       cfg,
		logger:    logger,
		amplitude: 0.5,
		generate:  true,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins delivering frames.
func (m *MockCapture) Start(ctx context.Context, fn FrameFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.startErr != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, m.startErr)
	}
	if m.running {
		return nil
	}

	m.running = true
	m.fn = fn
	m.stopCh = make(chan struct{})

	if m.generate {
		go m.generateLoop(ctx, m.stopCh)
	}

	m.logger.Info("mock capture started",
		"sample_rate", m.cfg.SampleRate,
		"frame_size", m.cfg.FrameSize,
		"frequency", m.frequency,
	)

	return nil
}

func (m *MockCapture) generateLoop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(m.cfg.FrameDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.Emit(m.generateFrame())
		}
	}
}

func (m *MockCapture) generateFrame() []float32 {
	frame := make([]float32, m.cfg.FrameSize)
	if m.frequency <= 0 {
		return frame
	}

	for i := range frame {
		frame[i] = float32(m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate)))
		m.phase++
		if m.phase >= float64(m.cfg.SampleRate) {
			m.phase = 0
		}
	}
	return frame
}

// Emit delivers frame to the registered callback if capture is running.
// It reports whether the frame was delivered.
func (m *MockCapture) Emit(frame []float32) bool {
	m.mu.Lock()
	fn := m.fn
	running := m.running
	m.mu.Unlock()

	if !running || fn == nil {
		return false
	}
	fn(frame)
	m.frames.Add(1)
	return true
}

// Config returns the audio configuration.
func (m *MockCapture) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockCapture) Name() string {
	return "mock"
}

// Close stops frame delivery.
func (m *MockCapture) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.running {
		m.running = false
		close(m.stopCh)
		m.logger.Info("mock capture stopped")
	}
	m.fn = nil
	return nil
}

// Closed reports whether Close has been called.
func (m *MockCapture) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Stats returns capture statistics.
func (m *MockCapture) Stats() CaptureStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return CaptureStats{
		Frames:  m.frames.Load(),
		Running: running,
		Backend: "mock",
	}
}

// Ensure MockCapture implements Capture.
var _ Capture = (*MockCapture)(nil)

// PacedOutput renders a Timeline in real time without a sound card,
// discarding the mixed audio. It keeps the clock and ended callbacks
// behaving as they would on hardware.
type PacedOutput struct {
	*Timeline

	cfg    Config
	logger *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewPacedOutput creates and starts a paced output.
func NewPacedOutput(cfg Config, logger *slog.Logger) *PacedOutput {
	if logger == nil {
		logger = slog.Default()
	}

	o := &PacedOutput{
		Timeline: NewTimeline(cfg.SampleRate),
		cfg:      cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go o.renderLoop()

	logger.Info("mock output started",
		"sample_rate", cfg.SampleRate,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)
	return o
}

func (o *PacedOutput) renderLoop() {
	defer close(o.doneCh)

	ticker := time.NewTicker(o.cfg.BufferDuration)
	defer ticker.Stop()

	frames := o.cfg.BufferSize()
	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.Timeline.Render(frames)
		}
	}
}

// Name returns "mock".
func (o *PacedOutput) Name() string {
	return "mock"
}

// Close stops the render loop and the timeline.
func (o *PacedOutput) Close() error {
	o.stopOnce.Do(func() {
		close(o.stopCh)
		<-o.doneCh
		o.logger.Info("mock output stopped")
	})
	return o.Timeline.Close()
}

// Ensure PacedOutput implements Output.
var _ Output = (*PacedOutput)(nil)
