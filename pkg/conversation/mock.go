package conversation

import (
	"context"
	"sync"
)

// Mock is a mock implementation of Transport for testing.
type Mock struct {
	handlers

	mu sync.RWMutex

	// State
	connected bool

	// Configurable behavior
	ConnectFunc   func(ctx context.Context, cfg SessionConfig) error
	CloseFunc     func() error
	SendAudioFunc func(pcm []byte) error

	// Captured calls for assertions
	AudioSent     [][]byte
	SessionConfig *SessionConfig
	ConnectCalls  int
	CloseCalls    int
}

// NewMock creates a new Mock transport.
func NewMock() *Mock {
	return &Mock{}
}

// Connect implements Transport.
func (m *Mock) Connect(ctx context.Context, cfg SessionConfig) error {
	m.mu.Lock()
	m.ConnectCalls++
	m.SessionConfig = &cfg
	fn := m.ConnectFunc
	m.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, cfg); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		return ErrAlreadyConnected
	}
	m.connected = true
	return nil
}

// Close implements Transport.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.CloseCalls++
	m.connected = false
	fn := m.CloseFunc
	m.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return nil
}

// IsConnected implements Transport.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// SendAudio implements Transport.
func (m *Mock) SendAudio(pcm []byte) error {
	if m.SendAudioFunc != nil {
		return m.SendAudioFunc(pcm)
	}
	if len(pcm) == 0 {
		return ErrInvalidAudio
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.AudioSent = append(m.AudioSent, pcm)
	return nil
}

// Name returns "mock".
func (m *Mock) Name() string {
	return "mock"
}

// Capabilities implements Transport.
func (m *Mock) Capabilities() Capabilities {
	return Capabilities{
		SupportsInterruption:  true,
		SupportsGrounding:     true,
		SupportsTranscription: true,
		InputSampleRate:       16000,
		OutputSampleRate:      24000,
	}
}

// Test helpers

// SimulateAudio triggers the OnAudio callback.
func (m *Mock) SimulateAudio(pcm []byte) {
	m.emitAudio(pcm)
}

// SimulateTranscript triggers the OnTranscript callback.
func (m *Mock) SimulateTranscript(dir Direction, text string) {
	m.emitTranscript(dir, text)
}

// SimulateTurnComplete triggers the OnTurnComplete callback.
func (m *Mock) SimulateTurnComplete() {
	m.emitTurnComplete()
}

// SimulateGrounding triggers the OnGrounding callback.
func (m *Mock) SimulateGrounding(citations []Citation) {
	m.emitGrounding(citations)
}

// SimulateInterruption triggers the OnInterruption callback.
func (m *Mock) SimulateInterruption() {
	m.emitInterruption()
}

// SimulateClose marks the mock disconnected and triggers OnClose.
func (m *Mock) SimulateClose(reason string) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	m.emitClose(reason)
}

// SimulateError marks the mock disconnected and triggers OnError.
func (m *Mock) SimulateError(err error) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	m.emitError(err)
}

// SentAudio returns a copy of the captured audio frames.
func (m *Mock) SentAudio() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][]byte{}, m.AudioSent...)
}

// Closes returns how many times Close was called.
func (m *Mock) Closes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CloseCalls
}

// LastConfig returns the SessionConfig passed to the last Connect.
func (m *Mock) LastConfig() *SessionConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.SessionConfig
}

// Reset clears all captured data.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AudioSent = nil
	m.SessionConfig = nil
	m.ConnectCalls = 0
	m.CloseCalls = 0
}

// Ensure Mock implements Transport.
var _ Transport = (*Mock)(nil)
