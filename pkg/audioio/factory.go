package audioio

import (
	"fmt"
	"log/slog"
)

// NewCapture creates a new microphone capture with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func NewCapture(cfg Config, logger *slog.Logger) (Capture, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := resolveBackend(cfg.Backend)

	logger.Info("creating audio capture",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"frame_size", cfg.FrameSize,
	)

	switch backend {
	case BackendMock:
		return NewMockCapture(cfg, logger), nil
	case BackendDevice:
		return newDeviceCapture(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// NewOutput creates a new speaker output with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func NewOutput(cfg Config, logger *slog.Logger) (Output, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := resolveBackend(cfg.Backend)

	logger.Info("creating audio output",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewPacedOutput(cfg, logger), nil
	case BackendDevice:
		return newDeviceOutput(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

func resolveBackend(b Backend) Backend {
	if b == BackendAuto || b == "" {
		return detectBestBackend()
	}
	return b
}

// detectBestBackend returns the best available backend for this build.
func detectBestBackend() Backend {
	if deviceSupported() {
		return BackendDevice
	}
	return BackendMock
}

// AvailableBackends returns the list of backends available in this build.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock}
	if deviceSupported() {
		backends = append(backends, BackendDevice)
	}
	return backends
}
