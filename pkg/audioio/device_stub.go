//go:build !cgo

package audioio

import (
	"fmt"
	"log/slog"
)

// newDeviceCapture returns an error when built without cgo.
func newDeviceCapture(cfg Config, logger *slog.Logger) (Capture, error) {
	return nil, fmt.Errorf("%w: device capture requires cgo", ErrDeviceUnavailable)
}

// newDeviceOutput returns an error when built without cgo.
func newDeviceOutput(cfg Config, logger *slog.Logger) (Output, error) {
	return nil, fmt.Errorf("%w: device output requires cgo", ErrDeviceUnavailable)
}

func deviceSupported() bool { return false }
