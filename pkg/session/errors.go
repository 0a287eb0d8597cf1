package session

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-live/pkg/audioio"
)

// Sentinel errors for the session package.
var (
	// ErrMissingCredential indicates no API key is configured.
	ErrMissingCredential = errors.New("session: API key not found")

	// ErrAlreadyConnected indicates a session is connecting or active.
	ErrAlreadyConnected = errors.New("session: already connected")

	// ErrDeviceAccess indicates the microphone or speaker could not be opened.
	ErrDeviceAccess = errors.New("session: device access failed")

	// ErrTransport indicates the channel to the agent failed.
	ErrTransport = errors.New("session: transport failed")

	// ErrConnectCancelled indicates Disconnect was called while connecting.
	ErrConnectCancelled = errors.New("session: connect cancelled")

	// ErrMalformedAudio is returned for PCM16 payloads of odd length.
	ErrMalformedAudio = audioio.ErrMalformedAudio
)

// DeviceAccessError reports a failure to open an audio device.
type DeviceAccessError struct {
	// Device is "capture" or "output".
	Device string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *DeviceAccessError) Error() string {
	return fmt.Sprintf("session: cannot open %s device: %v", e.Device, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceAccessError) Unwrap() error {
	return e.Err
}

// Is matches ErrDeviceAccess.
func (e *DeviceAccessError) Is(target error) bool {
	return target == ErrDeviceAccess
}

// TransportError reports a failure of the agent channel.
type TransportError struct {
	// Op is the operation that failed ("create", "connect", "runtime").
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("session: transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is matches ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// IsDeviceAccess returns true if err is a device failure.
func IsDeviceAccess(err error) bool {
	return errors.Is(err, ErrDeviceAccess)
}

// IsTransport returns true if err is a transport failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// errorKind labels err for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredential):
		return "credential"
	case errors.Is(err, ErrDeviceAccess):
		return "device"
	case errors.Is(err, ErrConnectCancelled):
		return "cancelled"
	default:
		return "transport"
	}
}
