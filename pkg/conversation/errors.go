package conversation

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// Sentinel errors for the conversation package.
var (
	ErrMissingAPIKey    = errors.New("conversation: API key is required")
	ErrNotConnected     = errors.New("conversation: not connected")
	ErrAlreadyConnected = errors.New("conversation: already connected")

	// ErrConnectionClosed is returned when a connection closes during setup.
	ErrConnectionClosed = errors.New("conversation: connection closed")

	ErrSendFailed     = errors.New("conversation: send failed")
	ErrInvalidMessage = errors.New("conversation: invalid message")
	ErrTimeout        = errors.New("conversation: operation timed out")
	ErrRateLimited    = errors.New("conversation: rate limited")

	// ErrInvalidAudio is returned by SendAudio for an empty frame.
	ErrInvalidAudio = errors.New("conversation: invalid audio format")
)

// APIError is a rejection from the Live API. The endpoint either refuses
// the websocket upgrade with an HTTP status or ends the session with a
// close frame; exactly one of StatusCode and CloseCode is set.
type APIError struct {
	StatusCode int
	CloseCode  int
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.CloseCode != 0:
		return fmt.Sprintf("conversation: session closed by server (%d): %s", e.CloseCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("conversation: handshake rejected (HTTP %d): %s", e.StatusCode, e.Message)
	default:
		return "conversation: API error: " + e.Message
	}
}

// Temporary reports whether retrying later could succeed: HTTP 429 and 5xx,
// or an internal-error or try-again-later close.
func (e *APIError) Temporary() bool {
	if e.CloseCode != 0 {
		return e.CloseCode == websocket.CloseInternalServerErr || e.CloseCode == websocket.CloseTryAgainLater
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (e *APIError) rateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.CloseCode == websocket.CloseTryAgainLater
}

// handshakeError converts a refused upgrade into an APIError.
func handshakeError(resp *http.Response) *APIError {
	return &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
}

// closeFrameError converts a websocket close frame into an APIError.
func closeFrameError(ce *websocket.CloseError) *APIError {
	msg := ce.Text
	if msg == "" {
		msg = "connection closed by server"
	}
	return &APIError{CloseCode: ce.Code, Message: msg}
}

// ConnectionError wraps a failure of a transport operation such as dial,
// setup, or the read loop.
type ConnectionError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "conversation: " + e.Op
	}
	return fmt.Sprintf("conversation: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NewConnectionError creates a ConnectionError.
func NewConnectionError(op string, err error, retryable bool) *ConnectionError {
	return &ConnectionError{Op: op, Err: err, Retryable: retryable}
}

// IsNotConnected reports whether err means there is no open connection.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrConnectionClosed)
}

// IsRetryable reports whether a new connection attempt could succeed.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr.Retryable
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}

// IsRateLimited reports whether err is a quota rejection.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.rateLimited()
}
