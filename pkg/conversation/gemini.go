package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Gemini implements Transport over a raw websocket to the Gemini Live
// BidiGenerateContent endpoint.
type Gemini struct {
	handlers

	config *Config
	logger *slog.Logger

	mu          sync.RWMutex
	conn        *websocket.Conn
	state       ConnectionState
	connectedAt time.Time

	writeMu sync.Mutex

	// Metrics
	messagesSent       atomic.Int64
	messagesReceived   atomic.Int64
	audioBytesSent     atomic.Int64
	audioBytesReceived atomic.Int64
	errorCount         atomic.Int64
}

// NewGemini creates a Gemini Live transport.
func NewGemini(opts ...Option) (*Gemini, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = GeminiLiveURL
	}

	return &Gemini{
		config: cfg,
		logger: cfg.Logger.With("component", "conversation.gemini"),
		state:  StateDisconnected,
	}, nil
}

// Connect dials the endpoint, sends setup, and waits for setupComplete.
func (g *Gemini) Connect(ctx context.Context, sc SessionConfig) error {
	g.mu.Lock()
	if g.state != StateDisconnected {
		g.mu.Unlock()
		return ErrAlreadyConnected
	}
	g.state = StateConnecting
	g.mu.Unlock()

	conn, err := g.dial(ctx)
	if err != nil {
		g.setState(StateDisconnected)
		return err
	}

	if err := g.handshake(ctx, conn, sc); err != nil {
		_ = conn.Close()
		g.setState(StateDisconnected)
		return err
	}

	g.mu.Lock()
	if g.state != StateConnecting {
		// Closed while the handshake was in flight.
		g.mu.Unlock()
		_ = conn.Close()
		return NewConnectionError("closed during setup", ErrConnectionClosed, false)
	}
	g.conn = conn
	g.state = StateConnected
	g.connectedAt = time.Now()
	g.mu.Unlock()

	go g.readLoop(conn)

	g.logger.Info("connected to Gemini Live",
		"model", modelName(firstNonEmpty(sc.Model, g.config.Model)),
		"language", sc.Language,
	)
	return nil
}

func (g *Gemini) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(g.config.BaseURL)
	if err != nil {
		return nil, NewConnectionError("invalid endpoint", err, false)
	}
	q := u.Query()
	q.Set("key", g.config.APIKey)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{}
	if g.config.Dialer != nil {
		dialer = *g.config.Dialer
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = g.config.Timeout
	}

	g.logger.Debug("dialing Gemini Live", "host", u.Host)

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			apiErr := handshakeError(resp)
			return nil, NewConnectionError("dial", apiErr, apiErr.Temporary())
		}
		return nil, NewConnectionError("dial", err, true)
	}
	return conn, nil
}

// handshake sends setup and blocks until setupComplete, the deadline, or
// ctx cancellation.
func (g *Gemini) handshake(ctx context.Context, conn *websocket.Conn, sc SessionConfig) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	deadline := time.Now().Add(g.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(clientMessage{Setup: newSetup(g.config, sc)}); err != nil {
		return g.setupError(ctx, "send setup", err)
	}
	g.messagesSent.Add(1)

	_ = conn.SetReadDeadline(deadline)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return g.setupError(ctx, "await setup complete", err)
		}
		g.messagesReceived.Add(1)

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			g.logger.Warn("ignoring malformed message during setup", "error", err)
			continue
		}
		if msg.SetupComplete != nil {
			break
		}
	}

	if !stop() {
		return g.setupError(ctx, "await setup complete", ctx.Err())
	}
	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})
	return nil
}

func (g *Gemini) setupError(ctx context.Context, reason string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return NewConnectionError(reason, ctxErr, false)
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return NewConnectionError(reason, closeFrameError(ce), false)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewConnectionError(reason, fmt.Errorf("%w: %v", ErrTimeout, err), true)
	}
	return NewConnectionError(reason, err, true)
}

// readLoop processes server messages until the connection ends.
func (g *Gemini) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			g.handleReadError(conn, err)
			return
		}
		g.messagesReceived.Add(1)

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			g.errorCount.Add(1)
			g.logger.Warn("dropping malformed message",
				"error", fmt.Errorf("%w: %v", ErrInvalidMessage, err),
				"bytes", len(data),
			)
			continue
		}
		g.handleMessage(&msg)
	}
}

func (g *Gemini) handleMessage(msg *serverMessage) {
	if msg.GoAway != nil {
		g.logger.Warn("server is going away", "time_left", msg.GoAway.TimeLeft)
	}
	if msg.ServerContent != nil {
		if n := g.dispatch(msg.ServerContent); n > 0 {
			g.audioBytesReceived.Add(int64(n))
		}
	}
}

func (g *Gemini) handleReadError(conn *websocket.Conn, err error) {
	g.mu.Lock()
	local := g.conn != conn || g.state != StateConnected
	if !local {
		g.state = StateDisconnected
	}
	g.mu.Unlock()

	if local {
		return
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway) {
		g.logger.Info("connection closed by server", "code", ce.Code, "reason", ce.Text)
		g.emitClose(ce.Text)
		return
	}

	g.errorCount.Add(1)
	cause := err
	if ce != nil {
		cause = closeFrameError(ce)
	}
	g.logger.Error("connection lost", "error", cause)
	g.emitError(NewConnectionError("connection lost", cause, IsRetryable(cause)))
}

// SendAudio sends one PCM16 frame as realtime input.
func (g *Gemini) SendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return ErrInvalidAudio
	}

	g.mu.RLock()
	conn := g.conn
	connected := g.state == StateConnected
	g.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	msg := clientMessage{RealtimeInput: &realtimeInput{
		Audio: &blob{MIMEType: audioMIMEType(g.config.InputSampleRate), Data: pcm},
	}}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(g.config.WriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		g.errorCount.Add(1)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	g.messagesSent.Add(1)
	g.audioBytesSent.Add(int64(len(pcm)))
	return nil
}

// Close sends a close frame and closes the connection.
func (g *Gemini) Close() error {
	g.mu.Lock()
	conn := g.conn
	g.conn = nil
	g.state = StateDisconnected
	g.mu.Unlock()

	if conn == nil {
		return nil
	}

	g.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	g.writeMu.Unlock()

	err := conn.Close()
	g.logger.Info("disconnected from Gemini Live",
		"messages_sent", g.messagesSent.Load(),
		"messages_received", g.messagesReceived.Load(),
	)
	return err
}

// IsConnected implements Transport.
func (g *Gemini) IsConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state == StateConnected
}

// State returns the connection state.
func (g *Gemini) State() ConnectionState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Name returns "gemini".
func (g *Gemini) Name() string {
	return "gemini"
}

// Capabilities implements Transport.
func (g *Gemini) Capabilities() Capabilities {
	return Capabilities{
		SupportsInterruption:  true,
		SupportsGrounding:     true,
		SupportsTranscription: true,
		InputSampleRate:       g.config.InputSampleRate,
		OutputSampleRate:      g.config.OutputSampleRate,
	}
}

// Stats returns connection statistics.
func (g *Gemini) Stats() Stats {
	g.mu.RLock()
	connectedAt := g.connectedAt
	g.mu.RUnlock()

	return Stats{
		ConnectedAt:        connectedAt,
		MessagesSent:       g.messagesSent.Load(),
		MessagesReceived:   g.messagesReceived.Load(),
		AudioBytesSent:     g.audioBytesSent.Load(),
		AudioBytesReceived: g.audioBytesReceived.Load(),
		Errors:             g.errorCount.Load(),
	}
}

func (g *Gemini) setState(s ConnectionState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Ensure Gemini implements Transport.
var _ Transport = (*Gemini)(nil)
