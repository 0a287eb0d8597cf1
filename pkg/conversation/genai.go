package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"
)

// GenAI implements Transport on top of the google.golang.org/genai Live
// client. It speaks the same protocol as Gemini but lets the SDK own the
// wire format.
type GenAI struct {
	handlers

	config *Config
	logger *slog.Logger

	mu          sync.RWMutex
	session     *genai.Session
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

// NewGenAI creates a genai SDK transport.
func NewGenAI(opts ...Option) (*GenAI, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}

	return &GenAI{
		config: cfg,
		logger: cfg.Logger.With("component", "conversation.genai"),
		state:  StateDisconnected,
	}, nil
}

// Connect opens a Live session and waits for setup to complete.
func (g *GenAI) Connect(ctx context.Context, sc SessionConfig) error {
	g.mu.Lock()
	if g.state != StateDisconnected {
		g.mu.Unlock()
		return ErrAlreadyConnected
	}
	g.state = StateConnecting
	g.mu.Unlock()

	session, err := g.open(ctx, sc)
	if err != nil {
		g.setState(StateDisconnected)
		return err
	}

	g.mu.Lock()
	if g.state != StateConnecting {
		g.mu.Unlock()
		_ = session.Close()
		return NewConnectionError("closed during setup", ErrConnectionClosed, false)
	}
	g.session = session
	g.state = StateConnected
	g.connectedAt = time.Now()
	g.mu.Unlock()

	go g.receiveLoop(session)

	g.logger.Info("connected to Live API via genai",
		"model", firstNonEmpty(sc.Model, g.config.Model),
		"language", sc.Language,
	)
	return nil
}

func (g *GenAI) open(ctx context.Context, sc SessionConfig) (*genai.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     g.config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.config.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    g.config.BaseURL,
			APIVersion: g.config.APIVersion,
		},
	})
	if err != nil {
		return nil, NewConnectionError("create client", err, false)
	}

	model := firstNonEmpty(sc.Model, g.config.Model)
	session, err := client.Live.Connect(ctx, model, g.liveConfig(sc))
	if err != nil {
		return nil, NewConnectionError("dial failed", err, true)
	}

	stop := context.AfterFunc(ctx, func() { _ = session.Close() })
	defer stop()

	for {
		msg, err := session.Receive()
		if err != nil {
			_ = session.Close()
			return nil, g.setupError(ctx, err)
		}
		g.messagesReceived.Add(1)
		if msg.SetupComplete != nil {
			break
		}
	}

	if !stop() {
		return nil, g.setupError(ctx, ctx.Err())
	}
	return session, nil
}

func (g *GenAI) setupError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return NewConnectionError("await setup complete", fmt.Errorf("%w: %v", ErrTimeout, ctxErr), true)
		}
		return NewConnectionError("await setup complete", ctxErr, false)
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return NewConnectionError("await setup complete", closeFrameError(ce), false)
	}
	return NewConnectionError("await setup complete", err, true)
}

func (g *GenAI) liveConfig(sc SessionConfig) *genai.LiveConnectConfig {
	voice := firstNonEmpty(sc.Voice, g.config.Voice)

	cfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		}
	}
	if sc.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(sc.SystemInstruction, genai.RoleUser)
	}
	if sc.GoogleSearch {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	if sc.InputTranscription {
		cfg.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if sc.OutputTranscription {
		cfg.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return cfg
}

func (g *GenAI) receiveLoop(session *genai.Session) {
	for {
		msg, err := session.Receive()
		if err != nil {
			g.handleReceiveError(session, err)
			return
		}
		g.messagesReceived.Add(1)

		if msg.GoAway != nil {
			g.logger.Warn("server is going away", "time_left", msg.GoAway.TimeLeft)
		}
		if msg.ServerContent != nil {
			if n := g.dispatch(fromLiveContent(msg.ServerContent)); n > 0 {
				g.audioBytesReceived.Add(int64(n))
			}
		}
	}
}

// fromLiveContent maps the SDK content onto the wire shape used by dispatch.
func fromLiveContent(lc *genai.LiveServerContent) *serverContent {
	sc := &serverContent{
		TurnComplete: lc.TurnComplete,
		Interrupted:  lc.Interrupted,
	}
	if lc.InputTranscription != nil {
		sc.InputTranscription = &transcription{Text: lc.InputTranscription.Text}
	}
	if lc.OutputTranscription != nil {
		sc.OutputTranscription = &transcription{Text: lc.OutputTranscription.Text}
	}
	if gm := lc.GroundingMetadata; gm != nil && gm.GroundingChunks != nil {
		chunks := make([]groundingChunk, 0, len(gm.GroundingChunks))
		for _, c := range gm.GroundingChunks {
			if c == nil || c.Web == nil {
				continue
			}
			chunks = append(chunks, groundingChunk{Web: &Citation{URI: c.Web.URI, Title: c.Web.Title}})
		}
		sc.GroundingMetadata = &groundingMetadata{GroundingChunks: chunks}
	}
	if lc.ModelTurn != nil {
		turn := &content{Role: lc.ModelTurn.Role}
		for _, p := range lc.ModelTurn.Parts {
			if p == nil || p.InlineData == nil {
				continue
			}
			turn.Parts = append(turn.Parts, part{InlineData: &blob{
				MIMEType: p.InlineData.MIMEType,
				Data:     p.InlineData.Data,
			}})
		}
		sc.ModelTurn = turn
	}
	return sc
}

func (g *GenAI) handleReceiveError(session *genai.Session, err error) {
	g.mu.Lock()
	local := g.session != session || g.state != StateConnected
	if !local {
		g.state = StateDisconnected
	}
	g.mu.Unlock()

	if local {
		return
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway) {
		g.logger.Info("session closed by server", "code", ce.Code, "reason", ce.Text)
		g.emitClose(ce.Text)
		return
	}

	g.errorCount.Add(1)
	cause := err
	if ce != nil {
		cause = closeFrameError(ce)
	}
	g.logger.Error("session lost", "error", cause)
	g.emitError(NewConnectionError("connection lost", cause, IsRetryable(cause)))
}

// SendAudio sends one PCM16 frame as realtime input.
func (g *GenAI) SendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return ErrInvalidAudio
	}

	g.mu.RLock()
	session := g.session
	connected := g.state == StateConnected
	g.mu.RUnlock()

	if !connected || session == nil {
		return ErrNotConnected
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	err := session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: audioMIMEType(g.config.InputSampleRate)},
	})
	if err != nil {
		g.errorCount.Add(1)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	g.messagesSent.Add(1)
	g.audioBytesSent.Add(int64(len(pcm)))
	return nil
}

// Close closes the Live session.
func (g *GenAI) Close() error {
	g.mu.Lock()
	session := g.session
	g.session = nil
	g.state = StateDisconnected
	g.mu.Unlock()

	if session == nil {
		return nil
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	err := session.Close()
	g.logger.Info("disconnected from Live API",
		"messages_sent", g.messagesSent.Load(),
		"messages_received", g.messagesReceived.Load(),
	)
	return err
}

// IsConnected implements Transport.
func (g *GenAI) IsConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state == StateConnected
}

// Name returns "genai".
func (g *GenAI) Name() string {
	return "genai"
}

// Capabilities implements Transport.
func (g *GenAI) Capabilities() Capabilities {
	return Capabilities{
		SupportsInterruption:  true,
		SupportsGrounding:     true,
		SupportsTranscription: true,
		InputSampleRate:       g.config.InputSampleRate,
		OutputSampleRate:      g.config.OutputSampleRate,
	}
}

// Stats returns connection statistics.
func (g *GenAI) Stats() Stats {
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

func (g *GenAI) setState(s ConnectionState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = s
}

// Ensure GenAI implements Transport.
var _ Transport = (*GenAI)(nil)
