// Package session runs a live, full-duplex voice conversation.
//
// An Engine owns at most one session at a time. A session opens the speaker,
// the microphone and the channel to the agent, then streams captured audio
// out while playing the agent's audio back, keeping the transcript and the
// grounding citations in sync. All inbound events of a session are handled
// by a single goroutine in the order they arrived.
//
// Lifecycle:
//
//	Idle -> Connecting -> Active -> Closing -> Idle
//	Connecting|Active -> Errored -> Idle (State.Error kept)
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"text/template"
	"time"

	"github.com/teslashibe/go-live/pkg/audioio"
	"github.com/teslashibe/go-live/pkg/conversation"
	"github.com/teslashibe/go-live/pkg/metrics"
	"github.com/teslashibe/go-live/pkg/playback"
	"github.com/teslashibe/go-live/pkg/transcript"
)

// Engine is the live session state machine.
type Engine struct {
	cfg         Config
	logger      *slog.Logger
	metrics     *metrics.Metrics
	instruction *template.Template

	muted      atomic.Bool
	aggregator *transcript.Aggregator

	mu        sync.RWMutex
	state     State
	turns     []transcript.Turn
	grounding []GroundingReference
	current   *liveSession
	released  chan struct{}

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tmpl, err := parseInstruction(cfg.Instruction)
	if err != nil {
		return nil, err
	}

	released := make(chan struct{})
	close(released)

	return &Engine{
		cfg:         cfg,
		logger:      cfg.Logger.With("component", "session.engine"),
		metrics:     cfg.Metrics,
		instruction: tmpl,
		aggregator:  transcript.NewAggregator(),
		state:       State{Status: StatusIdle, Language: cfg.Language},
		released:    released,
		subs:        make(map[int]chan Event),
	}, nil
}

// Connect opens a session in language and blocks until audio is streaming.
//
// It fails with ErrAlreadyConnected while a session is connecting or active,
// and with ErrMissingCredential before any device is opened when no API key
// is configured. Device failures are *DeviceAccessError and channel failures
// are *TransportError. On failure every acquired resource is released and
// the engine returns to Idle with State.Error set.
func (e *Engine) Connect(ctx context.Context, language string) error {
	if language == "" {
		language = e.cfg.Language
	}

	e.mu.Lock()
	switch e.state.Status {
	case StatusConnecting, StatusActive:
		e.mu.Unlock()
		return ErrAlreadyConnected
	}
	if e.cfg.APIKey == "" {
		e.state.Error = ErrMissingCredential.Error()
		e.publishStateLocked()
		e.mu.Unlock()
		e.metrics.RecordConnectFailure(errorKind(ErrMissingCredential))
		return ErrMissingCredential
	}

	ls := newLiveSession(e, language)
	prev := e.released
	e.released = ls.released
	e.current = ls
	e.state.Status = StatusConnecting
	e.state.Error = ""
	e.state.Speaking = false
	e.state.Activity = 0
	e.state.Language = language
	e.state.SessionID = ls.id
	e.publishStateLocked()
	e.mu.Unlock()

	log := e.logger.With("session_id", ls.id, "language", language)
	log.Info("connecting")
	started := time.Now()

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ls.ctx, cancel)
	defer stop()

	if err := ls.open(cctx, prev); err != nil {
		if ls.ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ErrConnectCancelled, err)
		}
		log.Error("connect failed", "error", err)
		e.metrics.RecordConnectFailure(errorKind(err))
		e.fail(ls, err, "failed")
		return err
	}

	e.mu.Lock()
	if e.current != ls || e.state.Status != StatusConnecting {
		e.mu.Unlock()
		e.metrics.RecordConnectFailure(errorKind(ErrConnectCancelled))
		e.teardown(ls, "failed")
		return ErrConnectCancelled
	}
	ls.startedAt = time.Now()
	ls.active.Store(true)
	e.state.Status = StatusActive
	e.publishStateLocked()
	e.mu.Unlock()

	go ls.run()

	e.metrics.RecordSessionStart(time.Since(started))
	log.Info("session active",
		"transport", ls.transport.Name(),
		"capture", ls.capture.Name(),
		"output", ls.output.Name(),
		"connect_ms", time.Since(started).Milliseconds(),
	)
	return nil
}

// Disconnect ends the current session and returns once its resources are
// released. It is a no-op when idle. Disconnect during Connecting cancels
// the pending connect.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	ls := e.current
	if ls == nil {
		e.mu.Unlock()
		return
	}
	status := e.state.Status
	started := !ls.startedAt.IsZero()
	if status != StatusClosing {
		e.state.Status = StatusClosing
		e.publishStateLocked()
	}
	e.mu.Unlock()

	e.logger.Info("disconnecting", "session_id", ls.id, "from", status)

	switch status {
	case StatusConnecting, StatusClosing:
		// Whoever holds the session (Connect or an earlier teardown)
		// releases it; wait for that to finish.
		ls.cancel()
		<-ls.released
	default:
		e.teardown(ls, "disconnected")
	}
	if started {
		<-ls.loopDone
	}
}

// ToggleMute flips the mute flag and returns the new value. Capture frames
// are dropped while muted; the flag is read for every frame.
func (e *Engine) ToggleMute() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	muted := !e.muted.Load()
	e.muted.Store(muted)
	e.state.Muted = muted
	e.publishStateLocked()

	e.logger.Info("mute toggled", "muted", muted)
	return muted
}

// SetMuted sets the mute flag.
func (e *Engine) SetMuted(muted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.muted.Load() == muted {
		return
	}
	e.muted.Store(muted)
	e.state.Muted = muted
	e.publishStateLocked()
}

// State returns a snapshot of the engine state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Transcript returns the finalized turns in order.
func (e *Engine) Transcript() []transcript.Turn {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]transcript.Turn(nil), e.turns...)
}

// Grounding returns the citations of the latest grounding payload.
func (e *Engine) Grounding() []GroundingReference {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]GroundingReference(nil), e.grounding...)
}

// Playback returns the number of chunks scheduled or playing.
func (e *Engine) Playback() int {
	e.mu.RLock()
	ls := e.current
	active := e.state.Status == StatusActive
	e.mu.RUnlock()

	if !active {
		return 0
	}
	return ls.scheduler.Active()
}

// Subscribe registers for change notifications. Events are dropped for a
// subscriber whose buffer is full. The returned func unsubscribes and
// closes the channel.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
	}
}

// Close disconnects and drops all subscribers.
func (e *Engine) Close() error {
	e.Disconnect()

	e.subMu.Lock()
	defer e.subMu.Unlock()
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
	return nil
}

func (e *Engine) publish(ev Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// publishStateLocked must be called with e.mu held.
func (e *Engine) publishStateLocked() {
	st := e.state
	e.publish(Event{Type: EventState, State: &st})
}

func (e *Engine) systemInstruction(language string) (string, error) {
	return execInstruction(e.instruction, language)
}

// fail moves ls to Errored with err as the message, then tears it down.
// A session already closing is torn down without recording an error.
func (e *Engine) fail(ls *liveSession, err error, reason string) {
	e.mu.Lock()
	if e.current == ls && e.state.Status != StatusClosing {
		e.state.Status = StatusErrored
		e.state.Error = err.Error()
		e.publishStateLocked()
	}
	e.mu.Unlock()

	e.teardown(ls, reason)
}

// teardown releases the session exactly once: transport, capture, output,
// scheduled buffers, then the transcript accumulators. The engine returns to
// Idle before ls.released is closed.
func (e *Engine) teardown(ls *liveSession, reason string) {
	ls.once.Do(func() {
		ls.active.Store(false)
		ls.cancel()
		ls.release()
		e.aggregator.Reset()

		e.mu.Lock()
		if e.current == ls {
			e.current = nil
			e.state.Status = StatusIdle
			e.state.Speaking = false
			e.state.Activity = 0
			e.publishStateLocked()
		}
		e.mu.Unlock()

		if !ls.startedAt.IsZero() {
			e.metrics.RecordSessionEnd(reason, time.Since(ls.startedAt))
		}
		e.metrics.SetPlayback(0, 0)
		e.logger.Info("session released", "session_id", ls.id, "reason", reason)

		close(ls.released)
	})
}

// activeLocked reports whether ls is the current, streaming session. It
// must be called with e.mu held.
func (e *Engine) activeLocked(ls *liveSession) bool {
	return e.current == ls && e.state.Status == StatusActive
}

func (e *Engine) handleAudio(ls *liveSession, pcm []byte) {
	chunk, err := audioio.NewChunk(pcm, e.cfg.Playback.SampleRate)
	if err != nil {
		e.metrics.RecordDecodeError()
		e.logger.Warn("dropping undecodable audio chunk", "error", err, "bytes", len(pcm))
		return
	}
	if len(chunk.Samples) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.activeLocked(ls) {
		return
	}

	activity := audioio.EstimateActivity(chunk.Samples)
	if _, err := ls.scheduler.Schedule(chunk, ls.output.Now()); err != nil {
		e.logger.Warn("failed to schedule audio chunk", "error", err)
		return
	}
	e.metrics.RecordAudio(metrics.DirectionOut, len(pcm))
	e.metrics.RecordScheduled(ls.scheduler.Active(), activity)

	e.state.Speaking = true
	e.state.Activity = activity
	e.publishStateLocked()
}

func (e *Engine) handleTranscript(ls *liveSession, dir conversation.Direction, text string) {
	speaker, ok := speakerFor(dir)
	if !ok {
		e.logger.Debug("ignoring transcription with unknown direction", "direction", dir)
		return
	}

	e.mu.RLock()
	active := e.activeLocked(ls)
	e.mu.RUnlock()
	if !active {
		return
	}
	e.aggregator.Append(speaker, text)
}

func (e *Engine) handleTurnComplete(ls *liveSession) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.activeLocked(ls) {
		return
	}

	local, remote := e.aggregator.CompleteTurn()
	for _, t := range []*transcript.Turn{local, remote} {
		if t == nil {
			continue
		}
		e.turns = append(e.turns, *t)
		e.metrics.RecordTurn(string(t.Speaker))
		e.publish(Event{Type: EventTurn, Turn: t})
	}
}

func (e *Engine) handleGrounding(ls *liveSession, cites []conversation.Citation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.activeLocked(ls) {
		return
	}

	e.grounding = groundingFrom(cites)
	e.publish(Event{Type: EventGrounding, Grounding: append([]GroundingReference(nil), e.grounding...)})
}

func (e *Engine) handleInterruption(ls *liveSession) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.activeLocked(ls) {
		return
	}

	ls.scheduler.Interrupt(ls.output.Now())
	e.aggregator.DiscardRemote()
	e.metrics.RecordInterruption()
	e.metrics.SetPlayback(0, 0)

	e.state.Speaking = false
	e.state.Activity = 0
	e.publishStateLocked()
}

func (e *Engine) handlePlaybackEnded(ls *liveSession, h *playback.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.activeLocked(ls) {
		return
	}

	if !ls.scheduler.OnPlaybackEnded(h) {
		e.metrics.SetPlayback(ls.scheduler.Active(), e.state.Activity)
		return
	}
	e.metrics.SetPlayback(0, 0)
	if e.state.Speaking || e.state.Activity != 0 {
		e.state.Speaking = false
		e.state.Activity = 0
		e.publishStateLocked()
	}
}

func (e *Engine) handleClose(ls *liveSession, reason string) {
	e.mu.Lock()
	if !e.activeLocked(ls) {
		e.mu.Unlock()
		return
	}
	e.state.Status = StatusClosing
	e.publishStateLocked()
	e.mu.Unlock()

	e.logger.Info("session closed by agent", "session_id", ls.id, "reason", reason)
	e.teardown(ls, "closed")
}

func (e *Engine) handleError(ls *liveSession, err error) {
	e.mu.RLock()
	active := e.activeLocked(ls)
	e.mu.RUnlock()
	if !active {
		return
	}

	terr := &TransportError{Op: "runtime", Err: err}
	e.logger.Error("connection error detected", "session_id", ls.id, "error", err)
	e.metrics.RecordError(errorKind(terr))
	e.fail(ls, errors.New("connection error detected: "+err.Error()), "error")
}
