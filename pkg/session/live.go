package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-live/pkg/audioio"
	"github.com/teslashibe/go-live/pkg/conversation"
	"github.com/teslashibe/go-live/pkg/metrics"
	"github.com/teslashibe/go-live/pkg/playback"
)

type eventKind int

const (
	eventAudio eventKind = iota
	eventTranscript
	eventTurnComplete
	eventGrounding
	eventInterruption
	eventClose
	eventError
)

// event is one transport callback, queued for the session loop.
type event struct {
	kind  eventKind
	audio []byte
	dir   conversation.Direction
	text  string
	cites []conversation.Citation
	err   error
}

// liveSession is the per-connect resource set and its event loop.
type liveSession struct {
	engine   *Engine
	id       string
	language string

	ctx    context.Context
	cancel context.CancelFunc

	// Set by open before the session becomes active.
	output    audioio.Output
	capture   audioio.Capture
	transport conversation.Transport
	scheduler *playback.Scheduler

	active    atomic.Bool
	startedAt time.Time
	overruns  atomic.Int64

	frames chan []byte
	events chan event
	ended  chan *playback.Handle

	once     sync.Once
	released chan struct{}
	loopDone chan struct{}
}

func newLiveSession(e *Engine, language string) *liveSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &liveSession{
		engine:   e,
		id:       uuid.NewString(),
		language: language,
		ctx:      ctx,
		cancel:   cancel,
		frames:   make(chan []byte, e.cfg.FrameQueue),
		events:   make(chan event, e.cfg.EventBuffer),
		ended:    make(chan *playback.Handle, 1024),
		released: make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// open acquires the output, the capture device, and the transport in that
// order, after the previous session has released its resources. Whatever
// was acquired stays on ls for release.
func (ls *liveSession) open(ctx context.Context, prev <-chan struct{}) error {
	e := ls.engine

	select {
	case <-prev:
	case <-ctx.Done():
		return ctx.Err()
	}

	output, err := e.cfg.NewOutput(e.cfg.Playback, e.cfg.Logger)
	if err != nil {
		return &DeviceAccessError{Device: "output", Err: err}
	}
	ls.output = output
	ls.scheduler = playback.NewScheduler(output, ls.postEnded)

	capture, err := e.cfg.NewCapture(e.cfg.Capture, e.cfg.Logger)
	if err != nil {
		return &DeviceAccessError{Device: "capture", Err: err}
	}
	ls.capture = capture
	if err := capture.Start(ls.ctx, ls.onFrame); err != nil {
		return &DeviceAccessError{Device: "capture", Err: err}
	}

	instruction, err := e.systemInstruction(ls.language)
	if err != nil {
		return &TransportError{Op: "setup", Err: err}
	}

	opts := append([]conversation.Option{
		conversation.WithAPIKey(e.cfg.APIKey),
		conversation.WithModel(e.cfg.Model),
		conversation.WithVoice(e.cfg.Voice),
		conversation.WithInputSampleRate(e.cfg.Capture.SampleRate),
		conversation.WithOutputSampleRate(e.cfg.Playback.SampleRate),
		conversation.WithLogger(e.cfg.Logger),
	}, e.cfg.TransportOptions...)

	transport, err := e.cfg.NewTransport(opts...)
	if err != nil {
		return &TransportError{Op: "create", Err: err}
	}
	ls.transport = transport
	ls.register(transport)

	err = transport.Connect(ctx, conversation.SessionConfig{
		Language:            ls.language,
		Model:               e.cfg.Model,
		Voice:               e.cfg.Voice,
		SystemInstruction:   instruction,
		InputTranscription:  true,
		OutputTranscription: true,
		GoogleSearch:        e.cfg.GoogleSearch,
	})
	if err != nil {
		return &TransportError{Op: "connect", Err: err}
	}
	return nil
}

// register routes transport callbacks into the session loop.
func (ls *liveSession) register(t conversation.Transport) {
	t.OnAudio(func(pcm []byte) {
		ls.post(event{kind: eventAudio, audio: pcm})
	})
	t.OnTranscript(func(dir conversation.Direction, text string) {
		ls.post(event{kind: eventTranscript, dir: dir, text: text})
	})
	t.OnTurnComplete(func() {
		ls.post(event{kind: eventTurnComplete})
	})
	t.OnGrounding(func(cites []conversation.Citation) {
		ls.post(event{kind: eventGrounding, cites: cites})
	})
	t.OnInterruption(func() {
		ls.post(event{kind: eventInterruption})
	})
	t.OnClose(func(reason string) {
		ls.post(event{kind: eventClose, text: reason})
	})
	t.OnError(func(err error) {
		ls.post(event{kind: eventError, err: err})
	})
}

// post queues ev, waiting for room unless the session is gone.
func (ls *liveSession) post(ev event) {
	select {
	case ls.events <- ev:
	case <-ls.ctx.Done():
	}
}

// postEnded is the scheduler's ended callback. It runs on the output's
// render goroutine and must not block it, but must not lose the event.
func (ls *liveSession) postEnded(h *playback.Handle) {
	select {
	case ls.ended <- h:
	default:
		go func() {
			select {
			case ls.ended <- h:
			case <-ls.ctx.Done():
			}
		}()
	}
}

// onFrame is the capture callback. Frames are dropped before the session is
// active, while muted, and when the send queue is full.
func (ls *liveSession) onFrame(frame []float32) {
	if !ls.active.Load() {
		return
	}
	m := ls.engine.metrics
	if ls.engine.muted.Load() {
		m.RecordFrameDropped(metrics.DropMuted)
		return
	}

	pcm := audioio.EncodeFloat32(frame)
	select {
	case ls.frames <- pcm:
	default:
		if n := ls.overruns.Add(1); n == 1 || n%100 == 0 {
			ls.engine.logger.Warn("capture send queue full, dropping frames", "dropped", n)
		}
		m.RecordFrameDropped(metrics.DropOverrun)
	}
}

// run serializes the session's events until it is torn down.
func (ls *liveSession) run() {
	defer close(ls.loopDone)

	e := ls.engine
	for {
		select {
		case <-ls.ctx.Done():
			return
		case pcm := <-ls.frames:
			ls.send(pcm)
		case h := <-ls.ended:
			e.handlePlaybackEnded(ls, h)
		case ev := <-ls.events:
			switch ev.kind {
			case eventAudio:
				e.handleAudio(ls, ev.audio)
			case eventTranscript:
				e.handleTranscript(ls, ev.dir, ev.text)
			case eventTurnComplete:
				e.handleTurnComplete(ls)
			case eventGrounding:
				e.handleGrounding(ls, ev.cites)
			case eventInterruption:
				e.handleInterruption(ls)
			case eventClose:
				e.handleClose(ls, ev.text)
			case eventError:
				e.handleError(ls, ev.err)
			}
		}
	}
}

func (ls *liveSession) send(pcm []byte) {
	if !ls.active.Load() {
		return
	}
	m := ls.engine.metrics
	if err := ls.transport.SendAudio(pcm); err != nil {
		m.RecordFrameDropped(metrics.DropSend)
		if !conversation.IsNotConnected(err) {
			ls.engine.logger.Warn("failed to send audio frame", "error", err)
		}
		return
	}
	m.RecordAudio(metrics.DirectionIn, len(pcm))
}

// release closes whatever open acquired, in order. Close errors are logged
// and otherwise ignored.
func (ls *liveSession) release() {
	log := ls.engine.logger.With("session_id", ls.id)

	if ls.transport != nil {
		if err := ls.transport.Close(); err != nil {
			log.Debug("transport close failed", "error", err)
		}
	}
	if ls.capture != nil {
		if err := ls.capture.Close(); err != nil {
			log.Warn("capture close failed", "error", fmt.Errorf("close capture: %w", err))
		}
	}
	now := 0.0
	if ls.output != nil {
		now = ls.output.Now()
		if err := ls.output.Close(); err != nil {
			log.Warn("output close failed", "error", fmt.Errorf("close output: %w", err))
		}
	}
	if ls.scheduler != nil {
		ls.scheduler.Reset(now)
	}
}
