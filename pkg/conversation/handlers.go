package conversation

import "sync"

// handlers holds the callbacks shared by every transport. Embedding it
// provides the On* half of Transport.
type handlers struct {
	mu sync.RWMutex

	onAudio        func(pcm []byte)
	onTranscript   func(dir Direction, text string)
	onTurnComplete func()
	onGrounding    func(citations []Citation)
	onInterruption func()
	onClose        func(reason string)
	onError        func(err error)
}

// OnAudio implements Transport.
func (h *handlers) OnAudio(fn func(pcm []byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAudio = fn
}

// OnTranscript implements Transport.
func (h *handlers) OnTranscript(fn func(dir Direction, text string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onTranscript = fn
}

// OnTurnComplete implements Transport.
func (h *handlers) OnTurnComplete(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onTurnComplete = fn
}

// OnGrounding implements Transport.
func (h *handlers) OnGrounding(fn func(citations []Citation)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onGrounding = fn
}

// OnInterruption implements Transport.
func (h *handlers) OnInterruption(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onInterruption = fn
}

// OnClose implements Transport.
func (h *handlers) OnClose(fn func(reason string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onClose = fn
}

// OnError implements Transport.
func (h *handlers) OnError(fn func(err error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = fn
}

func (h *handlers) emitAudio(pcm []byte) {
	h.mu.RLock()
	fn := h.onAudio
	h.mu.RUnlock()
	if fn != nil {
		fn(pcm)
	}
}

func (h *handlers) emitTranscript(dir Direction, text string) {
	h.mu.RLock()
	fn := h.onTranscript
	h.mu.RUnlock()
	if fn != nil {
		fn(dir, text)
	}
}

func (h *handlers) emitTurnComplete() {
	h.mu.RLock()
	fn := h.onTurnComplete
	h.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (h *handlers) emitGrounding(citations []Citation) {
	h.mu.RLock()
	fn := h.onGrounding
	h.mu.RUnlock()
	if fn != nil {
		fn(citations)
	}
}

func (h *handlers) emitInterruption() {
	h.mu.RLock()
	fn := h.onInterruption
	h.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (h *handlers) emitClose(reason string) {
	h.mu.RLock()
	fn := h.onClose
	h.mu.RUnlock()
	if fn != nil {
		fn(reason)
	}
}

func (h *handlers) emitError(err error) {
	h.mu.RLock()
	fn := h.onError
	h.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
