package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestMockTransport(t *testing.T) {
	t.Run("connect and disconnect", func(t *testing.T) {
		m := NewMock()

		if m.IsConnected() {
			t.Error("should not be connected initially")
		}

		if err := m.Connect(context.Background(), SessionConfig{Language: "French"}); err != nil {
			t.Errorf("connect failed: %v", err)
		}

		if !m.IsConnected() {
			t.Error("should be connected after Connect")
		}
		if m.LastConfig() == nil || m.LastConfig().Language != "French" {
			t.Error("session config not captured")
		}

		if err := m.Close(); err != nil {
			t.Errorf("close failed: %v", err)
		}

		if m.IsConnected() {
			t.Error("should not be connected after Close")
		}
		if m.Closes() != 1 {
			t.Errorf("expected 1 close, got %d", m.Closes())
		}
	})

	t.Run("connect failure", func(t *testing.T) {
		m := NewMock()
		m.ConnectFunc = func(ctx context.Context, cfg SessionConfig) error {
			return NewConnectionError("dial failed", errors.New("refused"), true)
		}

		if err := m.Connect(context.Background(), SessionConfig{}); err == nil {
			t.Error("expected connect error")
		}
		if m.IsConnected() {
			t.Error("should not be connected after failure")
		}
	})

	t.Run("send audio when connected", func(t *testing.T) {
		m := NewMock()
		_ = m.Connect(context.Background(), SessionConfig{})

		audio := []byte{1, 2, 3, 4}
		if err := m.SendAudio(audio); err != nil {
			t.Errorf("send audio failed: %v", err)
		}

		sent := m.SentAudio()
		if len(sent) != 1 {
			t.Fatalf("expected 1 audio sent, got %d", len(sent))
		}
		if string(sent[0]) != string(audio) {
			t.Error("audio data mismatch")
		}
	})

	t.Run("send audio when not connected", func(t *testing.T) {
		m := NewMock()

		if err := m.SendAudio([]byte{1}); !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("simulate callbacks", func(t *testing.T) {
		m := NewMock()

		var (
			audioCalled bool
			dir         Direction
			text        string
			turns       int
			cites       []Citation
			interrupted bool
			closeReason string
			gotErr      error
		)

		m.OnAudio(func(pcm []byte) { audioCalled = true })
		m.OnTranscript(func(d Direction, s string) { dir, text = d, s })
		m.OnTurnComplete(func() { turns++ })
		m.OnGrounding(func(c []Citation) { cites = c })
		m.OnInterruption(func() { interrupted = true })
		m.OnClose(func(reason string) { closeReason = reason })
		m.OnError(func(err error) { gotErr = err })

		m.SimulateAudio([]byte{1, 2, 3})
		m.SimulateTranscript(DirectionOutput, "hello")
		m.SimulateTurnComplete()
		m.SimulateGrounding([]Citation{{URI: "https://example.com", Title: "Example"}})
		m.SimulateInterruption()
		m.SimulateClose("bye")
		m.SimulateError(ErrConnectionClosed)

		if !audioCalled {
			t.Error("audio callback not called")
		}
		if dir != DirectionOutput || text != "hello" {
			t.Errorf("transcript mismatch: %s, %s", dir, text)
		}
		if turns != 1 {
			t.Errorf("expected 1 turn, got %d", turns)
		}
		if len(cites) != 1 || cites[0].Title != "Example" {
			t.Errorf("grounding mismatch: %+v", cites)
		}
		if !interrupted {
			t.Error("interruption callback not called")
		}
		if closeReason != "bye" {
			t.Errorf("close reason mismatch: %q", closeReason)
		}
		if !errors.Is(gotErr, ErrConnectionClosed) {
			t.Errorf("error mismatch: %v", gotErr)
		}
	})

	t.Run("callbacks are optional", func(t *testing.T) {
		m := NewMock()
		m.SimulateAudio([]byte{1})
		m.SimulateTurnComplete()
		m.SimulateError(errors.New("boom"))
	})

	t.Run("reset", func(t *testing.T) {
		m := NewMock()
		_ = m.Connect(context.Background(), SessionConfig{})
		_ = m.SendAudio([]byte{1})
		m.Reset()

		if len(m.SentAudio()) != 0 || m.LastConfig() != nil || m.Closes() != 0 {
			t.Error("reset should clear captured data")
		}
	})
}

func TestFunctionalOptions(t *testing.T) {
	logger := slog.Default()

	cfg := DefaultConfig()
	cfg.Apply(
		WithAPIKey("key"),
		WithModel("models/other"),
		WithVoice(VoiceKore),
		WithBaseURL("ws://localhost:1234"),
		WithAPIVersion("v1alpha"),
		WithInputSampleRate(8000),
		WithOutputSampleRate(48000),
		WithTimeout(5*time.Second),
		WithWriteTimeout(time.Second),
		WithLogger(logger),
	)

	if cfg.APIKey != "key" {
		t.Errorf("expected APIKey key, got %s", cfg.APIKey)
	}
	if cfg.Model != "models/other" {
		t.Errorf("expected model override, got %s", cfg.Model)
	}
	if cfg.Voice != VoiceKore {
		t.Errorf("expected voice Kore, got %s", cfg.Voice)
	}
	if cfg.BaseURL != "ws://localhost:1234" || cfg.APIVersion != "v1alpha" {
		t.Errorf("unexpected endpoint: %s %s", cfg.BaseURL, cfg.APIVersion)
	}
	if cfg.InputSampleRate != 8000 || cfg.OutputSampleRate != 48000 {
		t.Errorf("unexpected rates: %d %d", cfg.InputSampleRate, cfg.OutputSampleRate)
	}
	if cfg.Timeout != 5*time.Second || cfg.WriteTimeout != time.Second {
		t.Errorf("unexpected timeouts: %v %v", cfg.Timeout, cfg.WriteTimeout)
	}
	if cfg.Logger != logger {
		t.Error("logger not set")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model != DefaultModel {
		t.Errorf("expected default model, got %s", cfg.Model)
	}
	if cfg.InputSampleRate != 16000 {
		t.Errorf("expected 16kHz input, got %d", cfg.InputSampleRate)
	}
	if cfg.OutputSampleRate != 24000 {
		t.Errorf("expected 24kHz output, got %d", cfg.OutputSampleRate)
	}
	if cfg.Voice != VoiceZephyr {
		t.Errorf("expected Zephyr voice, got %s", cfg.Voice)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{APIKey: "k", Voice: VoicePuck, InputSampleRate: 16000, OutputSampleRate: 24000}, false},
		{"missing key", Config{InputSampleRate: 16000, OutputSampleRate: 24000}, true},
		{"unknown voice", Config{APIKey: "k", Voice: "Aoede2", InputSampleRate: 16000, OutputSampleRate: 24000}, true},
		{"zero rate", Config{APIKey: "k"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVoices(t *testing.T) {
	for _, v := range Voices() {
		if !ValidVoice(v) {
			t.Errorf("%s should be valid", v)
		}
	}
	if ValidVoice("puck") {
		t.Error("voice names are case sensitive")
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name      string
		err       *APIError
		msg       string
		temporary bool
		limited   bool
	}{
		{
			name: "handshake forbidden",
			err:  &APIError{StatusCode: 403, Message: "403 Forbidden"},
			msg:  "conversation: handshake rejected (HTTP 403): 403 Forbidden",
		},
		{
			name:      "handshake quota",
			err:       &APIError{StatusCode: 429, Message: "429 Too Many Requests"},
			msg:       "conversation: handshake rejected (HTTP 429): 429 Too Many Requests",
			temporary: true,
			limited:   true,
		},
		{
			name:      "handshake server error",
			err:       &APIError{StatusCode: 503, Message: "unavailable"},
			msg:       "conversation: handshake rejected (HTTP 503): unavailable",
			temporary: true,
		},
		{
			name: "policy close",
			err:  &APIError{CloseCode: websocket.ClosePolicyViolation, Message: "quota exceeded for model"},
			msg:  "conversation: session closed by server (1008): quota exceeded for model",
		},
		{
			name:      "try again later",
			err:       &APIError{CloseCode: websocket.CloseTryAgainLater, Message: "busy"},
			msg:       "conversation: session closed by server (1013): busy",
			temporary: true,
			limited:   true,
		},
		{
			name: "bare message",
			err:  &APIError{Message: "unknown"},
			msg:  "conversation: API error: unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.msg {
				t.Errorf("Error() = %q, want %q", got, tt.msg)
			}
			if got := tt.err.Temporary(); got != tt.temporary {
				t.Errorf("Temporary() = %v, want %v", got, tt.temporary)
			}
			if got := IsRateLimited(tt.err); got != tt.limited {
				t.Errorf("IsRateLimited() = %v, want %v", got, tt.limited)
			}
		})
	}
}

func TestCloseFrameError(t *testing.T) {
	err := closeFrameError(&websocket.CloseError{Code: websocket.CloseInternalServerErr})
	if err.Message != "connection closed by server" || !err.Temporary() {
		t.Errorf("unexpected close frame error: %+v", err)
	}
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("network error")
	err := NewConnectionError("dial", cause, true)

	if msg := err.Error(); msg != "conversation: dial: network error" {
		t.Errorf("unexpected error message: %s", msg)
	}
	if !errors.Is(err, cause) {
		t.Error("should unwrap to cause")
	}
	if msg := NewConnectionError("closed during setup", nil, false).Error(); msg != "conversation: closed during setup" {
		t.Errorf("unexpected error message without cause: %s", msg)
	}

	// Retryability follows the innermost API error when there is one.
	wrapped := NewConnectionError("await setup complete", &APIError{CloseCode: websocket.CloseTryAgainLater}, false)
	if !IsRetryable(wrapped) {
		t.Error("try-again-later close should be retryable")
	}
	if IsRetryable(NewConnectionError("dial", nil, false)) {
		t.Error("non-retryable connection error should not be retryable")
	}
}

func TestErrorHelpers(t *testing.T) {
	t.Run("IsNotConnected", func(t *testing.T) {
		if !IsNotConnected(ErrNotConnected) {
			t.Error("should match ErrNotConnected")
		}
		if !IsNotConnected(NewConnectionError("closed during setup", ErrConnectionClosed, false)) {
			t.Error("should match wrapped ErrConnectionClosed")
		}
		if IsNotConnected(ErrMissingAPIKey) {
			t.Error("should not match ErrMissingAPIKey")
		}
	})

	t.Run("IsRetryable", func(t *testing.T) {
		if !IsRetryable(ErrRateLimited) || !IsRetryable(ErrTimeout) {
			t.Error("rate limit and timeout should be retryable")
		}
		if !IsRetryable(fmt.Errorf("%w: deadline", ErrTimeout)) {
			t.Error("wrapped timeout should be retryable")
		}
		if IsRetryable(ErrMissingAPIKey) {
			t.Error("missing key should not be retryable")
		}
	})
}

func TestConnectionState(t *testing.T) {
	states := []struct {
		state    ConnectionState
		expected string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{ConnectionState(99), "unknown"},
	}

	for _, tc := range states {
		if tc.state.String() != tc.expected {
			t.Errorf("expected %s, got %s", tc.expected, tc.state.String())
		}
	}
}

func TestNewSetup(t *testing.T) {
	cfg := DefaultConfig()

	setup := newSetup(cfg, SessionConfig{})
	if setup.Model != "models/"+DefaultModel {
		t.Errorf("unexpected model: %s", setup.Model)
	}
	if setup.GenerationConfig.SpeechConfig == nil ||
		setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != VoiceZephyr {
		t.Error("expected default voice in setup")
	}
	if setup.SystemInstruction != nil || setup.Tools != nil {
		t.Error("expected no instruction or tools")
	}

	setup = newSetup(cfg, SessionConfig{Voice: VoiceCharon, SystemInstruction: "hi", GoogleSearch: true})
	if setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != VoiceCharon {
		t.Error("session voice should override config voice")
	}
	if setup.SystemInstruction == nil || setup.SystemInstruction.Parts[0].Text != "hi" {
		t.Error("expected system instruction")
	}
	if len(setup.Tools) != 1 || setup.Tools[0].GoogleSearch == nil {
		t.Error("expected google search tool")
	}
}

func TestConcurrentMockAccess(t *testing.T) {
	m := NewMock()
	_ = m.Connect(context.Background(), SessionConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.SendAudio([]byte{1, 2, 3})
			_ = m.IsConnected()
			m.SimulateAudio([]byte{4, 5, 6})
		}()
	}

	wg.Wait()

	if len(m.SentAudio()) != 100 {
		t.Errorf("expected 100 audio sent, got %d", len(m.SentAudio()))
	}
}
