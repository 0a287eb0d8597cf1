package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	gorilla "github.com/gorilla/websocket"

	"github.com/teslashibe/go-live/pkg/metrics"
	"github.com/teslashibe/go-live/pkg/session"
	"github.com/teslashibe/go-live/pkg/transcript"
)

// fakeEngine is an in-memory Engine.
type fakeEngine struct {
	mu         sync.Mutex
	state      session.State
	turns      []transcript.Turn
	grounding  []session.GroundingReference
	connectErr error
	languages  []string
	events     chan session.Event
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		state:  session.State{Status: session.StatusIdle, Language: "English"},
		events: make(chan session.Event, 16),
	}
}

func (f *fakeEngine) Connect(ctx context.Context, language string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.languages = append(f.languages, language)
	if f.connectErr != nil {
		f.state.Error = f.connectErr.Error()
		return f.connectErr
	}
	f.state.Status = session.StatusActive
	if language != "" {
		f.state.Language = language
	}
	return nil
}

func (f *fakeEngine) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Status = session.StatusIdle
}

func (f *fakeEngine) ToggleMute() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Muted = !f.state.Muted
	return f.state.Muted
}

func (f *fakeEngine) SetMuted(muted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Muted = muted
}

func (f *fakeEngine) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeEngine) Transcript() []transcript.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transcript.Turn(nil), f.turns...)
}

func (f *fakeEngine) Grounding() []session.GroundingReference {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.GroundingReference(nil), f.grounding...)
}

func (f *fakeEngine) Subscribe(int) (<-chan session.Event, func()) {
	return f.events, func() {}
}

func newTestServer(t *testing.T, engine *fakeEngine) *Server {
	t.Helper()
	s := NewServer(engine, Config{
		Address: "127.0.0.1:0",
		Metrics: metrics.New("test"),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return s
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func TestStateEndpoints(t *testing.T) {
	engine := newFakeEngine()
	engine.turns = []transcript.Turn{{ID: "t1", Order: 1, Speaker: transcript.Local, Text: "hi", Complete: true}}
	engine.grounding = []session.GroundingReference{{URI: "https://example.com", Title: "Example"}}
	app := newTestServer(t, engine).App()

	t.Run("state", func(t *testing.T) {
		code, body := doRequest(t, app, "GET", "/api/state", "")
		if code != fiber.StatusOK {
			t.Fatalf("Expected 200, got %d", code)
		}
		var st session.State
		if err := json.Unmarshal(body, &st); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		if st.Status != session.StatusIdle || st.Language != "English" {
			t.Errorf("Unexpected state: %+v", st)
		}
	})

	t.Run("transcript", func(t *testing.T) {
		_, body := doRequest(t, app, "GET", "/api/transcript", "")
		var turns []transcript.Turn
		if err := json.Unmarshal(body, &turns); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		if len(turns) != 1 || turns[0].Text != "hi" || turns[0].Speaker != transcript.Local {
			t.Errorf("Unexpected transcript: %+v", turns)
		}
	})

	t.Run("grounding", func(t *testing.T) {
		_, body := doRequest(t, app, "GET", "/api/grounding", "")
		if !strings.Contains(string(body), `"uri":"https://example.com"`) {
			t.Errorf("Unexpected grounding: %s", body)
		}
	})

	t.Run("health", func(t *testing.T) {
		code, body := doRequest(t, app, "GET", "/health", "")
		if code != fiber.StatusOK || !strings.Contains(string(body), `"session":"idle"`) {
			t.Errorf("Unexpected health: %d %s", code, body)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		code, body := doRequest(t, app, "GET", "/metrics", "")
		if code != fiber.StatusOK || !strings.Contains(string(body), "test_sessions_active") {
			t.Errorf("Unexpected metrics: %d %s", code, body)
		}
	})

	t.Run("websocket requires upgrade", func(t *testing.T) {
		code, _ := doRequest(t, app, "GET", "/ws/state", "")
		if code != fiber.StatusUpgradeRequired {
			t.Errorf("Expected 426, got %d", code)
		}
	})
}

func TestConnectEndpoint(t *testing.T) {
	engine := newFakeEngine()
	app := newTestServer(t, engine).App()

	code, body := doRequest(t, app, "POST", "/api/connect", `{"language":"Hindi"}`)
	if code != fiber.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", code, body)
	}
	if !strings.Contains(string(body), `"status":"active"`) || !strings.Contains(string(body), `"language":"Hindi"`) {
		t.Errorf("Unexpected response: %s", body)
	}

	// No body uses the engine's default language.
	if code, _ := doRequest(t, app, "POST", "/api/connect", ""); code != fiber.StatusOK {
		t.Errorf("Expected 200 without body, got %d", code)
	}
	if engine.languages[1] != "" {
		t.Errorf("Expected empty language, got %q", engine.languages[1])
	}

	if code, _ := doRequest(t, app, "POST", "/api/connect", `{"language":`); code != fiber.StatusBadRequest {
		t.Errorf("Expected 400 for bad body, got %d", code)
	}

	code, body = doRequest(t, app, "POST", "/api/disconnect", "")
	if code != fiber.StatusOK || !strings.Contains(string(body), `"status":"idle"`) {
		t.Errorf("Unexpected disconnect response: %d %s", code, body)
	}
}

func TestConnectErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"already connected", session.ErrAlreadyConnected, fiber.StatusConflict},
		{"cancelled", fmt.Errorf("%w: dial", session.ErrConnectCancelled), fiber.StatusConflict},
		{"missing credential", session.ErrMissingCredential, fiber.StatusPreconditionFailed},
		{"device", &session.DeviceAccessError{Device: "capture", Err: errors.New("busy")}, fiber.StatusServiceUnavailable},
		{"transport", &session.TransportError{Op: "connect", Err: errors.New("refused")}, fiber.StatusBadGateway},
		{"other", errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine()
			engine.connectErr = tt.err
			app := newTestServer(t, engine).App()

			code, body := doRequest(t, app, "POST", "/api/connect", `{"language":"Tamil"}`)
			if code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				t.Fatalf("Invalid JSON: %v", err)
			}
			if resp.Error != tt.err.Error() || resp.State.Error != tt.err.Error() {
				t.Errorf("Unexpected error response: %+v", resp)
			}
		})
	}
}

func TestMuteEndpoint(t *testing.T) {
	engine := newFakeEngine()
	app := newTestServer(t, engine).App()

	steps := []struct {
		body string
		want string
	}{
		{"", `{"muted":true}`},
		{"", `{"muted":false}`},
		{`{"muted":false}`, `{"muted":false}`},
		{`{"muted":true}`, `{"muted":true}`},
		{`{}`, `{"muted":false}`},
	}
	for i, step := range steps {
		code, body := doRequest(t, app, "POST", "/api/mute", step.body)
		if code != fiber.StatusOK || string(body) != step.want {
			t.Errorf("Step %d: expected %s, got %d %s", i, step.want, code, body)
		}
	}
}

func dialWS(t *testing.T, addr, path string) *gorilla.Conn {
	t.Helper()
	conn, _, err := gorilla.DefaultDialer.Dial("ws://"+addr+path, nil)
	if err != nil {
		t.Fatalf("Dial %s failed: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *gorilla.Conn, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
}

func TestWebsocketStreams(t *testing.T) {
	engine := newFakeEngine()
	engine.turns = []transcript.Turn{{ID: "t1", Order: 1, Speaker: transcript.Local, Text: "earlier", Complete: true}}
	s := newTestServer(t, engine)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx, ln)
	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		s.Shutdown(sctx)
	})

	addr := ln.Addr().String()

	stateConn := dialWS(t, addr, "/ws/state")
	var first session.Event
	readJSON(t, stateConn, &first)
	if first.Type != session.EventState || first.State == nil || first.State.Status != session.StatusIdle {
		t.Fatalf("Expected initial state snapshot, got %+v", first)
	}

	transcriptConn := dialWS(t, addr, "/ws/transcript")
	var replay transcript.Turn
	readJSON(t, transcriptConn, &replay)
	if replay.Text != "earlier" {
		t.Fatalf("Expected transcript replay, got %+v", replay)
	}

	// Both clients are registered once their hubs report them.
	deadline := time.Now().Add(2 * time.Second)
	for s.stateHub.ClientCount() != 1 || s.transcriptHub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Clients did not register")
		}
		time.Sleep(5 * time.Millisecond)
	}

	active := session.State{Status: session.StatusActive, Speaking: true}
	engine.events <- session.Event{Type: session.EventState, State: &active}
	engine.events <- session.Event{Type: session.EventTurn, Turn: &transcript.Turn{ID: "t2", Order: 2, Speaker: transcript.Remote, Text: "hello", Complete: true}}
	engine.events <- session.Event{Type: session.EventGrounding, Grounding: []session.GroundingReference{{URI: "https://news.example", Title: "News"}}}

	var ev session.Event
	readJSON(t, stateConn, &ev)
	if ev.Type != session.EventState || ev.State == nil || !ev.State.Speaking {
		t.Errorf("Expected active state event, got %+v", ev)
	}
	readJSON(t, stateConn, &ev)
	if ev.Type != session.EventGrounding || len(ev.Grounding) != 1 || ev.Grounding[0].Title != "News" {
		t.Errorf("Expected grounding event, got %+v", ev)
	}

	var turn transcript.Turn
	readJSON(t, transcriptConn, &turn)
	if turn.Speaker != transcript.Remote || turn.Text != "hello" {
		t.Errorf("Expected remote turn, got %+v", turn)
	}
}
