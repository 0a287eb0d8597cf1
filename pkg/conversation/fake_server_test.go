package conversation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeLive is an in-process Live endpoint.
type fakeLive struct {
	t      *testing.T
	server *httptest.Server

	// holdSetup suppresses setupComplete.
	holdSetup bool
	// rejectSetup closes with this frame instead of completing setup.
	rejectSetup *websocket.CloseError

	setups   chan map[string]any
	queries  chan url.Values
	headers  chan http.Header
	conns    chan *websocket.Conn
	received chan map[string]any
}

func newFakeLive(t *testing.T, configure ...func(*fakeLive)) *fakeLive {
	t.Helper()

	f := &fakeLive{
		t:        t,
		setups:   make(chan map[string]any, 4),
		queries:  make(chan url.Values, 4),
		headers:  make(chan http.Header, 4),
		conns:    make(chan *websocket.Conn, 4),
		received: make(chan map[string]any, 64),
	}
	for _, fn := range configure {
		fn(f)
	}

	upgrader := websocket.Upgrader{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		f.queries <- r.URL.Query()
		f.headers <- r.Header.Clone()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var setup map[string]any
		if err := conn.ReadJSON(&setup); err != nil {
			return
		}
		f.setups <- setup

		switch {
		case f.rejectSetup != nil:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(f.rejectSetup.Code, f.rejectSetup.Text),
				time.Now().Add(time.Second))
			time.Sleep(50 * time.Millisecond)
			return
		case !f.holdSetup:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`)); err != nil {
				return
			}
		}
		f.conns <- conn

		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			f.received <- msg
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the websocket endpoint.
func (f *fakeLive) URL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/live"
}

func (f *fakeLive) conn() *websocket.Conn {
	f.t.Helper()
	select {
	case c := <-f.conns:
		return c
	case <-time.After(2 * time.Second):
		f.t.Fatal("timed out waiting for connection")
		return nil
	}
}

func (f *fakeLive) setup() map[string]any {
	f.t.Helper()
	select {
	case s := <-f.setups:
		return s
	case <-time.After(2 * time.Second):
		f.t.Fatal("timed out waiting for setup")
		return nil
	}
}

func (f *fakeLive) next() map[string]any {
	f.t.Helper()
	select {
	case m := <-f.received:
		return m
	case <-time.After(2 * time.Second):
		f.t.Fatal("timed out waiting for client message")
		return nil
	}
}

func send(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// dig walks nested JSON objects by key.
func dig(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[k]
	}
	return cur
}

// recorder collects transport callbacks as ordered events.
type recorder struct {
	events chan string
	audio  chan []byte
	cites  chan []Citation
	errs   chan error
	closes chan string
}

func newRecorder(tr Transport) *recorder {
	r := &recorder{
		events: make(chan string, 64),
		audio:  make(chan []byte, 16),
		cites:  make(chan []Citation, 4),
		errs:   make(chan error, 4),
		closes: make(chan string, 4),
	}
	tr.OnTranscript(func(dir Direction, text string) { r.events <- string(dir) + ":" + text })
	tr.OnTurnComplete(func() { r.events <- "turn" })
	tr.OnInterruption(func() { r.events <- "interrupted" })
	tr.OnAudio(func(pcm []byte) {
		r.events <- "audio"
		r.audio <- pcm
	})
	tr.OnGrounding(func(c []Citation) {
		r.events <- "grounding"
		r.cites <- c
	})
	tr.OnError(func(err error) { r.errs <- err })
	tr.OnClose(func(reason string) { r.closes <- reason })
	return r
}

func (r *recorder) expect(t *testing.T, want ...string) {
	t.Helper()
	for _, w := range want {
		select {
		case got := <-r.events:
			if got != w {
				t.Fatalf("expected event %q, got %q", w, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %q", w)
		}
	}
}
