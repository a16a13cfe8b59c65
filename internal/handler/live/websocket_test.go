package live

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	liveservice "github.com/zhouzirui/z-inbox/backend/internal/service/live"
)

type fakeActions struct {
	opened   chan string
	selected chan int
	err      error
}

func newFakeActions(err error) *fakeActions {
	return &fakeActions{opened: make(chan string, 1), selected: make(chan int, 1), err: err}
}

func (f *fakeActions) SwitchActive(name string) error {
	f.opened <- name
	return f.err
}

func (f *fakeActions) Select(index int) error {
	f.selected <- index
	return f.err
}

type wireFrame struct {
	Type    string          `json:"type"`
	Contact string          `json:"contact"`
	Data    json.RawMessage `json:"data"`
}

func dial(t *testing.T, hub *liveservice.Hub, actions Actions) *websocket.Conn {
	t.Helper()

	r := chi.NewRouter()
	NewWebSocketHandler(hub, actions).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if frame := readFrame(t, conn); frame.Type != liveservice.FrameConnected {
		t.Fatalf("expected connected frame, got %s", frame.Type)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame wireFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read err: %v", err)
	}
	return frame
}

func TestWebSocketStreamsHubFrames(t *testing.T) {
	hub := liveservice.NewHub(8)
	conn := dial(t, hub, newFakeActions(nil))

	hub.Notify("Mira")

	frame := readFrame(t, conn)
	if frame.Type != liveservice.FrameNotify || frame.Contact != "Mira" {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}

func TestWebSocketSelectAction(t *testing.T) {
	actions := newFakeActions(nil)
	conn := dial(t, liveservice.NewHub(8), actions)

	if err := conn.WriteJSON(map[string]any{"type": "select", "data": map[string]int{"index": 2}}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	select {
	case index := <-actions.selected:
		if index != 2 {
			t.Fatalf("unexpected index: got %d want 2", index)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("select action not received")
	}
}

func TestWebSocketReportsActionErrors(t *testing.T) {
	actions := newFakeActions(errors.New("options pending"))
	conn := dial(t, liveservice.NewHub(8), actions)

	if err := conn.WriteJSON(map[string]any{"type": "open", "data": map[string]string{"contact": "Jonas"}}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	frame := readFrame(t, conn)
	if frame.Type != liveservice.FrameError || !strings.Contains(string(frame.Data), "options pending") {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	if got := <-actions.opened; got != "Jonas" {
		t.Fatalf("unexpected contact: %s", got)
	}
}

func TestWebSocketRejectsUnknownMessage(t *testing.T) {
	conn := dial(t, liveservice.NewHub(8), newFakeActions(nil))

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	frame := readFrame(t, conn)
	if frame.Type != liveservice.FrameError {
		t.Fatalf("unexpected frame: %+v", frame)
	}
}
