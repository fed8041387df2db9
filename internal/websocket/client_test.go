package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/model"
)

// startClient serves one WebSocket connection wrapped in a Client and
// returns the dialed browser side.
func startClient(t *testing.T) (*Client, *websocket.Conn) {
	t.Helper()
	ready := make(chan *Client, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		c := NewClient(conn, zerolog.Nop())
		ready <- c
		c.Run()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	browser, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { browser.Close() })

	select {
	case c := <-ready:
		t.Cleanup(c.Close)
		return c, browser
	case <-time.After(2 * time.Second):
		t.Fatal("server side never upgraded")
	}
	return nil, nil
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]json.RawMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func eventName(t *testing.T, msg map[string]json.RawMessage) Event {
	t.Helper()
	var e Event
	if err := json.Unmarshal(msg["event"], &e); err != nil {
		t.Fatalf("event field: %v", err)
	}
	return e
}

func TestClientDeliversEventsInOrder(t *testing.T) {
	c, browser := startClient(t)

	c.Tick(41)
	c.Warning(1, 3)
	c.Submitted(model.Review{Trigger: model.TriggerManual, Result: model.ScoreResult{Total: 1}})

	want := []Event{EventTimer, EventWarning, EventSubmitted}
	for _, w := range want {
		msg := readEvent(t, browser)
		if got := eventName(t, msg); got != w {
			t.Fatalf("event = %q, want %q", got, w)
		}
		if w == EventTimer && string(msg["remaining"]) != "41" {
			t.Errorf("remaining = %s, want 41", msg["remaining"])
		}
		if w == EventSubmitted && string(msg["trigger"]) != `"manual"` {
			t.Errorf("trigger = %s, want manual", msg["trigger"])
		}
	}
}

func TestClientStartedAsksForFullscreen(t *testing.T) {
	c, browser := startClient(t)
	c.Started(model.Snapshot{Phase: model.PhaseInProgress})

	msg := readEvent(t, browser)
	if eventName(t, msg) != EventStarted || string(msg["fullscreen"]) != "true" {
		t.Fatalf("unexpected started event: %v", msg)
	}
}

func TestClientReject(t *testing.T) {
	c, browser := startClient(t)
	c.Reject(ActionSelect, "not accepted")

	msg := readEvent(t, browser)
	if eventName(t, msg) != EventRejected || string(msg["action"]) != `"select"` {
		t.Fatalf("unexpected rejected event: %v", msg)
	}
}

func TestClientSendAfterClose(t *testing.T) {
	c, _ := startClient(t)
	c.Close()
	c.Close()
	c.Tick(1)

	select {
	case <-c.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestClientFlushesQueueOnClose(t *testing.T) {
	c, browser := startClient(t)
	c.Error("attempt closed")
	c.Close()

	msg := readEvent(t, browser)
	if eventName(t, msg) != EventError || string(msg["error"]) != `"attempt closed"` {
		t.Fatalf("unexpected event: %v", msg)
	}

	browser.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := browser.ReadMessage(); err == nil {
		t.Fatal("connection still open after flush")
	}
}

func TestRequestPayloadAnswerValue(t *testing.T) {
	var p RequestPayload
	if err := json.Unmarshal([]byte(`{"action":"select","index":2,"value":-7}`), &p); err != nil {
		t.Fatal(err)
	}
	a, err := p.AnswerValue().Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a != model.NumericAnswer(-7) || *p.Index != 2 {
		t.Fatalf("got %v index %d", a, *p.Index)
	}
}
