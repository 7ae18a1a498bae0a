package retell

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// newCallStream serves one call stream per connection. script runs after
// the upgrade; the handler then drains reads until the client goes away.
func newCallStream(t *testing.T, wantToken string, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+wantToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if script != nil {
			script(conn)
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func nextEvent(t *testing.T, events <-chan CallEvent) CallEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for call event")
	}
	return CallEvent{}
}

func expectNoEvent(t *testing.T, events <-chan CallEvent) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebSocketClientCallLifecycle(t *testing.T) {
	srv := newCallStream(t, "tok-123", func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]string{"event_type": "update"})
		_ = conn.WriteJSON(map[string]string{"event_type": "call_started"})
		_ = conn.WriteJSON(map[string]string{"event_type": "call_ended"})
	})

	client := NewWebSocketClient(wsURL(srv), NewNopLogger(), true)
	defer client.Close()

	if err := client.StartCall(context.Background(), &Credential{AccessToken: "tok-123", CallID: "call_abc"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	ev := nextEvent(t, client.Events())
	if ev.Type != EventCallStarted || ev.CallID != "call_abc" {
		t.Fatalf("unexpected event %+v", ev)
	}
	ev = nextEvent(t, client.Events())
	if ev.Type != EventCallEnded || ev.CallID != "call_abc" {
		t.Fatalf("unexpected event %+v", ev)
	}
	expectNoEvent(t, client.Events())

	if id := client.CurrentCallID(); id != "" {
		t.Fatalf("expected detached client, still on %q", id)
	}
}

func TestWebSocketClientErrorFrame(t *testing.T) {
	srv := newCallStream(t, "tok-123", func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]string{"event_type": "call_started"})
		_ = conn.WriteJSON(map[string]string{"event_type": "error", "error": "agent unavailable"})
	})

	client := NewWebSocketClient(wsURL(srv), NewNopLogger(), false)
	defer client.Close()

	if err := client.StartCall(context.Background(), &Credential{AccessToken: "tok-123", CallID: "c1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	nextEvent(t, client.Events())
	ev := nextEvent(t, client.Events())
	if ev.Type != EventError || ev.Message != "agent unavailable" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestWebSocketClientNormalCloseEndsCall(t *testing.T) {
	srv := newCallStream(t, "tok-123", func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]string{"event_type": "call_started"})
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "agent hung up")
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
	})

	client := NewWebSocketClient(wsURL(srv), NewNopLogger(), false)
	defer client.Close()

	if err := client.StartCall(context.Background(), &Credential{AccessToken: "tok-123", CallID: "c1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	nextEvent(t, client.Events())
	if ev := nextEvent(t, client.Events()); ev.Type != EventCallEnded {
		t.Fatalf("expected call_ended, got %+v", ev)
	}
}

func TestWebSocketClientStopCallEmitsNothing(t *testing.T) {
	closed := make(chan int, 1)
	srv := newCallStream(t, "tok-123", func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]string{"event_type": "call_started"})
		_, _, err := conn.ReadMessage()
		if ce, ok := err.(*websocket.CloseError); ok {
			closed <- ce.Code
		}
	})

	client := NewWebSocketClient(wsURL(srv), NewNopLogger(), false)
	defer client.Close()

	if err := client.StartCall(context.Background(), &Credential{AccessToken: "tok-123", CallID: "c1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	nextEvent(t, client.Events())

	if err := client.StopCall("other"); err != nil {
		t.Fatalf("stop of another call: %v", err)
	}
	if id := client.CurrentCallID(); id != "c1" {
		t.Fatalf("stop of another call closed the stream, now on %q", id)
	}

	if err := client.StopCall("c1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case code := <-closed:
		if code != websocket.CloseNormalClosure {
			t.Fatalf("expected normal closure, got %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the close frame")
	}
	expectNoEvent(t, client.Events())

	if err := client.StopCall("c1"); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestWebSocketClientRejectedToken(t *testing.T) {
	srv := newCallStream(t, "tok-123", nil)

	client := NewWebSocketClient(wsURL(srv), NewNopLogger(), false)
	defer client.Close()

	err := client.StartCall(context.Background(), &Credential{AccessToken: "wrong", CallID: "c1"})
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if !IsErrorCode(err, ErrCodeStartFailed) {
		t.Fatalf("expected START_FAILED, got %v", err)
	}
	rErr, ok := err.(*RetellError)
	if !ok {
		t.Fatalf("expected *RetellError, got %T", err)
	}
	if status, _ := rErr.GetDetail("status_code"); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 detail, got %v", status)
	}
}

func TestWebSocketClientStartPreconditions(t *testing.T) {
	client := NewWebSocketClient("", NewNopLogger(), false)

	if err := client.StartCall(context.Background(), &Credential{}); err == nil || err.Error() != MsgNoAccessToken {
		t.Fatalf("expected missing token error, got %v", err)
	}
	if err := client.StartCall(context.Background(), &Credential{AccessToken: "tok"}); !IsErrorCode(err, ErrCodeConfigInvalid) {
		t.Fatalf("expected config error, got %v", err)
	}

	closedClient := NewWebSocketClient("ws://127.0.0.1:1", NewNopLogger(), false)
	if err := closedClient.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := closedClient.StartCall(context.Background(), &Credential{AccessToken: "tok"}); !IsErrorCode(err, ErrCodeStartFailed) {
		t.Fatalf("expected closed client error, got %v", err)
	}
}

// A controller driving the real client end to end.
func TestControllerWithWebSocketClient(t *testing.T) {
	srv := newCallStream(t, "tok-123", func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]string{"event_type": "call_started"})
	})

	client := NewWebSocketClient(wsURL(srv), NewNopLogger(), false)
	ctrl := newTestController(&fakeSource{cred: &Credential{AccessToken: "tok-123", CallID: "c1"}}, client)
	ctrl.Open(context.Background())
	defer ctrl.Close()

	ctrl.Toggle(context.Background())
	waitFor(t, func() bool { return ctrl.State().Status == StatusActive })

	if state := ctrl.Toggle(context.Background()); state.Status != StatusIdle {
		t.Fatalf("expected idle after stop, got %s", state.Status)
	}
	if id := client.CurrentCallID(); id != "" {
		t.Fatalf("expected stream closed, still on %q", id)
	}
}

// heldStopClient holds the first StopCall until release is closed.
type heldStopClient struct {
	*WebSocketClient
	once    sync.Once
	release chan struct{}
	held    chan struct{}
}

func (h *heldStopClient) StopCall(callID string) error {
	first := false
	h.once.Do(func() { first = true })
	if first {
		close(h.held)
		<-h.release
	}
	return h.WebSocketClient.StopCall(callID)
}

func TestLateStopDoesNotEndNextCall(t *testing.T) {
	srv := newCallStream(t, "tok-123", func(conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
		_ = conn.WriteJSON(map[string]string{"event_type": "call_started"})
	})

	client := &heldStopClient{
		WebSocketClient: NewWebSocketClient(wsURL(srv), NewNopLogger(), false),
		release:         make(chan struct{}),
		held:            make(chan struct{}),
	}
	source := &fakeSource{queue: []*Credential{
		{AccessToken: "tok-123", CallID: "call-1"},
		{AccessToken: "tok-123", CallID: "call-2"},
	}}
	ctrl := newTestController(source, client)
	ctrl.Open(context.Background())
	defer ctrl.Close()

	ctrl.Toggle(context.Background())
	waitFor(t, func() bool { return ctrl.State().Status == StatusActive })

	stopped := make(chan struct{})
	go func() {
		ctrl.Toggle(context.Background())
		close(stopped)
	}()
	<-client.held

	if state := ctrl.Toggle(context.Background()); state.Status != StatusCalling && state.Status != StatusActive {
		t.Fatalf("expected second call to be starting, got %+v", state)
	}
	close(client.release)
	<-stopped

	waitFor(t, func() bool { return ctrl.State().Status == StatusActive })
	if id := client.CurrentCallID(); id != "call-2" {
		t.Fatalf("expected stream of call-2, got %q", id)
	}

	if state := ctrl.Toggle(context.Background()); state.Status != StatusIdle {
		t.Fatalf("expected idle after stopping call-2, got %+v", state)
	}
}
