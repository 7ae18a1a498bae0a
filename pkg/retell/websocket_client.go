package retell

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// CallClient is the real-time side of a call. Lifecycle events are delivered
// on Events in the order they occur. StopCall only affects the call with
// the given id; a stop for any other call is a no-op.
type CallClient interface {
	StartCall(ctx context.Context, cred *Credential) error
	StopCall(callID string) error
	Events() <-chan CallEvent
	Close() error
}

// wireEvent is one frame on the call event stream.
type wireEvent struct {
	EventType string `json:"event_type"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// WebSocketClient follows a call's lifecycle over a WebSocket event stream
// authorised by the call's access token.
type WebSocketClient struct {
	endpoint string
	dialer   *websocket.Dialer
	logger   *Logger
	debug    bool

	events chan CallEvent
	done   chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	callID string
	closed bool
}

func NewWebSocketClient(endpoint string, logger *Logger, debug bool) *WebSocketClient {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	return &WebSocketClient{
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
		logger: logger.WithComponent("call-client"),
		debug:  debug,
		events: make(chan CallEvent, 16),
		done:   make(chan struct{}),
	}
}

func (wsc *WebSocketClient) Events() <-chan CallEvent {
	return wsc.events
}

// StartCall joins the call for cred. Any call still open is stopped first.
func (wsc *WebSocketClient) StartCall(ctx context.Context, cred *Credential) error {
	if cred == nil || cred.AccessToken == "" {
		return NewRetellError(MsgNoAccessToken, ErrCodeStartFailed)
	}
	if wsc.endpoint == "" {
		return NewConfigError("RETELL_CALL_WS_ENDPOINT is not set")
	}

	wsc.mu.Lock()
	if wsc.closed {
		wsc.mu.Unlock()
		return NewRetellError("call client is closed", ErrCodeStartFailed)
	}
	wsc.closeConnLocked()
	wsc.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred.AccessToken)

	conn, resp, err := wsc.dialer.DialContext(ctx, wsc.endpoint, header)
	if err != nil {
		rErr := WrapError(err, ErrCodeStartFailed)
		if resp != nil {
			rErr.AddDetail("status_code", resp.StatusCode)
		}
		return rErr
	}

	wsc.mu.Lock()
	if wsc.closed {
		wsc.mu.Unlock()
		conn.Close()
		return NewRetellError("call client is closed", ErrCodeStartFailed)
	}
	wsc.closeConnLocked()
	wsc.conn = conn
	wsc.callID = cred.CallID
	wsc.mu.Unlock()

	if wsc.debug {
		wsc.logger.WithField("call_id", cred.CallID).Debug("Call stream connected")
	}

	go wsc.readLoop(conn, cred.CallID)
	return nil
}

func (wsc *WebSocketClient) readLoop(conn *websocket.Conn, callID string) {
	for {
		var frame wireEvent
		err := conn.ReadJSON(&frame)
		if err != nil {
			if !wsc.isCurrent(conn) {
				return
			}
			wsc.detach(conn)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				wsc.emit(CallEvent{Type: EventCallEnded, CallID: callID, Timestamp: time.Now()})
				return
			}
			wsc.logger.WithError(err).WithField("call_id", callID).Warn("Call stream read failed")
			wsc.emit(CallEvent{Type: EventError, Message: err.Error(), CallID: callID, Timestamp: time.Now()})
			return
		}

		if wsc.debug {
			wsc.logger.WithField("frame", frame).Debug("Received call event")
		}

		ev := CallEvent{CallID: callID, Timestamp: time.Now()}
		switch EventType(frame.EventType) {
		case EventCallStarted:
			ev.Type = EventCallStarted
		case EventCallEnded:
			ev.Type = EventCallEnded
		case EventError:
			ev.Type = EventError
			ev.Message = frame.Message
			if ev.Message == "" {
				ev.Message = frame.Error
			}
		default:
			wsc.logger.WithField("event_type", frame.EventType).Debug("Ignoring call event")
			continue
		}

		if !wsc.isCurrent(conn) {
			return
		}
		wsc.emit(ev)
		if ev.Type == EventCallEnded {
			wsc.detach(conn)
			conn.Close()
			return
		}
	}
}

func (wsc *WebSocketClient) isCurrent(conn *websocket.Conn) bool {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()
	return wsc.conn == conn
}

func (wsc *WebSocketClient) detach(conn *websocket.Conn) {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()
	if wsc.conn == conn {
		wsc.conn = nil
		wsc.callID = ""
	}
}

func (wsc *WebSocketClient) emit(ev CallEvent) {
	select {
	case wsc.events <- ev:
	case <-wsc.done:
	}
}

// StopCall closes the stream of call callID if it is still the current
// one. It does not wait for the far end to confirm and emits no event.
func (wsc *WebSocketClient) StopCall(callID string) error {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()
	if wsc.conn == nil || wsc.callID != callID {
		return nil
	}
	return wsc.closeConnLocked()
}

func (wsc *WebSocketClient) closeConnLocked() error {
	if wsc.conn == nil {
		return nil
	}
	conn := wsc.conn
	wsc.conn = nil
	wsc.callID = ""

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call stopped")
	werr := conn.WriteControl(websocket.CloseMessage, msg, deadline)
	cerr := conn.Close()
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		return WrapError(werr, ErrCodeConnectionFailed)
	}
	if cerr != nil {
		return WrapError(cerr, ErrCodeConnectionFailed)
	}
	return nil
}

// Close stops any call and releases the client. Events is left open so
// that readers never see a spurious zero event.
func (wsc *WebSocketClient) Close() error {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()
	if wsc.closed {
		return nil
	}
	wsc.closed = true
	close(wsc.done)
	return wsc.closeConnLocked()
}

// CurrentCallID is the call the stream is attached to, empty when idle.
func (wsc *WebSocketClient) CurrentCallID() string {
	wsc.mu.Lock()
	defer wsc.mu.Unlock()
	return wsc.callID
}
