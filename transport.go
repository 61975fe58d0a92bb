package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ErrTransportNotOpen is returned by a transport handle when a send is
// attempted before the transport has opened or after it has closed. The
// connection handler reacts by queuing the message for a later flush.
var ErrTransportNotOpen = errors.New("transport is not open")

// TransportEvents carries the reactions a transport invokes as the underlying
// connection changes state. All three callbacks are required.
type TransportEvents struct {
	// OnOpen is invoked once the transport is established and ready to send.
	OnOpen func()

	// OnClose is invoked when the transport closes, whether or not it ever
	// opened. A failed connection attempt reports through OnClose.
	OnClose func()

	// OnMessage is invoked for every inbound frame with its raw bytes.
	OnMessage func(data []byte)
}

// TransportHandle is a single established (or establishing) connection
// produced by a Transport.
type TransportHandle interface {
	// Send writes one frame. It returns an error if the transport is not
	// open or the write fails.
	Send(data []byte) error

	// Close tears the connection down. It is safe to call at any point in
	// the connection's life, including before it opens.
	Close() error
}

// Transport is the injected connection capability the router is built on.
// Connect begins establishing a connection to the given URL and returns a
// handle immediately; the outcome is reported through the events. The default
// implementation is WebSocketTransport.
type Transport interface {
	Connect(url string, events TransportEvents) (TransportHandle, error)
}

// DefaultDialTimeout is the handshake timeout used by WebSocketTransport
// when none is configured.
const DefaultDialTimeout = 10 * time.Second

// WebSocketTransport is the default Transport. It dials the URL as a
// websocket endpoint and delivers text frames.
type WebSocketTransport struct {
	// DialTimeout bounds the websocket handshake. Defaults to
	// DefaultDialTimeout when zero.
	DialTimeout time.Duration
}

var _ Transport = &WebSocketTransport{}

// Connect dials the URL in the background. The returned handle is usable
// immediately; sends before the handshake completes fail with
// ErrTransportNotOpen.
func (t *WebSocketTransport) Connect(url string, events TransportEvents) (TransportHandle, error) {
	handle := &webSocketHandle{}

	dialTimeout := t.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = DefaultDialTimeout
	}

	go handle.run(url, dialTimeout, events)

	return handle, nil
}

type webSocketHandle struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (h *webSocketHandle) run(url string, dialTimeout time.Duration, events TransportEvents) {
	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	cancel()
	if err != nil {
		events.OnClose()
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		events.OnClose()
		return
	}
	h.conn = conn
	h.mu.Unlock()

	events.OnOpen()

	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			break
		}
		events.OnMessage(data)
	}

	h.mu.Lock()
	h.conn = nil
	h.mu.Unlock()

	events.OnClose()
}

func (h *webSocketHandle) Send(data []byte) error {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return ErrTransportNotOpen
	}
	return conn.Write(context.Background(), websocket.MessageText, data)
}

func (h *webSocketHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	conn := h.conn
	h.conn = nil
	h.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}
