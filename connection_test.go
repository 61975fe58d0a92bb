package relay

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockTransport records every connect attempt and lets tests drive the open,
// close, and message reactions by hand. With autoFail set, every attempt
// reports closure immediately, as a transport that can never open would.
type mockTransport struct {
	mu       sync.Mutex
	autoOpen bool
	autoFail bool
	conns    []*mockConn
}

type mockConn struct {
	events TransportEvents
	handle *mockHandle
}

type mockHandle struct {
	mu       sync.Mutex
	sent     [][]byte
	failSend bool
	closed   int
}

func (m *mockTransport) Connect(url string, events TransportEvents) (TransportHandle, error) {
	handle := &mockHandle{}
	m.mu.Lock()
	m.conns = append(m.conns, &mockConn{events: events, handle: handle})
	autoOpen := m.autoOpen
	autoFail := m.autoFail
	m.mu.Unlock()

	if autoFail {
		events.OnClose()
		return handle, nil
	}
	if autoOpen {
		events.OnOpen()
	}
	return handle, nil
}

func (m *mockTransport) setAutoOpen(autoOpen bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoOpen = autoOpen
}

func (m *mockTransport) connectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *mockTransport) last() *mockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) == 0 {
		return nil
	}
	return m.conns[len(m.conns)-1]
}

func (h *mockHandle) Send(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failSend {
		return ErrTransportNotOpen
	}
	h.sent = append(h.sent, data)
	return nil
}

func (h *mockHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
	return nil
}

func (h *mockHandle) setFailSend(fail bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failSend = fail
}

func (h *mockHandle) sentFrames() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	frames := make([][]byte, len(h.sent))
	copy(frames, h.sent)
	return frames
}

func (h *mockHandle) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestConnectionRetryCeiling(t *testing.T) {
	transport := &mockTransport{autoFail: true}
	router := New("ws://test",
		WithTransport(transport),
		WithRetryDelay(time.Millisecond),
		WithLogger(quietLogger()))
	defer router.Close()

	waitFor(t, time.Second, func() bool {
		return transport.connectCount() == DefaultRetryLimit
	})

	// Give an eleventh attempt every chance to happen.
	time.Sleep(20 * time.Millisecond)
	if got := transport.connectCount(); got != DefaultRetryLimit {
		t.Errorf("expected exactly %d connect attempts, got %d", DefaultRetryLimit, got)
	}
}

func TestConnectionRetryCeilingConfigurable(t *testing.T) {
	transport := &mockTransport{autoFail: true}
	router := New("ws://test",
		WithTransport(transport),
		WithRetryLimit(3),
		WithRetryDelay(time.Millisecond),
		WithLogger(quietLogger()))
	defer router.Close()

	waitFor(t, time.Second, func() bool {
		return transport.connectCount() == 3
	})
	time.Sleep(20 * time.Millisecond)
	if got := transport.connectCount(); got != 3 {
		t.Errorf("expected exactly 3 connect attempts, got %d", got)
	}
}

func TestConnectionQueueFIFOReplay(t *testing.T) {
	transport := &mockTransport{}
	router := New("ws://test",
		WithTransport(transport),
		WithLogger(quietLogger()))
	defer router.Close()

	router.Send(&Message{Route: "/a"})
	router.Send(&Message{Route: "/b"})
	router.Send(&Message{Route: "/c"})

	if got := router.QueueLen(); got != 3 {
		t.Fatalf("expected 3 queued messages, got %d", got)
	}

	conn := transport.last()
	conn.events.OnOpen()

	frames := conn.handle.sentFrames()
	if len(frames) != 3 {
		t.Fatalf("expected 3 flushed frames, got %d", len(frames))
	}
	for i, route := range []string{"/a", "/b", "/c"} {
		msg, err := decodeMessage(frames[i])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.Route != route {
			t.Errorf("frame %d: expected route %q, got %q", i, route, msg.Route)
		}
	}

	if got := router.QueueLen(); got != 0 {
		t.Errorf("expected empty queue after flush, got %d", got)
	}

	router.connection.mu.Lock()
	attemptCount := router.connection.attemptCount
	router.connection.mu.Unlock()
	if attemptCount != 0 {
		t.Errorf("expected attempt count reset to 0 after open, got %d", attemptCount)
	}
}

func TestConnectionSynchronousOpenFlushesQueue(t *testing.T) {
	transport := &mockTransport{}
	router := New("ws://test",
		WithTransport(transport),
		WithRetryDelay(time.Millisecond),
		WithLogger(quietLogger()))
	defer router.Close()

	router.Send(&Message{Route: "/a"})
	router.Send(&Message{Route: "/b"})
	router.Send(&Message{Route: "/c"})

	if got := router.QueueLen(); got != 3 {
		t.Fatalf("expected 3 queued messages, got %d", got)
	}

	// The reconnect attempt reports open from inside Connect, before the
	// connection handler has seen the new handle.
	transport.setAutoOpen(true)
	transport.last().events.OnClose()

	waitFor(t, time.Second, func() bool {
		return transport.connectCount() == 2
	})

	conn := transport.last()
	waitFor(t, time.Second, func() bool {
		return len(conn.handle.sentFrames()) == 3
	})

	frames := conn.handle.sentFrames()
	for i, route := range []string{"/a", "/b", "/c"} {
		msg, err := decodeMessage(frames[i])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.Route != route {
			t.Errorf("frame %d: expected route %q, got %q", i, route, msg.Route)
		}
	}
	if got := router.QueueLen(); got != 0 {
		t.Errorf("expected empty queue after flush, got %d", got)
	}
}

func TestConnectionFlushDiscardsFailedSends(t *testing.T) {
	transport := &mockTransport{}
	router := New("ws://test",
		WithTransport(transport),
		WithLogger(quietLogger()))
	defer router.Close()

	router.Send(&Message{Route: "/a"})
	router.Send(&Message{Route: "/b"})

	conn := transport.last()
	conn.handle.setFailSend(true)
	conn.events.OnOpen()

	if got := router.QueueLen(); got != 0 {
		t.Errorf("expected failed flush sends to be discarded, queue has %d", got)
	}
}

func TestConnectionFlushRequeuePolicy(t *testing.T) {
	transport := &mockTransport{}
	router := New("ws://test",
		WithTransport(transport),
		WithRequeueOnFlushFailure(true),
		WithLogger(quietLogger()))
	defer router.Close()

	router.Send(&Message{Route: "/a"})
	router.Send(&Message{Route: "/b"})

	conn := transport.last()
	conn.handle.setFailSend(true)
	conn.events.OnOpen()

	if got := router.QueueLen(); got != 2 {
		t.Errorf("expected failed flush sends to stay queued, queue has %d", got)
	}
}

func TestConnectionSendFailureQueues(t *testing.T) {
	transport := &mockTransport{autoOpen: true}
	router := New("ws://test",
		WithTransport(transport),
		WithLogger(quietLogger()))
	defer router.Close()

	conn := transport.last()
	conn.handle.setFailSend(true)

	router.Send(&Message{Route: "/a"})

	if got := router.QueueLen(); got != 1 {
		t.Errorf("expected failed send to be queued, queue has %d", got)
	}
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	transport := &mockTransport{autoOpen: true}
	router := New("ws://test",
		WithTransport(transport),
		WithLogger(quietLogger()))

	router.Send(&Message{Route: "/a"})

	router.Close()
	router.Close()

	if got := router.QueueLen(); got != 0 {
		t.Errorf("expected empty queue after close, got %d", got)
	}
	if router.Connected() {
		t.Error("expected router to be disconnected after close")
	}
	if got := transport.last().handle.closeCount(); got != 1 {
		t.Errorf("expected the transport handle to be closed once, got %d", got)
	}
}

func TestConnectionCloseCancelsPendingReconnect(t *testing.T) {
	transport := &mockTransport{autoFail: true}
	router := New("ws://test",
		WithTransport(transport),
		WithRetryDelay(50*time.Millisecond),
		WithLogger(quietLogger()))

	if got := transport.connectCount(); got != 1 {
		t.Fatalf("expected 1 connect attempt, got %d", got)
	}

	router.Close()

	time.Sleep(100 * time.Millisecond)
	if got := transport.connectCount(); got != 1 {
		t.Errorf("expected close to cancel the pending reconnect, got %d attempts", got)
	}
}

func TestConnectionCloseBeforeOpenDefersClose(t *testing.T) {
	transport := &mockTransport{}
	router := New("ws://test",
		WithTransport(transport),
		WithLogger(quietLogger()))

	router.Close()

	conn := transport.last()
	if got := conn.handle.closeCount(); got != 0 {
		t.Fatalf("expected no close before the transport opens, got %d", got)
	}

	conn.events.OnOpen()

	if got := conn.handle.closeCount(); got != 1 {
		t.Errorf("expected deferred close once the transport opened, got %d", got)
	}
	if router.Connected() {
		t.Error("expected router to stay disconnected")
	}
}

func TestConnectionMalformedInboundPayloadPanics(t *testing.T) {
	transport := &mockTransport{autoOpen: true}
	router := New("ws://test",
		WithTransport(transport),
		WithLogger(quietLogger()))
	defer router.Close()

	defer func() {
		if recover() == nil {
			t.Error("expected malformed inbound payload to panic")
		}
	}()
	transport.last().events.OnMessage([]byte("not json"))
}

func TestConnectionInboundRateLimit(t *testing.T) {
	transport := &mockTransport{autoOpen: true}
	router := New("ws://test",
		WithTransport(transport),
		WithMessageRate(1, 1),
		WithLogger(quietLogger()))
	defer router.Close()

	var dispatched int
	router.On("/ping", func(ctx *Context) {
		dispatched++
	})

	events := transport.last().events
	events.OnMessage([]byte(`{"route":"/ping"}`))
	events.OnMessage([]byte(`{"route":"/ping"}`))

	if dispatched != 1 {
		t.Errorf("expected 1 dispatched message under the rate limit, got %d", dispatched)
	}
}
