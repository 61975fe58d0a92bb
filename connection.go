package relay

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Connection retry defaults. Both are configurable through options.
const (
	DefaultRetryLimit = 10
	DefaultRetryDelay = 1000 * time.Millisecond
)

// connectionHandler owns the transport handle, the connect attempt counter,
// and the outbound queue. It maintains the connection through the cycle
//
//	connecting -> open -> closed (retryable) -> connecting -> ...
//
// until either the consumer closes it or the retry ceiling is reached, after
// which the connection is abandoned: no further attempts are made, and the
// only signal is a logged diagnostic and the absence of further activity.
type connectionHandler struct {
	url       string
	transport Transport
	onMessage func(msg *Message)
	logger    *slog.Logger
	limiter   *rate.Limiter

	retryLimit            int
	retryDelay            time.Duration
	requeueOnFlushFailure bool

	mu             sync.Mutex
	id             string
	handle         TransportHandle
	open           bool
	closed         bool
	attemptCount   int
	queue          []*Message
	reconnectTimer *time.Timer

	// flushOnHandle is set when the open reaction fires before connect has
	// stored the attempt's handle. Transports may report open synchronously
	// from inside Connect; flushing then would find no handle to send on,
	// so the flush is deferred until the handle is stored.
	flushOnHandle bool
}

type connectionConfig struct {
	transport             Transport
	logger                *slog.Logger
	limiter               *rate.Limiter
	retryLimit            int
	retryDelay            time.Duration
	requeueOnFlushFailure bool
}

// newConnectionHandler stores the url and message callback and immediately
// begins connecting.
func newConnectionHandler(url string, onMessage func(msg *Message), cfg connectionConfig) *connectionHandler {
	c := &connectionHandler{
		url:                   url,
		transport:             cfg.transport,
		onMessage:             onMessage,
		logger:                cfg.logger,
		limiter:               cfg.limiter,
		retryLimit:            cfg.retryLimit,
		retryDelay:            cfg.retryDelay,
		requeueOnFlushFailure: cfg.requeueOnFlushFailure,
		id:                    uuid.NewString(),
	}

	c.connect()

	return c
}

// connect increments the attempt counter and opens a new transport handle,
// installing the open, close, and message reactions. A synchronous connect
// failure is treated like a close so the retry path stays uniform.
func (c *connectionHandler) connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.attemptCount++
	attempt := c.attemptCount
	c.mu.Unlock()

	c.logger.Debug("connecting",
		"connection", c.id,
		"url", c.url,
		"attempt", attempt)

	handle, err := c.transport.Connect(c.url, TransportEvents{
		OnOpen:    c.handleOpen,
		OnClose:   c.handleClose,
		OnMessage: c.handleMessage,
	})
	if err != nil {
		c.logger.Debug("connect failed",
			"connection", c.id,
			"attempt", attempt,
			"error", err)
		c.handleClose()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = handle.Close()
		return
	}
	c.handle = handle
	flushNow := c.open && c.flushOnHandle
	c.flushOnHandle = false
	c.mu.Unlock()

	if flushNow {
		c.flush()
	}
}

// handleOpen marks the connection healthy and drains the queue. If the
// consumer closed the connection while it was still connecting, the handle
// is closed instead.
func (c *connectionHandler) handleOpen() {
	c.mu.Lock()
	if c.closed {
		handle := c.handle
		c.handle = nil
		c.mu.Unlock()
		if handle != nil {
			_ = handle.Close()
		}
		return
	}
	c.open = true
	if c.handle == nil {
		c.flushOnHandle = true
		c.mu.Unlock()
		c.logger.Debug("connection open", "connection", c.id)
		return
	}
	c.mu.Unlock()

	c.logger.Debug("connection open", "connection", c.id)

	c.flush()
}

// handleClose schedules a reconnect after the retry delay, unless the
// consumer closed the connection or the retry ceiling has been reached.
// Reaching the ceiling abandons the connection permanently.
func (c *connectionHandler) handleClose() {
	c.mu.Lock()
	c.open = false
	c.handle = nil
	c.flushOnHandle = false
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.attemptCount >= c.retryLimit {
		c.mu.Unlock()
		c.logger.Error("connection abandoned: retry limit reached",
			"connection", c.id,
			"url", c.url,
			"attempts", c.retryLimit)
		return
	}
	c.reconnectTimer = time.AfterFunc(c.retryDelay, c.connect)
	c.mu.Unlock()

	c.logger.Debug("connection lost, reconnecting",
		"connection", c.id,
		"delay", c.retryDelay)
}

// handleMessage parses an inbound frame and hands it to the message
// callback. A payload that is not valid JSON is fatal: the parse is
// deliberately unguarded and the failure propagates out of the transport's
// message reaction.
func (c *connectionHandler) handleMessage(data []byte) {
	if c.limiter != nil && !c.limiter.Allow() {
		c.logger.Warn("inbound message dropped: rate limit exceeded",
			"connection", c.id)
		return
	}

	msg, err := decodeMessage(data)
	if err != nil {
		panic(fmt.Errorf("malformed inbound message: %w", err))
	}

	c.onMessage(msg)
}

// flush resets the attempt counter, marking the connection healthy, then
// attempts to send every queued message in order. After the pass the queue
// is cleared unconditionally unless requeueOnFlushFailure is set: by default
// even messages that failed during the flush and were re-enqueued by send are
// discarded, which keeps a dead connection from flushing forever.
func (c *connectionHandler) flush() {
	c.mu.Lock()
	c.attemptCount = 0
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	for _, msg := range pending {
		c.send(msg)
	}

	if c.requeueOnFlushFailure {
		return
	}

	c.mu.Lock()
	dropped := len(c.queue)
	c.queue = nil
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Warn("flush discarded undeliverable messages",
			"connection", c.id,
			"count", dropped)
	}
}

// send attempts a synchronous transport send of the serialized message. On
// any failure the message is appended to the queue for the next flush
// instead of being dropped.
func (c *connectionHandler) send(msg *Message) {
	c.mu.Lock()
	handle := c.handle
	open := c.open
	c.mu.Unlock()

	if !open || handle == nil {
		c.enqueue(msg)
		return
	}

	data, err := encodeMessage(msg)
	if err != nil {
		c.logger.Error("dropping unserializable message",
			"connection", c.id,
			"route", msg.Route,
			"error", err)
		return
	}

	if err := handle.Send(data); err != nil {
		c.logger.Debug("send failed, queuing message",
			"connection", c.id,
			"route", msg.Route,
			"error", err)
		c.enqueue(msg)
	}
}

func (c *connectionHandler) enqueue(msg *Message) {
	c.mu.Lock()
	c.queue = append(c.queue, msg)
	c.mu.Unlock()
}

// close clears the queue and shuts the connection down. If the transport is
// still connecting the close is deferred until it opens. A pending reconnect
// timer is cancelled, so closing during a backoff window prevents the next
// attempt. Close is idempotent.
func (c *connectionHandler) close() {
	c.mu.Lock()
	c.queue = nil
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	handle := c.handle
	open := c.open
	if open {
		c.handle = nil
		c.open = false
	}
	c.mu.Unlock()

	if open && handle != nil {
		_ = handle.Close()
	}
}

// connected reports whether the transport is currently open.
func (c *connectionHandler) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// queueLen reports the number of messages waiting for the next flush.
func (c *connectionHandler) queueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
