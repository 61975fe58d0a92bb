// Package natstransport implements the relay Transport capability over a
// NATS connection. The URL given to the router is used as the subject base:
// inbound messages are consumed from <base>.inbound and outbound messages
// are published to <base>.outbound.
package natstransport

import (
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/kestrelsoft/relay"
)

// Transport adapts a *nats.Conn to the relay Transport interface.
type Transport struct {
	NatsConnection *nats.Conn
}

var _ relay.Transport = &Transport{}

// New creates a Transport over an established NATS connection.
func New(conn *nats.Conn) *Transport {
	return &Transport{NatsConnection: conn}
}

// Connect subscribes to the inbound subject for the given subject base. The
// open event fires as soon as the subscription is established, since the
// broker connection itself already exists.
func (t *Transport) Connect(subjectBase string, events relay.TransportEvents) (relay.TransportHandle, error) {
	handle := &natsHandle{
		conn:    t.NatsConnection,
		subject: subjectBase,
		events:  events,
	}

	sub, err := t.NatsConnection.Subscribe(namespace(subjectBase, "inbound"), func(msg *nats.Msg) {
		events.OnMessage(msg.Data)
	})
	if err != nil {
		go events.OnClose()
		return handle, nil
	}
	handle.subscription = sub

	go events.OnOpen()

	return handle, nil
}

type natsHandle struct {
	conn    *nats.Conn
	subject string
	events  relay.TransportEvents

	mu           sync.Mutex
	subscription *nats.Subscription
	closed       bool
}

// Send publishes one frame to the outbound subject.
func (h *natsHandle) Send(data []byte) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return relay.ErrTransportNotOpen
	}
	return h.conn.Publish(namespace(h.subject, "outbound"), data)
}

// Close drains the inbound subscription and reports the close.
func (h *natsHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	sub := h.subscription
	h.subscription = nil
	h.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Unsubscribe()
	}
	go h.events.OnClose()
	return err
}

func namespace(subjectBase string, direction string) string {
	return subjectBase + "." + direction
}
