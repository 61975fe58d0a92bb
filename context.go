package relay

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Context is passed to every handler a dispatch runs. It exposes the
// triggering message, the value the handler was bound with, and a send path
// back through the router.
type Context struct {
	router    *Router
	message   *Message
	bindValue any
}

// Message returns the message that triggered the handler.
func (c *Context) Message() *Message {
	return c.message
}

// Route returns the triggering message's route.
func (c *Context) Route() string {
	return c.message.Route
}

// Action returns the triggering message's action.
func (c *Context) Action() string {
	return c.message.Action
}

// Data returns the triggering message's decoded payload.
func (c *Context) Data() any {
	return c.message.Data
}

// Unmarshal decodes the triggering message's data payload into the given
// value. For inbound messages the payload is decoded straight from the
// original wire bytes.
func (c *Context) Unmarshal(into any) error {
	if raw := c.message.rawData; raw != nil {
		result := gjson.GetBytes(raw, "data")
		if !result.Exists() {
			return nil
		}
		return json.Unmarshal([]byte(result.Raw), into)
	}

	if c.message.Data == nil {
		return nil
	}
	encoded, err := json.Marshal(c.message.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, into)
}

// Value returns the value the handler was bound with: the event's bind value
// if one was set, otherwise the router's default bind value.
func (c *Context) Value() any {
	return c.bindValue
}

// Send sends a message through the router, running its send tasks. Like all
// sends it is fire-and-forget; failures are logged, never returned.
func (c *Context) Send(msg *Message) {
	c.router.Send(msg)
}

// Reply sends data back on the triggering message's route.
func (c *Context) Reply(data any) {
	c.router.Send(&Message{
		Route: c.message.Route,
		Data:  data,
	})
}
