package relay

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrorRoute is the reserved route on which the router reports handler
// failures. When a dispatched handler fails, an error message is sent on this
// route carrying a minimal description of the failure:
//
//	{ "route": "/socket/error", "data": { "message": "..." } }
const ErrorRoute = "/socket/error"

// DefaultAction is the action assigned to messages and events that do not
// declare one. As a pattern it matches any action.
const DefaultAction = "*"

// Message is the unit of communication with the remote end. Messages are
// wire-serialized as UTF-8 JSON text. A message is a value object: it is
// never mutated after construction, except by send tasks which may transform
// an outbound message before it reaches the transport.
type Message struct {
	// Route identifies the logical channel the message belongs to. Handlers
	// are matched against this value.
	Route string `json:"route"`

	// Action is a secondary classifier (e.g. CREATE, UPDATE) matched
	// independently of the route. Defaults to "*".
	Action string `json:"action,omitempty"`

	// Data is the message payload.
	Data any `json:"data,omitempty"`

	// rawData holds the original wire bytes for inbound messages. Filter
	// evaluation reads fields out of it without re-decoding the payload.
	rawData []byte
}

// Raw returns the original wire bytes of an inbound message, or nil for
// messages constructed locally.
func (m *Message) Raw() []byte {
	return m.rawData
}

// dataField returns the stringified value of a field of the message's data
// payload. The second return value is false when the message carries no data
// or the field is absent.
func (m *Message) dataField(key string) (string, bool) {
	raw := m.rawData
	if raw == nil {
		if m.Data == nil {
			return "", false
		}
		encoded, err := json.Marshal(m)
		if err != nil {
			return "", false
		}
		raw = encoded
	}

	result := gjson.GetBytes(raw, "data."+escapeFieldKey(key))
	if !result.Exists() {
		return "", false
	}
	return result.String(), true
}

// escapeFieldKey escapes every character the path syntax treats specially
// (separators, wildcards, modifiers, array queries, pipes) so a field key is
// looked up as a single literal key.
func escapeFieldKey(key string) string {
	key = strings.ReplaceAll(key, "\\", "\\\\")
	for _, special := range []string{".", "*", "?", "@", "#", "|"} {
		key = strings.ReplaceAll(key, special, "\\"+special)
	}
	return key
}

// encodeMessage serializes a message for the wire.
func encodeMessage(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

// decodeMessage parses an inbound wire frame. The original bytes are retained
// on the message for filter evaluation. A missing action defaults to "*".
func decodeMessage(data []byte) (*Message, error) {
	msg := &Message{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	if msg.Action == "" {
		msg.Action = DefaultAction
	}
	msg.rawData = data
	return msg, nil
}

// newErrorMessage builds the message reported on ErrorRoute for a failed
// dispatch. Only the failure's description is carried; handler internals are
// never leaked beyond it.
func newErrorMessage(err error) *Message {
	return &Message{
		Route: ErrorRoute,
		Data:  map[string]string{"message": err.Error()},
	}
}
