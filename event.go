package relay

import "reflect"

// Filters constrains an event to messages whose data payload carries matching
// fields. Each value is itself a pattern, so filters support wildcard
// matching, not just equality:
//
//	relay.Filters{"status": "ok*"}
//
// A filter is satisfied when the message carries a data object, the field is
// present, and its stringified value matches the compiled value pattern.
type Filters map[string]string

// filterPattern is one compiled filter entry.
type filterPattern struct {
	key     string
	pattern *Pattern
}

// Event is a registered inbound handler binding. An event fires when a
// message's action matches the event's action pattern, every declared filter
// is satisfied, and the message's route matches the event's route pattern.
// Events are created through Router.On and configured through the returned
// EventBuilder before the first matching message arrives.
type Event struct {
	pattern *Pattern

	// action gates on the message's action. A nil action matches every
	// message; Intercept registers events this way.
	action *Pattern

	filters []filterPattern

	// handlers run in order when the event fires. A multi-handler event
	// expands to one run-list entry per handler.
	handlers []any

	// bindValue overrides the router's default bind value for this event's
	// handlers; hasBind distinguishes an explicit nil bind.
	bindValue any
	hasBind   bool
}

// EventBuilder configures a just-registered event. It mutates the stored
// event through its handle into the owning table, so configuration is visible
// to dispatch as soon as it is applied. Builders are meant to be used at
// registration time, before matching messages arrive.
type EventBuilder struct {
	table *routeTable
	event *Event
}

// Action restricts the event to messages whose action matches the given
// pattern. Events match any action ("*") until this is set.
func (b *EventBuilder) Action(action string) *EventBuilder {
	pattern := MustPattern(action)
	b.table.mu.Lock()
	b.event.action = pattern
	b.table.mu.Unlock()
	return b
}

// Filters restricts the event to messages whose data payload satisfies every
// given filter. Filter values are compiled as patterns.
func (b *EventBuilder) Filters(filters Filters) *EventBuilder {
	compiled := make([]filterPattern, 0, len(filters))
	for key, value := range filters {
		compiled = append(compiled, filterPattern{
			key:     key,
			pattern: MustPattern(value),
		})
	}
	b.table.mu.Lock()
	b.event.filters = append(b.event.filters, compiled...)
	b.table.mu.Unlock()
	return b
}

// Bind sets the value exposed to the event's handlers through Context.Value,
// overriding the router's default bind value.
func (b *EventBuilder) Bind(value any) *EventBuilder {
	b.table.mu.Lock()
	b.event.bindValue = value
	b.event.hasBind = true
	b.table.mu.Unlock()
	return b
}

// ExecuteLast moves the event into the deferred collection. Deferred events
// run after all regular events during a dispatch, preserving their relative
// registration order among themselves.
func (b *EventBuilder) ExecuteLast() *EventBuilder {
	b.table.deferEvent(b.event)
	return b
}

// Handler is a handler object interface. Any object that implements this
// interface can be registered against a route.
type Handler interface {
	Handle(ctx *Context)
}

// HandlerFunc is a function adapter that allows ordinary functions to be
// used as handlers. This is the most common way to define handlers.
type HandlerFunc func(ctx *Context)

// validateHandlers panics unless every handler is a Handler, HandlerFunc, or
// func(*Context).
func validateHandlers(handlers []any) {
	if len(handlers) == 0 {
		panic("no handlers provided")
	}

	for _, handler := range handlers {
		if _, ok := handler.(Handler); ok {
			continue
		} else if _, ok := handler.(HandlerFunc); ok {
			continue
		} else if _, ok := handler.(func(*Context)); ok {
			continue
		}

		panic("invalid handler type. Must be Handler, HandlerFunc, or " +
			"func(*Context). Got: " + reflect.TypeOf(handler).String())
	}
}

func callHandler(handler any, ctx *Context) {
	switch h := handler.(type) {
	case Handler:
		h.Handle(ctx)
	case HandlerFunc:
		h(ctx)
	case func(*Context):
		h(ctx)
	}
}
