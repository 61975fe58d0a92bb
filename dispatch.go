package relay

import (
	"fmt"
	"log/slog"
)

// dispatcher selects and runs the events that match an inbound message. Each
// dispatch builds its own run-list and has its own failure domain: the first
// handler failure aborts the remainder of that run-list and is reported on
// ErrorRoute, leaving later dispatches unaffected.
type dispatcher struct {
	router *Router
	table  *routeTable
	logger *slog.Logger
}

// runEntry is one bound handler in a dispatch's run-list.
type runEntry struct {
	handler   any
	bindValue any
}

// shouldEventExecute reports whether an event matches a message. The event's
// action pattern must match the message's action, every declared filter must
// be satisfied by the message's data payload, and the event's route pattern
// must match the message's route. A missing data object or field is a
// non-match, not an error.
func shouldEventExecute(msg *Message, event *Event) bool {
	if event.action != nil && !event.action.Match(msg.Action) {
		return false
	}
	for _, filter := range event.filters {
		value, ok := msg.dataField(filter.key)
		if !ok {
			return false
		}
		if !filter.pattern.Match(value) {
			return false
		}
	}
	return event.pattern.Match(msg.Route)
}

// shouldTaskExecute reports whether a send task applies to a message at the
// given position.
func shouldTaskExecute(msg *Message, task *SendTask, position TaskPosition) bool {
	return task.position == position && task.pattern.Match(msg.Route)
}

// dispatch routes one inbound message: it collects the handlers of every
// matching event, regular collection first and deferred collection second,
// in registration order, and runs them. A handler failure is converted into
// an error message sent on ErrorRoute.
func (d *dispatcher) dispatch(msg *Message) {
	runList := d.buildRunList(msg)

	if err := d.run(runList, msg); err != nil {
		d.logger.Error("handler failed",
			"route", msg.Route,
			"action", msg.Action,
			"error", err)
		d.router.Send(newErrorMessage(err))
	}
}

// buildRunList selects matching events under the table lock and expands
// multi-handler events into one entry per handler, in array order. Each
// entry is bound to the event's bind value if one was set, otherwise to the
// router's default bind value.
func (d *dispatcher) buildRunList(msg *Message) []runEntry {
	d.table.mu.Lock()
	defer d.table.mu.Unlock()

	var runList []runEntry
	appendMatches := func(events []*Event) {
		for _, event := range events {
			if !shouldEventExecute(msg, event) {
				continue
			}
			bindValue := d.router.bindValue
			if event.hasBind {
				bindValue = event.bindValue
			}
			for _, handler := range event.handlers {
				runList = append(runList, runEntry{
					handler:   handler,
					bindValue: bindValue,
				})
			}
		}
	}

	appendMatches(d.table.events)
	appendMatches(d.table.deferredEvents)

	return runList
}

// run executes the run-list strictly in order. The first failure aborts the
// remaining entries and is returned.
func (d *dispatcher) run(runList []runEntry, msg *Message) error {
	for _, entry := range runList {
		if err := d.runOne(entry, msg); err != nil {
			return err
		}
	}
	return nil
}

// runOne executes a single handler, converting a panic into an error at the
// per-dispatch boundary.
func (d *dispatcher) runOne(entry runEntry, msg *Message) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = recoveredError(recovered)
		}
	}()

	callHandler(entry.handler, &Context{
		router:    d.router,
		message:   msg,
		bindValue: entry.bindValue,
	})
	return nil
}

// recoveredError shapes a recovered panic value into an error carrying only
// its description.
func recoveredError(recovered any) error {
	if err, ok := recovered.(error); ok {
		return err
	}
	return fmt.Errorf("%v", recovered)
}
