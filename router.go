package relay

import "log/slog"

// Router is a client-side message router over a single persistent socket
// connection. It registers handlers against route patterns, keeps the
// underlying connection alive with bounded retries, queues outbound messages
// while disconnected, and dispatches inbound messages to every matching
// handler in registration order.
type Router struct {
	logger    *slog.Logger
	bindValue any

	table      *routeTable
	dispatcher *dispatcher
	connection *connectionHandler
}

// New creates a router and immediately begins connecting to the given URL.
// There is no explicit connect call: the connection is maintained
// automatically until Close.
func New(url string, opts ...Option) *Router {
	o := newOptions(opts)

	r := &Router{
		logger:    o.logger,
		bindValue: o.bindValue,
		table:     newRouteTable(),
	}

	r.dispatcher = &dispatcher{
		router: r,
		table:  r.table,
		logger: o.logger,
	}

	r.connection = newConnectionHandler(url, r.dispatcher.dispatch, connectionConfig{
		transport:             o.transport,
		logger:                o.logger,
		limiter:               o.limiter,
		retryLimit:            o.retryLimit,
		retryDelay:            o.retryDelay,
		requeueOnFlushFailure: o.requeueOnFlushFailure,
	})

	return r
}

// On registers handlers for messages whose route matches the given pattern.
// The returned builder narrows the registration further:
//
//	router.On("/items/*", onItem).Action("UPDATE").Filters(relay.Filters{"status": "ok*"})
//
// Handlers must be of type Handler, HandlerFunc, or func(*Context). Panics
// if no handlers are provided or a handler has an invalid type.
func (r *Router) On(route string, handlers ...any) *EventBuilder {
	event := r.table.register(route, MustPattern(DefaultAction), handlers)
	return &EventBuilder{table: r.table, event: event}
}

// Intercept registers handlers matched by route only, with no action or
// filter gating.
func (r *Router) Intercept(route string, handlers ...any) *EventBuilder {
	event := r.table.register(route, nil, handlers)
	return &EventBuilder{table: r.table, event: event}
}

// Create registers a handler for CREATE messages on the route.
func (r *Router) Create(route string, handler any, filters ...Filters) *EventBuilder {
	return r.onAction("CREATE", route, handler, filters)
}

// Update registers a handler for UPDATE messages on the route.
func (r *Router) Update(route string, handler any, filters ...Filters) *EventBuilder {
	return r.onAction("UPDATE", route, handler, filters)
}

// Delete registers a handler for DELETE messages on the route.
func (r *Router) Delete(route string, handler any, filters ...Filters) *EventBuilder {
	return r.onAction("DELETE", route, handler, filters)
}

// Request registers a handler for REQUEST messages on the route.
func (r *Router) Request(route string, handler any, filters ...Filters) *EventBuilder {
	return r.onAction("REQUEST", route, handler, filters)
}

// Subscribe registers a handler for SUBSCRIBE messages on the route.
func (r *Router) Subscribe(route string, handler any, filters ...Filters) *EventBuilder {
	return r.onAction("SUBSCRIBE", route, handler, filters)
}

// onAction is the shared body of the convenience registrations: plain
// composition of On, Action, and Filters.
func (r *Router) onAction(action string, route string, handler any, filters []Filters) *EventBuilder {
	builder := r.On(route, handler).Action(action)
	for _, f := range filters {
		builder.Filters(f)
	}
	return builder
}

// BeforeSend registers a task that runs before every send whose route
// matches the pattern. A failing BeforeSend task aborts that send.
func (r *Router) BeforeSend(route string, task TaskFunc) {
	r.table.registerSendTask(route, task, BeforeSend)
}

// AfterSend registers a task that runs after every send whose route matches
// the pattern.
func (r *Router) AfterSend(route string, task TaskFunc) {
	r.table.registerSendTask(route, task, AfterSend)
}

// Message sends a message, defaulting its route to "*". A nil message sends
// an empty one.
func (r *Router) Message(msg *Message) {
	if msg == nil {
		msg = &Message{}
	}
	if msg.Route == "" {
		msg.Route = "*"
	}
	r.Send(msg)
}

// Send sends a message through the outbound path: every matching BeforeSend
// task in registration order, then the connection send (which queues the
// message if the transport is down), then every matching AfterSend task.
// Sends are fire-and-forget: any failure in the sequence is caught and
// logged, never surfaced to the caller. A BeforeSend failure aborts that
// send attempt; an AfterSend failure is logged after the send has already
// happened.
func (r *Router) Send(msg *Message) {
	if msg == nil {
		return
	}

	if err := r.runSendTasks(msg, BeforeSend); err != nil {
		r.logger.Error("send aborted by before-send task",
			"route", msg.Route,
			"error", err)
		return
	}

	r.connection.send(msg)

	if err := r.runSendTasks(msg, AfterSend); err != nil {
		r.logger.Error("after-send task failed",
			"route", msg.Route,
			"error", err)
	}
}

// runSendTasks executes every registered task matching the message at the
// given position, in registration order, stopping at the first failure. A
// task panic is contained at the same boundary as a returned error.
func (r *Router) runSendTasks(msg *Message, position TaskPosition) error {
	for _, task := range r.table.snapshotTasks() {
		if !shouldTaskExecute(msg, task, position) {
			continue
		}
		if err := runSendTask(task, msg); err != nil {
			return err
		}
	}
	return nil
}

func runSendTask(task *SendTask, msg *Message) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = recoveredError(recovered)
		}
	}()
	return task.task(msg)
}

// Close clears the outbound queue and shuts the connection down, cancelling
// any pending reconnect. Closing twice is safe.
func (r *Router) Close() {
	r.connection.close()
}

// Connected reports whether the underlying transport is currently open.
// After the retry ceiling is reached the connection stays permanently down;
// this is the way to observe that state.
func (r *Router) Connected() bool {
	return r.connection.connected()
}

// QueueLen reports the number of outbound messages waiting for the next
// successful connection.
func (r *Router) QueueLen() int {
	return r.connection.queueLen()
}
