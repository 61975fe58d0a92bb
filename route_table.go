package relay

import "sync"

// TaskPosition places a send task relative to the transport send.
type TaskPosition int

const (
	// BeforeSend tasks run before the message reaches the connection. A
	// failing BeforeSend task aborts that send attempt.
	BeforeSend TaskPosition = iota

	// AfterSend tasks run after the connection send has been attempted.
	AfterSend
)

// TaskFunc is a send hook. Tasks may transform the outbound message in
// place. A returned error is caught and logged by the router; it is never
// surfaced to the caller of Send.
type TaskFunc func(msg *Message) error

// SendTask is a registered send hook: a task bound to a route pattern and a
// position around the send path. Tasks are distinct from inbound event
// handlers and are consulted only on the outbound path.
type SendTask struct {
	pattern  *Pattern
	task     TaskFunc
	position TaskPosition
}

// routeTable holds the ordered event and send-task collections owned by a
// router. Registration may race with dispatch, so all access goes through
// the table lock.
type routeTable struct {
	mu             sync.Mutex
	events         []*Event
	deferredEvents []*Event
	tasks          []*SendTask
}

func newRouteTable() *routeTable {
	return &routeTable{}
}

// register compiles the route, appends a new event to the regular
// collection, and returns it. The route pattern is compiled exactly once, at
// registration.
func (t *routeTable) register(route string, action *Pattern, handlers []any) *Event {
	validateHandlers(handlers)

	event := &Event{
		pattern:  MustPattern(route),
		action:   action,
		handlers: handlers,
	}

	t.mu.Lock()
	t.events = append(t.events, event)
	t.mu.Unlock()

	return event
}

// deferEvent moves an event from the regular collection to the deferred
// collection, preserving relative order within each.
func (t *routeTable) deferEvent(event *Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, candidate := range t.events {
		if candidate != event {
			continue
		}
		t.events = append(t.events[:i], t.events[i+1:]...)
		t.deferredEvents = append(t.deferredEvents, event)
		return
	}
}

// registerSendTask compiles the route and appends a task to the task list.
func (t *routeTable) registerSendTask(route string, task TaskFunc, position TaskPosition) {
	if task == nil {
		panic("no task provided")
	}

	sendTask := &SendTask{
		pattern:  MustPattern(route),
		task:     task,
		position: position,
	}

	t.mu.Lock()
	t.tasks = append(t.tasks, sendTask)
	t.mu.Unlock()
}

// snapshotTasks returns a stable copy of the task list for one send.
func (t *routeTable) snapshotTasks() []*SendTask {
	t.mu.Lock()
	defer t.mu.Unlock()

	tasks := make([]*SendTask, len(t.tasks))
	copy(tasks, t.tasks)
	return tasks
}
