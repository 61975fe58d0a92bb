// Package relay provides a client-side message router over a single
// persistent websocket connection.
//
// Relay lets a consumer register handlers against route patterns, with
// optional action and data filters, while the underlying connection is
// maintained automatically: lost connections are retried with a bounded,
// fixed-delay backoff, outbound messages are queued while disconnected, and
// the queue is flushed in order once the connection is re-established.
//
// # Quick Start
//
// Create a router against a URL and bind handlers to routes:
//
//	router := relay.New("wss://example.com/socket")
//
//	router.On("/chat/*", func(ctx *relay.Context) {
//	    var msg ChatMessage
//	    ctx.Unmarshal(&msg)
//	    ...
//	})
//
//	router.Send(&relay.Message{Route: "/chat/lobby", Data: "hello"})
//
// # Message Format
//
// Messages are UTF-8 JSON text frames:
//
//	{
//	  "route": "/items/5",
//	  "action": "UPDATE",
//	  "data": { "status": "ok-confirmed" }
//	}
//
// The action defaults to "*" on both messages and registrations.
//
// # Routing
//
// Route patterns are literal except for '*', which matches exactly one path
// segment. Registrations can be narrowed by action and by data filters, and
// filter values are themselves patterns:
//
//	router.On("/items/*", onItem).
//	    Action("UPDATE").
//	    Filters(relay.Filters{"status": "ok*"})
//
// Convenience registrations fix the action: Create, Update, Delete, Request,
// and Subscribe. Intercept registers a handler matched by route alone.
// ExecuteLast defers an event until after all regular events in a dispatch.
//
// # Send Tasks
//
// BeforeSend and AfterSend register hooks around the outbound path. Tasks
// matching the outgoing route run in registration order; they may transform
// the message before it reaches the transport. Sends are fire-and-forget:
// task and transport failures are logged, never returned to the caller.
//
// # Failure Containment
//
// A handler failure aborts the remaining handlers for that message only and
// is reported as an outbound message on the reserved route /socket/error.
// Later messages dispatch normally.
package relay
