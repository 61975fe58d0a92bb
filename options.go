package relay

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

type options struct {
	transport             Transport
	logger                *slog.Logger
	bindValue             any
	retryLimit            int
	retryDelay            time.Duration
	requeueOnFlushFailure bool
	limiter               *rate.Limiter
}

// Option configures a Router at construction.
type Option func(*options)

func newOptions(opts []Option) *options {
	o := &options{
		transport:  &WebSocketTransport{},
		logger:     slog.Default(),
		retryLimit: DefaultRetryLimit,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithTransport replaces the default websocket transport. This is the seam
// for alternative transports and for tests.
func WithTransport(transport Transport) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// WithLogger sets the logger used for connection lifecycle and dispatch
// diagnostics. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBind sets the default value handlers receive through Context.Value
// when their event does not bind one of its own.
func WithBind(value any) Option {
	return func(o *options) {
		o.bindValue = value
	}
}

// WithRetryLimit sets the connect attempt ceiling. Once reached, no further
// reconnect is scheduled. Defaults to DefaultRetryLimit.
func WithRetryLimit(limit int) Option {
	return func(o *options) {
		if limit > 0 {
			o.retryLimit = limit
		}
	}
}

// WithRetryDelay sets the fixed delay between a connection loss and the next
// connect attempt. Defaults to DefaultRetryDelay.
func WithRetryDelay(delay time.Duration) Option {
	return func(o *options) {
		if delay > 0 {
			o.retryDelay = delay
		}
	}
}

// WithRequeueOnFlushFailure keeps messages that fail to send during a flush
// queued for the next flush. By default they are discarded along with the
// rest of the queue once the flush pass completes.
func WithRequeueOnFlushFailure(requeue bool) Option {
	return func(o *options) {
		o.requeueOnFlushFailure = requeue
	}
}

// WithMessageRate limits the rate of inbound message dispatch. Messages
// beyond the limit are dropped and logged. Unlimited by default.
func WithMessageRate(messagesPerSecond float64, burst int) Option {
	return func(o *options) {
		if messagesPerSecond > 0 && burst > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(messagesPerSecond), burst)
		}
	}
}
