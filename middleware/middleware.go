// Package middleware wraps command dispatch on both ends of a session.
//
// The same chain type runs around server.Manager's command handlers and
// around client.Session.Send, so logging, metrics, timeouts and retries are
// written once.
package middleware

import (
	"context"

	"nx-ipc/message"
)

// Request describes the command being dispatched.
type Request struct {
	Service     string
	RequestID   uint32
	CommandType uint32
	Object      message.ObjectInfo
}

// HandlerFunc dispatches one command. A non-nil error carries the result
// code put on the wire (server) or returned to the caller (client).
type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one. Chain(A, B, C)(h) runs as A(B(C(h))):
// A sees the request first and the result last.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
