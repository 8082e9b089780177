package middleware

import (
	"context"
	"errors"
	"time"

	"nx-ipc/result"
)

// Timeout gives each command a deadline. A command that fails after its
// deadline has passed reports ResultTimeout.
//
// The handler runs on the caller's goroutine: it owns the message buffer, so
// it cannot be left running behind the caller's back.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			err := next(ctx, req)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return result.ResultTimeout
			}
			return err
		}
	}
}
