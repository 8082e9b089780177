package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"

	"nx-ipc/result"
)

// Retry repeats a command that fails with one of codes, up to attempts more
// times with a fixed delay between tries. With no codes it retries
// result.ResultBusy only. Any other failure is returned at once.
func Retry(attempts int, delay time.Duration, codes ...result.Code) Middleware {
	if len(codes) == 0 {
		codes = []result.Code{result.ResultBusy}
	}
	retryable := func(err error) bool {
		for _, c := range codes {
			if errors.Is(err, c) {
				return true
			}
		}
		return false
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts)), ctx)
			return backoff.Retry(func() error {
				err := next(ctx, req)
				if err != nil && !retryable(err) {
					return backoff.Permanent(err)
				}
				return err
			}, b)
		}
	}
}
