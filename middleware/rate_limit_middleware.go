package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"nx-ipc/result"
)

// RateLimit admits r commands per second with bursts of burst, token bucket
// style. Commands over the limit fail with ResultBusy.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if !limiter.Allow() {
				return result.ResultBusy
			}
			return next(ctx, req)
		}
	}
}
