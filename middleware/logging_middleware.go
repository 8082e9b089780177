package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nx-ipc/result"
)

// Logging logs every command: Debug when it succeeds, Warn when it fails.
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			fields := []zap.Field{
				zap.String("service", req.Service),
				zap.Uint32("request_id", req.RequestID),
				zap.Uint32("command_type", req.CommandType),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("command failed", append(fields, zap.Stringer("result", result.FromError(err)), zap.Error(err))...)
				return err
			}
			logger.Debug("command", fields...)
			return nil
		}
	}
}
