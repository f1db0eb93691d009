package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-jsonrpc/transport"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next transport.Func) transport.Func {
		return func(ctx context.Context, body string, headers map[string]string) (string, error) {
			start := time.Now()
			reply, err := next(ctx, body, headers)
			fields := []zap.Field{
				zap.String("method", methodOf(headers)),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("send failed", append(fields, zap.Error(err))...)
				return reply, err
			}
			logger.Debug("send", append(fields, zap.Int("reply_bytes", len(reply)))...)
			return reply, nil
		}
	}
}
