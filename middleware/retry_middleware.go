package middleware

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"mini-jsonrpc/transport"
)

// RetryMiddleware resends the same body after a retryable failure (see
// transport.IsRetryable, plus ErrTimeout from an inner TimeoutMiddleware while ctx is
// still live), waiting baseDelay, 2*baseDelay, 4*baseDelay... in between.
// The body keeps its call id, so the retried reply resolves the original call.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next transport.Func) transport.Func {
		return func(ctx context.Context, body string, headers map[string]string) (string, error) {
			reply, err := next(ctx, body, headers)
			for i := 0; i < maxRetries; i++ {
				if err == nil || !retryable(ctx, err) {
					return reply, err
				}
				logger.Info("retrying send",
					zap.String("method", methodOf(headers)),
					zap.Int("attempt", i+1),
					zap.Error(err),
				)

				timer := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-ctx.Done():
					timer.Stop()
					return "", ctx.Err()
				case <-timer.C:
				}
				reply, err = next(ctx, body, headers)
			}
			return reply, err
		}
	}
}

func retryable(ctx context.Context, err error) bool {
	if errors.Is(err, ErrTimeout) {
		return ctx.Err() == nil
	}
	return transport.IsRetryable(err)
}
