package middleware

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"mini-jsonrpc/metrics"
	"mini-jsonrpc/transport"
)

func MetricsMiddleware(c *metrics.Collector) Middleware {
	return func(next transport.Func) transport.Func {
		return func(ctx context.Context, body string, headers map[string]string) (string, error) {
			start := time.Now()
			reply, err := next(ctx, body, headers)
			c.Observe(methodOf(headers), outcome(err), time.Since(start))
			return reply, err
		}
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, ErrRateLimited):
		return metrics.OutcomeRateLimited
	default:
		return metrics.OutcomeError
	}
}
