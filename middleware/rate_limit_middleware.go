package middleware

import (
	"context"

	"github.com/go-faster/errors"
	"golang.org/x/time/rate"

	"mini-jsonrpc/transport"
)

var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitMiddleware rejects sends beyond a token bucket of r per second with burst.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next transport.Func) transport.Func {
		return func(ctx context.Context, body string, headers map[string]string) (string, error) {
			if !limiter.Allow() {
				return "", errors.Wrap(ErrRateLimited, methodOf(headers))
			}
			return next(ctx, body, headers)
		}
	}
}
