package middleware

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"mini-jsonrpc/transport"
)

var ErrTimeout = errors.New("request timed out")

// TimeoutMiddleware fails a send that outlives timeout with ErrTimeout. The context passed
// down is cancelled at the same moment, so the inner transport gives up too. When the
// caller's own context ends first, its error is returned instead.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next transport.Func) transport.Func {
		return func(parent context.Context, body string, headers map[string]string) (string, error) {
			ctx, cancel := context.WithTimeout(parent, timeout)
			defer cancel()

			expired := func() error {
				if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return errors.Wrapf(ErrTimeout, "%s after %s", methodOf(headers), timeout)
				}
				return nil
			}

			type result struct {
				reply string
				err   error
			}
			done := make(chan result, 1)
			go func() {
				reply, err := next(ctx, body, headers)
				done <- result{reply, err}
			}()

			select {
			case r := <-done:
				if r.err != nil {
					if err := expired(); err != nil {
						return "", err
					}
				}
				return r.reply, r.err
			case <-ctx.Done():
				if err := expired(); err != nil {
					return "", err
				}
				return "", ctx.Err()
			}
		}
	}
}
