// Package transport carries encoded JSON-RPC requests to a server and returns the raw reply.
//
// The client hands a transport the request body and the headers that must accompany it:
//
//	Client ──Send(ctx, body, {X-JSON-RPC: method})──→ HTTPTransport ──POST──→ server
//	       ←──────────────── raw reply text ────────────────────────┘
//
// Transports never parse the body. Correlation is the client's job.
package transport

import (
	"context"
	"net"
	"syscall"

	"github.com/go-faster/errors"
)

// Transport sends one request body and returns the response body.
type Transport interface {
	Send(ctx context.Context, body string, headers map[string]string) (string, error)
}

// Func adapts a plain function to Transport.
type Func func(ctx context.Context, body string, headers map[string]string) (string, error)

func (f Func) Send(ctx context.Context, body string, headers map[string]string) (string, error) {
	return f(ctx, body, headers)
}

// IsRetryable reports whether err is worth sending the same request again: a 5xx status,
// a network timeout or a refused connection.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
