// Package middleware decorates transports in onion order: the first middleware given to
// Chain is the outermost.
package middleware

import (
	"mini-jsonrpc/message"
	"mini-jsonrpc/transport"
)

type Middleware func(next transport.Func) transport.Func

// Chain combines several middlewares into one.
func Chain(middlewares ...Middleware) Middleware {
	return func(next transport.Func) transport.Func {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Wrap returns t decorated with middlewares.
func Wrap(t transport.Transport, middlewares ...Middleware) transport.Transport {
	return Chain(middlewares...)(t.Send)
}

func methodOf(headers map[string]string) string {
	return headers[message.HeaderName]
}
