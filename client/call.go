package client

import (
	"context"

	"go.uber.org/zap"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
)

// Call is an asynchronous invocation started by Go.
type Call struct {
	ID     message.CallID // Zero if the request could not be built
	Method string
	Args   []any
	Result any
	Error  error
	Done   chan *Call // Receives the call when it finishes
}

// Go starts method in the background and returns immediately. The id is allocated before
// Go returns, so calls started one after another get increasing ids.
//
// done must be buffered; if it is nil a channel with room for one call is created.
func (c *Client) Go(ctx context.Context, method string, args []any, done chan *Call) *Call {
	if done == nil {
		done = make(chan *Call, 1)
	} else if cap(done) == 0 {
		panic("client: done channel is unbuffered")
	}

	call := &Call{Method: method, Args: args, Done: done}

	req, id, err := c.tracker.Call(method, args)
	if err != nil {
		call.Error = err
		c.finish(call)
		return call
	}
	call.ID = id

	go func() {
		resp, err := c.complete(ctx, req)
		if err == nil {
			call.Result, err = codec.Value(resp.Result)
		}
		call.Error = err
		c.finish(call)
	}()
	return call
}

// finish delivers the call without blocking; a full done channel drops it.
func (c *Client) finish(call *Call) {
	select {
	case call.Done <- call:
	default:
		c.logger.Warn("discarding call reply, done channel is full",
			zap.String("method", call.Method),
			zap.Uint64("id", uint64(call.ID)),
		)
	}
}
