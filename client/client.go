package client

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
	"mini-jsonrpc/transport"
)

// CallTracker issues call ids and correlates replies. *Tracker is the implementation.
type CallTracker interface {
	Call(method string, args []any) (*message.Request, message.CallID, error)
	HeaderFor(method string) (name, value string)
	Resolve(raw string) (string, any, error)
	// ResolveID resolves raw only if it answers id.
	ResolveID(raw string, id message.CallID) (*message.Response, error)
	Abandon(id message.CallID)
	Pending() int
}

// Client sends calls through a transport and correlates the replies with a CallTracker.
//
// The tracker methods (Call, HeaderFor, Resolve, Abandon) are exposed unchanged for hosts
// that drive their own transport; Invoke, InvokeInto and Go do the whole round trip.
type Client struct {
	transport transport.Transport
	tracker   CallTracker
	logger    *zap.Logger
}

// NewClient creates a client. A nil tracker gets a fresh one, a nil logger discards logs.
func NewClient(t transport.Transport, tracker CallTracker, logger *zap.Logger) *Client {
	if tracker == nil {
		tracker = NewTracker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		transport: t,
		tracker:   tracker,
		logger:    logger,
	}
}

// Tracker returns the tracker that owns this client's call ids.
func (c *Client) Tracker() CallTracker {
	return c.tracker
}

func (c *Client) Call(method string, args []any) (*message.Request, message.CallID, error) {
	return c.tracker.Call(method, args)
}

func (c *Client) HeaderFor(method string) (name, value string) {
	return c.tracker.HeaderFor(method)
}

func (c *Client) Resolve(raw string) (string, any, error) {
	return c.tracker.Resolve(raw)
}

func (c *Client) Abandon(id message.CallID) {
	c.tracker.Abandon(id)
}

// Invoke calls method with args and waits for the decoded result.
func (c *Client) Invoke(ctx context.Context, method string, args ...any) (any, error) {
	req, _, err := c.tracker.Call(method, args)
	if err != nil {
		return nil, err
	}
	resp, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return codec.Value(resp.Result)
}

// InvokeInto calls method with args and unmarshals the result into reply.
// A nil reply discards the result.
func (c *Client) InvokeInto(ctx context.Context, reply any, method string, args ...any) error {
	req, _, err := c.tracker.Call(method, args)
	if err != nil {
		return err
	}
	resp, err := c.complete(ctx, req)
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, reply); err != nil {
		return errors.Wrapf(err, "decode %s result", req.Method)
	}
	return nil
}

// complete sends an issued request and resolves the reply. The call is always finished
// when complete returns: Abandon is a no-op once the reply resolved it.
func (c *Client) complete(ctx context.Context, req *message.Request) (*message.Response, error) {
	defer c.tracker.Abandon(req.ID)

	name, value := c.tracker.HeaderFor(req.Method)
	body, err := c.transport.Send(ctx, req.Body, map[string]string{name: value})
	if err != nil {
		c.logger.Warn("send failed",
			zap.String("method", req.Method),
			zap.Uint64("id", uint64(req.ID)),
			zap.Error(err),
		)
		return nil, errors.Wrapf(err, "send %s", req.Method)
	}

	return c.tracker.ResolveID(body, req.ID)
}
