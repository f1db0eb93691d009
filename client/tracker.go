// Package client implements the JSON-RPC call tracker and the client built on it.
//
// Tracker owns the call-id sequence and the table of pending calls:
//
//	Call(m, args) ──→ id = last+1, encode, pending[id] = m ──→ Request for the transport
//	Resolve(raw)  ──→ decode, pending[id] lookup + delete  ──→ (m, result) or fault
//	Abandon(id)   ──→ delete pending[id]
//
// Every issued id ends in exactly one of Resolved, Faulted or Abandoned.
// Tracker performs no I/O; sending is the transport's business.
package client

import (
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
)

type pendingCall struct {
	method   string
	issuedAt time.Time
}

// Tracker sequences calls and correlates responses. It is safe for concurrent use.
type Tracker struct {
	codec  codec.Codec
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex // Guards last and pending together
	last    message.CallID
	pending map[message.CallID]pendingCall
}

var _ CallTracker = (*Tracker)(nil)

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithCodec replaces the JSON-RPC codec.
func WithCodec(c codec.Codec) TrackerOption {
	return func(t *Tracker) { t.codec = c }
}

// WithLogger sets the logger used for call lifecycle events.
func WithLogger(l *zap.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// WithClock overrides time.Now for call ages.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		codec:   codec.GetCodec(codec.CodecTypeJSONRPC),
		logger:  zap.NewNop(),
		now:     time.Now,
		pending: make(map[message.CallID]pendingCall),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Call builds the request for method and registers it as pending.
//
// The request is encoded with the next id before the id is committed, so a call that
// fails to encode consumes no id: issued ids start at 1 and have no gaps.
func (t *Tracker) Call(method string, args []any) (*message.Request, message.CallID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.last + 1
	body, err := t.codec.EncodeRequest(method, args, id)
	if err != nil {
		return nil, 0, err
	}
	t.last = id
	t.pending[id] = pendingCall{method: method, issuedAt: t.now()}

	t.logger.Debug("call issued", zap.String("method", method), zap.Uint64("id", uint64(id)))

	return &message.Request{
		Method: method,
		Params: args,
		ID:     id,
		Body:   body,
	}, id, nil
}

// HeaderFor returns the header that must accompany the HTTP request carrying method.
func (t *Tracker) HeaderFor(method string) (name, value string) {
	return message.HeaderName, method
}

// Resolve decodes raw and completes the pending call it answers, returning the method
// that produced the call and the decoded result.
//
// A *codec.DecodeError leaves the table untouched. A fault still completes the call and
// is reported as a *ResolveError of kind RemoteFault.
func (t *Tracker) Resolve(raw string) (string, any, error) {
	method, resp, err := t.resolve(raw, nil)
	if err != nil {
		return method, nil, err
	}
	result, err := codec.Value(resp.Result)
	if err != nil {
		return method, nil, errors.Wrap(err, "decode result")
	}
	return method, result, nil
}

// ResolveID is Resolve for a caller waiting on id: a response for any other id is an
// UnknownID error and leaves that id pending. The result stays raw.
func (t *Tracker) ResolveID(raw string, id message.CallID) (*message.Response, error) {
	_, resp, err := t.resolve(raw, &id)
	return resp, err
}

// resolve completes the call answered by raw. When want is set, a response for any other
// id is rejected as UnknownID without touching that id's entry.
func (t *Tracker) resolve(raw string, want *message.CallID) (string, *message.Response, error) {
	resp, err := t.codec.DecodeResponse(raw)
	if err != nil {
		return "", nil, err
	}
	if want != nil && resp.ID != *want {
		t.logger.Warn("response for another call", zap.Uint64("id", uint64(resp.ID)), zap.Uint64("want", uint64(*want)))
		return "", nil, &ResolveError{Kind: UnknownID, ID: resp.ID}
	}

	t.mu.Lock()
	call, ok := t.pending[resp.ID]
	if ok {
		delete(t.pending, resp.ID)
	}
	t.mu.Unlock()

	if !ok {
		return "", nil, &ResolveError{Kind: UnknownID, ID: resp.ID}
	}

	if resp.IsFault() {
		var detail any = resp.Error
		if v, err := codec.Value(resp.Error); err == nil {
			detail = v
		}
		t.logger.Debug("call faulted", zap.String("method", call.method), zap.Uint64("id", uint64(resp.ID)))
		return call.method, nil, &ResolveError{
			Kind:   RemoteFault,
			ID:     resp.ID,
			Method: call.method,
			Detail: detail,
			Raw:    resp.Error,
		}
	}

	t.logger.Debug("call resolved", zap.String("method", call.method), zap.Uint64("id", uint64(resp.ID)))
	return call.method, resp, nil
}

// Abandon forgets a call whose response will never be resolved, e.g. after a transport
// failure. Unknown and already completed ids are ignored.
func (t *Tracker) Abandon(id message.CallID) {
	t.mu.Lock()
	call, ok := t.pending[id]
	delete(t.pending, id)
	t.mu.Unlock()

	if ok {
		t.logger.Debug("call abandoned", zap.String("method", call.method), zap.Uint64("id", uint64(id)))
	}
}

// AbandonStale abandons every call pending for longer than maxAge and returns their ids.
func (t *Tracker) AbandonStale(maxAge time.Duration) []message.CallID {
	cutoff := t.now().Add(-maxAge)

	t.mu.Lock()
	var stale []message.CallID
	for id, call := range t.pending {
		if call.issuedAt.Before(cutoff) {
			delete(t.pending, id)
			stale = append(stale, id)
		}
	}
	t.mu.Unlock()

	slices.Sort(stale)
	if len(stale) > 0 {
		t.logger.Warn("abandoned stale calls", zap.Int("count", len(stale)), zap.Duration("max_age", maxAge))
	}
	return stale
}

// Pending reports how many calls are awaiting resolve or abandon.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
