// Package message defines the JSON-RPC 1.0 messages exchanged between client and server.
//
// A Request is built once by the client (method, positional params, call id) and carries
// the wire text produced by the codec. A Response is what the codec recovers from the
// server's reply: the id it answers plus the raw result or error member.
package message

import "github.com/go-faster/jx"

// HeaderName is the HTTP header that names the method an HTTP call carries.
const HeaderName = "X-JSON-RPC"

// CallID correlates a request with its response. The first id a client issues is 1.
type CallID uint64

// Request is an outgoing call. It is not modified after the client builds it.
type Request struct {
	Method string // Non-empty method name, e.g. "searchProduct"
	Params []any  // Positional arguments, may be empty
	ID     CallID
	Body   string // Compact JSON: {"method":...,"params":[...],"id":...}
}

// Response is a decoded reply. Exactly one of Result and Error is set.
//
//   - On success: Result holds the raw result value (possibly the literal null).
//   - On fault:   Error holds the raw server-supplied error value, untouched.
type Response struct {
	ID     CallID
	Result jx.Raw
	Error  jx.Raw
}

// IsFault reports whether the server answered with an error member.
func (r *Response) IsFault() bool {
	return r.Error != nil
}
