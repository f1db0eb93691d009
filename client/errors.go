package client

import (
	"fmt"

	"mini-jsonrpc/message"
)

// ResolveErrorKind classifies correlation and application failures.
type ResolveErrorKind int

const (
	UnknownID   ResolveErrorKind = iota + 1 // No pending call for the response id
	RemoteFault                             // The server answered with an error member
)

func (k ResolveErrorKind) String() string {
	switch k {
	case UnknownID:
		return "unknown id"
	case RemoteFault:
		return "remote fault"
	default:
		return fmt.Sprintf("ResolveErrorKind(%d)", int(k))
	}
}

// ResolveError is returned by Resolve when a well-formed response cannot be delivered as
// a result.
//
// For RemoteFault, Detail is the decoded error payload and Raw the untouched JSON, so
// protocol-specific codes and messages can be read either way.
type ResolveError struct {
	Kind   ResolveErrorKind
	ID     message.CallID
	Method string // Empty for UnknownID
	Detail any
	Raw    []byte
}

func (e *ResolveError) Error() string {
	switch e.Kind {
	case UnknownID:
		return fmt.Sprintf("client: resolve: no pending call with id %d", e.ID)
	case RemoteFault:
		return fmt.Sprintf("client: %s (id %d): remote fault: %s", e.Method, e.ID, e.Raw)
	default:
		return fmt.Sprintf("client: resolve id %d: %s", e.ID, e.Kind)
	}
}
