// Package registry records which endpoints serve a JSON-RPC service.
//
// Servers register explicitly on startup and deregister on shutdown; nothing is
// registered as a side effect of importing a package.
package registry

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrInvalidInstance is returned by Register for an instance without an address.
var ErrInvalidInstance = errors.New("registry: instance has no address")

// ServiceInstance is one endpoint of a service.
type ServiceInstance struct {
	Addr    string `json:"addr"`   // Endpoint URL, e.g. http://10.0.0.5:8080/rpc
	Weight  int    `json:"weight"` // Weight for load balancing
	Version string `json:"version,omitempty"`
}

type Registry interface {
	// Register announces instance under service. A positive ttl makes the entry expire
	// unless it is kept alive.
	Register(ctx context.Context, service string, instance ServiceInstance, ttl time.Duration) error
	Deregister(ctx context.Context, service string, addr string) error
	Discover(ctx context.Context, service string) ([]ServiceInstance, error)
	// Watch emits the full instance list once immediately and again after every change,
	// until ctx is done.
	Watch(ctx context.Context, service string) (<-chan []ServiceInstance, error)
}
