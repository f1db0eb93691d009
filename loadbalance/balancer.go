// Package loadbalance picks the endpoint a request is sent to.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity endpoints
//   - WeightedRandom:  endpoints of different capacity
//   - ConsistentHash:  method affinity, the same method keeps hitting the same endpoint
package loadbalance

import (
	"github.com/go-faster/errors"

	"mini-jsonrpc/registry"
)

// ErrNoInstances is returned by Pick for an empty instance list.
var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer is the interface for load balancing strategies.
type Balancer interface {
	// Pick selects one of instances. key identifies the request (the JSON-RPC method);
	// only key-based strategies look at it. Pick must be safe for concurrent use.
	Pick(instances []registry.ServiceInstance, key string) (*registry.ServiceInstance, error)

	// Name returns the strategy name used in configuration.
	Name() string
}

const (
	RoundRobin     = "round_robin"
	WeightedRandom = "weighted_random"
	ConsistentHash = "consistent_hash"
)

// New returns the balancer registered under name.
func New(name string) (Balancer, error) {
	switch name {
	case RoundRobin, "":
		return &RoundRobinBalancer{}, nil
	case WeightedRandom:
		return &WeightedRandomBalancer{}, nil
	case ConsistentHash:
		return NewConsistentHashBalancer(), nil
	default:
		return nil, errors.Errorf("loadbalance: unknown strategy %q", name)
	}
}
