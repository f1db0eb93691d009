package transport

import (
	"context"
	"strings"
	"sync"

	"github.com/go-faster/errors"

	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/message"
	"mini-jsonrpc/registry"
)

// DiscoveryTransport picks the endpoint for every request from a registry.
//
// The balancer is keyed by the X-JSON-RPC header, i.e. the method name, so a consistent
// hash balancer keeps each method on one endpoint. One HTTPTransport is kept per endpoint
// for as long as some service last discovered it.
type DiscoveryTransport struct {
	registry registry.Registry
	balancer loadbalance.Balancer
	service  string
	opts     []HTTPOption

	mu    sync.Mutex
	conns map[string]*HTTPTransport
	live  map[string]map[string]struct{} // service -> addrs seen in its last Discover
}

// NewDiscoveryTransport sends to instances of service. An empty service means the part of
// the method name before the first dot ("Arith" for "Arith.Add").
func NewDiscoveryTransport(reg registry.Registry, service string, balancer loadbalance.Balancer, opts ...HTTPOption) *DiscoveryTransport {
	return &DiscoveryTransport{
		registry: reg,
		balancer: balancer,
		service:  service,
		opts:     opts,
		conns:    make(map[string]*HTTPTransport),
		live:     make(map[string]map[string]struct{}),
	}
}

func (t *DiscoveryTransport) Send(ctx context.Context, body string, headers map[string]string) (string, error) {
	method := headers[message.HeaderName]

	service := t.service
	if service == "" {
		var ok bool
		service, _, ok = strings.Cut(method, ".")
		if !ok || service == "" {
			return "", errors.Errorf("no service for method %q", method)
		}
	}

	instances, err := t.registry.Discover(ctx, service)
	if err != nil {
		return "", errors.Wrapf(err, "discover %s", service)
	}
	instance, err := t.balancer.Pick(instances, method)
	if err != nil {
		return "", errors.Wrapf(err, "pick %s instance", service)
	}
	return t.endpoint(service, instances, instance.Addr).Send(ctx, body, headers)
}

// endpoint returns the transport for addr, first dropping cached endpoints that no
// service lists any more.
func (t *DiscoveryTransport) endpoint(service string, instances []registry.ServiceInstance, addr string) *HTTPTransport {
	t.mu.Lock()
	defer t.mu.Unlock()

	addrs := make(map[string]struct{}, len(instances))
	for _, inst := range instances {
		addrs[inst.Addr] = struct{}{}
	}
	t.live[service] = addrs
	for cached := range t.conns {
		if !t.listed(cached) {
			delete(t.conns, cached)
		}
	}

	ht, ok := t.conns[addr]
	if !ok {
		ht = NewHTTPTransport(addr, t.opts...)
		t.conns[addr] = ht
	}
	return ht
}

func (t *DiscoveryTransport) listed(addr string) bool {
	for _, addrs := range t.live {
		if _, ok := addrs[addr]; ok {
			return true
		}
	}
	return false
}
