package registry

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	instance ServiceInstance
	expires  time.Time // Zero when the entry never expires
}

// MemoryRegistry keeps instances in process. It serves single-binary deployments
// and tests. Expired entries disappear from Discover; watchers only hear about
// Register and Deregister.
type MemoryRegistry struct {
	now func() time.Time

	mu       sync.Mutex
	services map[string]map[string]memoryEntry
	watchers map[string][]chan []ServiceInstance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		now:      time.Now,
		services: make(map[string]map[string]memoryEntry),
		watchers: make(map[string][]chan []ServiceInstance),
	}
}

func (r *MemoryRegistry) Register(_ context.Context, service string, instance ServiceInstance, ttl time.Duration) error {
	if instance.Addr == "" {
		return ErrInvalidInstance
	}

	entry := memoryEntry{instance: instance}
	if ttl > 0 {
		entry.expires = r.now().Add(ttl)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.services[service] == nil {
		r.services[service] = make(map[string]memoryEntry)
	}
	r.services[service][instance.Addr] = entry
	r.notify(service)
	return nil
}

func (r *MemoryRegistry) Deregister(_ context.Context, service string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[service][addr]; !ok {
		return nil
	}
	delete(r.services[service], addr)
	r.notify(service)
	return nil
}

func (r *MemoryRegistry) Discover(_ context.Context, service string) ([]ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(service), nil
}

func (r *MemoryRegistry) Watch(ctx context.Context, service string) (<-chan []ServiceInstance, error) {
	ch := make(chan []ServiceInstance, 1)

	r.mu.Lock()
	ch <- r.snapshot(service)
	r.watchers[service] = append(r.watchers[service], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		r.watchers[service] = slices.DeleteFunc(r.watchers[service], func(c chan []ServiceInstance) bool {
			return c == ch
		})
		r.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// snapshot returns the live instances of service sorted by address. Caller holds mu.
func (r *MemoryRegistry) snapshot(service string) []ServiceInstance {
	now := r.now()
	instances := make([]ServiceInstance, 0, len(r.services[service]))
	for addr, entry := range r.services[service] {
		if !entry.expires.IsZero() && !now.Before(entry.expires) {
			delete(r.services[service], addr)
			continue
		}
		instances = append(instances, entry.instance)
	}
	slices.SortFunc(instances, func(a, b ServiceInstance) int {
		return strings.Compare(a.Addr, b.Addr)
	})
	return instances
}

// notify replaces whatever a watcher has not read yet with the latest list. Caller holds mu.
func (r *MemoryRegistry) notify(service string) {
	list := r.snapshot(service)
	for _, ch := range r.watchers[service] {
		select {
		case <-ch:
		default:
		}
		ch <- list
	}
}
