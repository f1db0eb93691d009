package registry

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/go-faster/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// KeyPrefix roots every key the etcd registry writes:
//
//	Key:   /mini-jsonrpc/{service}/{escaped addr}
//	Value: JSON-encoded ServiceInstance
//
// Addresses are endpoint URLs, so they are path-escaped to stay a single key segment.
const KeyPrefix = "/mini-jsonrpc/"

// EtcdRegistry implements Registry on etcd v3. Registrations hold a TTL lease that is
// kept alive in the background, so a crashed server's entries expire on their own.
type EtcdRegistry struct {
	client *clientv3.Client
	logger *zap.Logger

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // key -> lease, for revoking on Deregister
}

// NewEtcdRegistry connects to etcd. The logger is shared with the etcd client.
func NewEtcdRegistry(endpoints []string, logger *zap.Logger) (*EtcdRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect etcd")
	}
	return &EtcdRegistry{
		client: c,
		logger: logger,
		leases: make(map[string]clientv3.LeaseID),
	}, nil
}

func serviceKey(service string) string {
	return KeyPrefix + service + "/"
}

func instanceKey(service, addr string) string {
	return serviceKey(service) + url.PathEscape(addr)
}

// Register puts the instance under a lease of ttl (rounded up to whole seconds) and
// keeps the lease alive until Deregister or Close. A ttl of zero means no lease.
func (r *EtcdRegistry) Register(ctx context.Context, service string, instance ServiceInstance, ttl time.Duration) error {
	if instance.Addr == "" {
		return ErrInvalidInstance
	}
	val, err := json.Marshal(instance)
	if err != nil {
		return errors.Wrap(err, "marshal instance")
	}
	key := instanceKey(service, instance.Addr)

	if ttl <= 0 {
		if _, err := r.client.Put(ctx, key, string(val)); err != nil {
			return errors.Wrapf(err, "put %s", key)
		}
		return nil
	}

	seconds := int64((ttl + time.Second - 1) / time.Second)
	lease, err := r.client.Grant(ctx, seconds)
	if err != nil {
		return errors.Wrap(err, "grant lease")
	}
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return errors.Wrapf(err, "put %s", key)
	}

	// The keepalive outlives the registering request, so it gets its own context.
	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return errors.Wrap(err, "keep lease alive")
	}
	go func() {
		for range ch {
		}
		r.logger.Debug("lease keepalive stopped", zap.String("key", key), zap.Int64("lease", int64(lease.ID)))
	}()

	r.mu.Lock()
	old, had := r.leases[key]
	r.leases[key] = lease.ID
	r.mu.Unlock()
	if had {
		r.revoke(ctx, old)
	}

	r.logger.Info("registered instance",
		zap.String("service", service),
		zap.String("addr", instance.Addr),
		zap.Duration("ttl", ttl),
	)
	return nil
}

// Deregister removes the instance and revokes its lease. Called during graceful shutdown.
func (r *EtcdRegistry) Deregister(ctx context.Context, service string, addr string) error {
	key := instanceKey(service, addr)
	if _, err := r.client.Delete(ctx, key); err != nil {
		return errors.Wrapf(err, "delete %s", key)
	}

	r.mu.Lock()
	lease, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()
	if ok {
		r.revoke(ctx, lease)
	}

	r.logger.Info("deregistered instance", zap.String("service", service), zap.String("addr", addr))
	return nil
}

func (r *EtcdRegistry) revoke(ctx context.Context, lease clientv3.LeaseID) {
	if _, err := r.client.Revoke(ctx, lease); err != nil {
		r.logger.Warn("revoke lease", zap.Int64("lease", int64(lease)), zap.Error(err))
	}
}

// Discover returns the registered instances of service. Entries that do not decode are
// skipped and logged.
func (r *EtcdRegistry) Discover(ctx context.Context, service string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, serviceKey(service), clientv3.WithPrefix())
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", service)
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warn("skipping malformed instance", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch re-lists the service on every change under its prefix (registrations,
// deregistrations and lease expirations).
func (r *EtcdRegistry) Watch(ctx context.Context, service string) (<-chan []ServiceInstance, error) {
	initial, err := r.Discover(ctx, service)
	if err != nil {
		return nil, err
	}

	ch := make(chan []ServiceInstance, 1)
	ch <- initial

	watchChan := r.client.Watch(clientv3.WithRequireLeader(ctx), serviceKey(service), clientv3.WithPrefix())
	go func() {
		defer close(ch)
		for resp := range watchChan {
			if err := resp.Err(); err != nil {
				r.logger.Warn("watch interrupted", zap.String("service", service), zap.Error(err))
				continue
			}
			instances, err := r.Discover(ctx, service)
			if err != nil {
				r.logger.Warn("relist after watch event", zap.String("service", service), zap.Error(err))
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Close stops the etcd client. Leases still held expire once their keepalives stop.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
