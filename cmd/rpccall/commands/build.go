package commands

import (
	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mini-jsonrpc/client"
	"mini-jsonrpc/config"
	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/metrics"
	"mini-jsonrpc/middleware"
	"mini-jsonrpc/registry"
	"mini-jsonrpc/transport"
)

// Stack is a client assembled from a Config, with the pieces a host may need to inspect.
type Stack struct {
	Client   *client.Client
	Metrics  *prometheus.Registry
	registry *registry.EtcdRegistry
}

// Close releases the etcd connection, if any.
func (s *Stack) Close() error {
	if s.registry == nil {
		return nil
	}
	return s.registry.Close()
}

// BuildClient wires transport, middleware, tracker and metrics from cfg.
//
// Middleware order, outermost first: logging, metrics, rate limit, retry, timeout. The
// timeout applies to each attempt, and an attempt that times out is retried.
func BuildClient(cfg config.Config, logger *zap.Logger) (*Stack, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	stack := &Stack{Metrics: prometheus.NewRegistry()}

	var base transport.Transport
	if cfg.Endpoint != "" {
		base = transport.NewHTTPTransport(cfg.Endpoint)
	} else {
		balancer, err := loadbalance.New(cfg.Balancer)
		if err != nil {
			return nil, err
		}
		reg, err := registry.NewEtcdRegistry(cfg.EtcdEndpoints, logger)
		if err != nil {
			return nil, err
		}
		stack.registry = reg
		base = transport.NewDiscoveryTransport(reg, cfg.Service, balancer)
	}

	tracker := client.NewTracker(client.WithLogger(logger))
	collector := metrics.NewCollector(cfg.MetricsNamespace, tracker.Pending)
	if err := stack.Metrics.Register(collector); err != nil {
		_ = stack.Close()
		return nil, errors.Wrap(err, "register metrics")
	}

	mws := []middleware.Middleware{
		middleware.LoggingMiddleware(logger),
		middleware.MetricsMiddleware(collector),
	}
	if cfg.RateLimit > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.Retries > 0 {
		mws = append(mws, middleware.RetryMiddleware(cfg.Retries, cfg.RetryBaseDelay, logger))
	}
	if cfg.Timeout > 0 {
		mws = append(mws, middleware.TimeoutMiddleware(cfg.Timeout))
	}

	stack.Client = client.NewClient(middleware.Wrap(base, mws...), tracker, logger)
	return stack, nil
}
