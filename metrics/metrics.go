// Package metrics exports client call statistics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded in the calls_total outcome label.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
	OutcomeRateLimited = "rate_limited"
)

// Collector holds the client metrics. Register it with a prometheus.Registerer.
type Collector struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	pending  prometheus.GaugeFunc // nil without a pending source
}

// NewCollector creates the metrics under namespace. pending, when non-nil, feeds the
// pending_calls gauge (typically Tracker.Pending).
func NewCollector(namespace string, pending func() int) *Collector {
	c := &Collector{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "JSON-RPC calls sent, by method and outcome.",
		}, []string{"method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Time from sending a JSON-RPC request to receiving the reply.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if pending != nil {
		c.pending = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_calls",
			Help:      "Calls issued and not yet resolved or abandoned.",
		}, func() float64 { return float64(pending()) })
	}
	return c
}

// Observe records one finished send.
func (c *Collector) Observe(method, outcome string, d time.Duration) {
	c.calls.WithLabelValues(method, outcome).Inc()
	c.duration.WithLabelValues(method).Observe(d.Seconds())
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.calls.Describe(ch)
	c.duration.Describe(ch)
	if c.pending != nil {
		c.pending.Describe(ch)
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.calls.Collect(ch)
	c.duration.Collect(ch)
	if c.pending != nil {
		c.pending.Collect(ch)
	}
}
