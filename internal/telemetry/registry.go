package telemetry

import (
	"bytes"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry exposes the agent's own process metrics — worker queue depth,
// pending-ACK backlog, and warehouse connection-pool utilization — as a
// local Prometheus registry, in addition to whatever is scraped from
// elsewhere.
type Registry struct {
	reg        *prometheus.Registry
	queueDepth *prometheus.GaugeVec
	ackBacklog prometheus.Gauge
	poolInUse  *prometheus.GaugeVec
}

// NewRegistry builds a Registry with its gauges registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	queueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agent_queue_depth",
		Help: "Items waiting in an agent worker pool's queue.",
	}, []string{"queue"})

	ackBacklog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agent_ack_backlog",
		Help: "Operations with a pending, not-yet-fired ACK.",
	})

	poolInUse := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agent_warehouse_pool_in_use",
		Help: "Connections currently checked out of a warehouse connection pool.",
	}, []string{"pool"})

	reg.MustRegister(queueDepth, ackBacklog, poolInUse)

	return &Registry{reg: reg, queueDepth: queueDepth, ackBacklog: ackBacklog, poolInUse: poolInUse}
}

// SetQueueDepth records the current depth of the named worker queue.
func (r *Registry) SetQueueDepth(queue string, depth int) {
	r.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// SetAckBacklog records the current pending-ACK count.
func (r *Registry) SetAckBacklog(n int) {
	r.ackBacklog.Set(float64(n))
}

// SetPoolInUse records the current in-use connection count for the named
// warehouse pool.
func (r *Registry) SetPoolInUse(pool string, n int) {
	r.poolInUse.WithLabelValues(pool).Set(float64(n))
}

// Gather renders every registered metric in Prometheus text exposition
// format, split into lines — the same shape MetricsService.scrape expects
// from a remote address, so the two can be concatenated.
func (r *Registry) Gather() ([]string, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, err
		}
	}

	text := strings.TrimRight(buf.String(), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}
