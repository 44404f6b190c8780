package hub

import "github.com/prometheus/client_golang/prometheus"

// Drop reasons recorded on the dropped payloads counter.
const (
	dropBufferFull  = "buffer_full"
	dropRateLimited = "rate_limited"
)

// Metrics holds the hub's Prometheus collectors.
type Metrics struct {
	connections prometheus.Gauge
	received    prometheus.Counter
	delivered   prometheus.Counter
	dropped     *prometheus.CounterVec
}

// NewMetrics creates the hub collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Name:      "connections",
			Help:      "Number of open hub connections.",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "payloads_received_total",
			Help:      "Payloads accepted for fan-out.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "payloads_delivered_total",
			Help:      "Payloads queued to a recipient's send buffer.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "payloads_dropped_total",
			Help:      "Payloads dropped instead of delivered, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.received, m.delivered, m.dropped)
	}
	return m
}
