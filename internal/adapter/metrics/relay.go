package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics tracks snapshots exchanged with other instances over Redis.
type RelayMetrics struct {
	Published    prometheus.Counter
	Received     prometheus.Counter
	DecodeErrors prometheus.Counter
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "published_total",
			Help:      "Total number of snapshots published to other instances.",
		}),
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "received_total",
			Help:      "Total number of snapshots received from other instances.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "decode_errors_total",
			Help:      "Total number of relay messages that could not be decoded.",
		}),
	}

	reg.MustRegister(m.Published, m.Received, m.DecodeErrors)
	return m
}
