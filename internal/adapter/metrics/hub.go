package metrics

import "github.com/prometheus/client_golang/prometheus"

// HubMetrics holds Prometheus metrics for the subscription hub.
type HubMetrics struct {
	ActivePolls        prometheus.Gauge
	ActiveSubscribers  prometheus.Gauge
	SnapshotsDelivered prometheus.Counter
	SnapshotsCoalesced prometheus.Counter
	RejectedSubscribes prometheus.Counter
	CommandQueueDepth  prometheus.Gauge
}

func NewHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		ActivePolls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "active_polls",
			Help:      "Number of polls with at least one local subscriber.",
		}),
		ActiveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "active_subscribers",
			Help:      "Number of local subscribers across all polls.",
		}),
		SnapshotsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "snapshots_delivered_total",
			Help:      "Total number of snapshots placed in subscriber mailboxes.",
		}),
		SnapshotsCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "snapshots_coalesced_total",
			Help:      "Total number of undelivered snapshots replaced by a newer one.",
		}),
		RejectedSubscribes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "rejected_subscribes_total",
			Help:      "Total number of subscribe calls rejected by the per-poll limit.",
		}),
		CommandQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "command_queue_depth",
			Help:      "Commands waiting for the hub goroutine.",
		}),
	}

	reg.MustRegister(m.ActivePolls, m.ActiveSubscribers, m.SnapshotsDelivered, m.SnapshotsCoalesced, m.RejectedSubscribes, m.CommandQueueDepth)
	return m
}
