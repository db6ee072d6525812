package metrics

import "github.com/prometheus/client_golang/prometheus"

// Vote results used as the "result" label.
const (
	VoteResultCommitted    = "committed"
	VoteResultAlreadyVoted = "already_voted"
	VoteResultNotFound     = "not_found"
	VoteResultInvalid      = "invalid_option"
	VoteResultContention   = "contention"
	VoteResultCanceled     = "canceled"
	VoteResultError        = "error"
)

// VoteMetrics holds Prometheus metrics for castVote.
type VoteMetrics struct {
	VotesCast        *prometheus.CounterVec
	CastDuration     prometheus.Histogram
	VersionConflicts prometheus.Counter
	LockWait         prometheus.Histogram
}

func NewVoteMetrics(reg prometheus.Registerer) *VoteMetrics {
	m := &VoteMetrics{
		VotesCast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_cast_total",
			Help:      "Total number of castVote calls, by result.",
		}, []string{"result"}),
		CastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vote_cast_duration_seconds",
			Help:      "End-to-end duration of castVote in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		VersionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_version_conflicts_total",
			Help:      "Total number of optimistic version conflicts that triggered a retry.",
		}),
		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vote_lock_wait_seconds",
			Help:      "Time spent waiting for the per-poll vote lock.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),
	}

	reg.MustRegister(m.VotesCast, m.CastDuration, m.VersionConflicts, m.LockWait)
	return m
}
