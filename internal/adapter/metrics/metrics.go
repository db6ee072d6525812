package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pollpulse"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Set bundles every metric group the server exposes.
type Set struct {
	Votes  *VoteMetrics
	Hub    *HubMetrics
	Stream *StreamMetrics
	HTTP   *HTTPMetrics
	Relay  *RelayMetrics
	Redis  *RedisMetrics
	DB     *DBMetrics
}

// NewSet registers all metric groups on reg. Registering twice on the same
// registry panics, so build one Set per process (or per test registry).
func NewSet(reg prometheus.Registerer) *Set {
	return &Set{
		Votes:  NewVoteMetrics(reg),
		Hub:    NewHubMetrics(reg),
		Stream: NewStreamMetrics(reg),
		HTTP:   NewHTTPMetrics(reg),
		Relay:  NewRelayMetrics(reg),
		Redis:  NewRedisMetrics(reg),
		DB:     NewDBMetrics(reg),
	}
}
