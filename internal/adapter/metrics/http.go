package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Poll API calls are short database round trips; slow tails matter more
// than the long end DefBuckets covers.
var apiLatencyBuckets = []float64{.002, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

// HTTPMetrics tracks the poll and feedback API.
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlightGauge   prometheus.Gauge
	Throttled       *prometheus.CounterVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	labels := []string{"method", "route", "status"}

	m := &HTTPMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of API requests by route template.",
			Buckets:   apiLatencyBuckets,
		}, labels),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by route template and status.",
		}, labels),
		InFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "API requests currently being served.",
		}),
		Throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "throttled_total",
			Help:      "Write requests rejected by the per-actor rate limiter.",
		}, []string{"route"}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.InFlightGauge, m.Throttled)
	return m
}

// Middleware records request metrics labelled by route template. Probes,
// the metrics endpoint and long-lived streams are not recorded.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if !instrumented(route) {
				return next(c)
			}
			if route == "" {
				route = "unmatched"
			}

			m.InFlightGauge.Inc()
			start := time.Now()

			err := next(c)

			m.InFlightGauge.Dec()
			m.observe(c.Request().Method, route, c.Response().Status, time.Since(start))
			return err
		}
	}
}

func (m *HTTPMetrics) observe(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.RequestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
	m.RequestsTotal.WithLabelValues(method, route, code).Inc()
}

func instrumented(route string) bool {
	switch {
	case route == "/metrics",
		strings.HasPrefix(route, "/health/"),
		strings.HasSuffix(route, "/stream"):
		return false
	}
	return true
}
