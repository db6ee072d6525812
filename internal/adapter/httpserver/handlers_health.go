package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/pollpulse/internal/platform/version"
	"golang.org/x/sync/errgroup"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second

	statusOK        = "ok"
	statusReady     = "ready"
	statusUnhealthy = "unhealthy"
)

// HealthCheck is a named dependency probe, e.g. the poll store or Redis.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type checkResult struct {
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Error     string  `json:"error,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

type healthResponse struct {
	Status string        `json:"status"`
	Checks []checkResult `json:"checks,omitempty"`
}

type livenessResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.probe(startupProbeTimeout))
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.probe(readinessProbeTimeout))
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := livenessResponse{
		Status:        statusOK,
		UptimeSeconds: s.clock.Since(s.startTime).Seconds(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

// probe runs every dependency check in parallel under one deadline. Any
// failure makes the whole probe 503, but all results are reported.
func (s *Server) probe(timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		results := s.runHealthChecks(ctx)

		response := healthResponse{Status: statusReady, Checks: results}
		code := http.StatusOK
		for _, r := range results {
			if r.Status != statusOK {
				response.Status = statusUnhealthy
				code = http.StatusServiceUnavailable
				break
			}
		}

		if err := c.JSON(code, response); err != nil {
			return fmt.Errorf("failed to write health response: %w", err)
		}
		return nil
	}
}

func (s *Server) runHealthChecks(ctx context.Context) []checkResult {
	results := make([]checkResult, len(s.healthChecks))

	var g errgroup.Group
	for i, hc := range s.healthChecks {
		g.Go(func() error {
			start := s.clock.Now()
			err := hc.Check(ctx)

			results[i] = checkResult{
				Name:      hc.Name,
				Status:    statusOK,
				LatencyMS: float64(s.clock.Since(start).Microseconds()) / 1000,
			}
			if err != nil {
				results[i].Status = statusUnhealthy
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
