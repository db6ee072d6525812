package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func decodeHealth(t *testing.T, body []byte) healthResponse {
	t.Helper()
	var resp healthResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestHandleStartup(t *testing.T) {
	srv := newTestServer(t, &mockAppService{},
		withHealthChecks(
			HealthCheck{Name: "storage", Check: healthOK},
			HealthCheck{Name: "redis", Check: healthOK},
		),
	)

	rec := doRequest(srv, http.MethodGet, "/health/startup", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeHealth(t, rec.Body.Bytes())
	assert.Equal(t, "ready", resp.Status)
	require.Len(t, resp.Checks, 2)
	assert.Equal(t, "storage", resp.Checks[0].Name)
	assert.Equal(t, "redis", resp.Checks[1].Name)
}

func TestHandleStartup_RedisDown(t *testing.T) {
	srv := newTestServer(t, &mockAppService{},
		withHealthChecks(
			HealthCheck{Name: "storage", Check: healthOK},
			HealthCheck{Name: "redis", Check: healthErr("connection refused")},
		),
	)

	rec := doRequest(srv, http.MethodGet, "/health/startup", "", nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeHealth(t, rec.Body.Bytes())
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "ok", resp.Checks[0].Status)
	assert.Equal(t, "unhealthy", resp.Checks[1].Status)
	assert.Equal(t, "connection refused", resp.Checks[1].Error)
}

func TestHandleLiveness(t *testing.T) {
	clock := clockwork.NewFakeClock()
	srv := newTestServer(t, &mockAppService{}, func(s *Server) {
		s.clock = clock
		s.startTime = clock.Now()
	})
	clock.Advance(90 * time.Second)

	rec := doRequest(srv, http.MethodGet, "/health/live", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","uptime_seconds":90}`, rec.Body.String())
}

func TestHandleReadiness_NoChecks(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	rec := doRequest(srv, http.MethodGet, "/health/ready", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestHandleReadiness_ReportsEveryCheck(t *testing.T) {
	tests := []struct {
		name        string
		checks      []HealthCheck
		wantStatus  int
		wantResults map[string]string
	}{
		{
			name:        "all healthy",
			checks:      []HealthCheck{{Name: "storage", Check: healthOK}, {Name: "redis", Check: healthOK}},
			wantStatus:  http.StatusOK,
			wantResults: map[string]string{"storage": "", "redis": ""},
		},
		{
			name:        "storage down",
			checks:      []HealthCheck{{Name: "storage", Check: healthErr("database unreachable")}, {Name: "redis", Check: healthOK}},
			wantStatus:  http.StatusServiceUnavailable,
			wantResults: map[string]string{"storage": "database unreachable", "redis": ""},
		},
		{
			name:        "both down",
			checks:      []HealthCheck{{Name: "storage", Check: healthErr("database unreachable")}, {Name: "redis", Check: healthErr("redis circuit breaker open")}},
			wantStatus:  http.StatusServiceUnavailable,
			wantResults: map[string]string{"storage": "database unreachable", "redis": "redis circuit breaker open"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &mockAppService{}, withHealthChecks(tt.checks...))

			rec := doRequest(srv, http.MethodGet, "/health/ready", "", nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeHealth(t, rec.Body.Bytes())

			got := make(map[string]string, len(resp.Checks))
			for _, c := range resp.Checks {
				got[c.Name] = c.Error
			}
			assert.Equal(t, tt.wantResults, got)
		})
	}
}

func TestHandleReadiness_ChecksShareDeadline(t *testing.T) {
	var sawDeadline bool
	srv := newTestServer(t, &mockAppService{}, withHealthChecks(HealthCheck{
		Name: "storage",
		Check: func(ctx context.Context) error {
			_, sawDeadline = ctx.Deadline()
			return nil
		},
	}))

	rec := doRequest(srv, http.MethodGet, "/health/ready", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sawDeadline)
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	rec := doRequest(srv, http.MethodGet, "/version", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"service":"pollpulse"`)
	assert.Contains(t, body, `"version"`)
	assert.Contains(t, body, `"commit"`)
	assert.Contains(t, body, `"build_time"`)
	assert.Contains(t, body, `"go_version"`)
}
