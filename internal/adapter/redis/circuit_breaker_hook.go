package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

const (
	breakerFailureRate = 0.6
	breakerMinCalls    = 5
	breakerWindow      = 10 * time.Second
	breakerDelay       = 30 * time.Second
)

// CircuitBreakerHook fails Redis calls fast while Redis is unhealthy. Both
// the poll lock and the relay write, so there is no fallback value: callers
// get an error wrapping circuitbreaker.ErrOpen. A vote then surfaces as a
// lock error and viewers on other instances miss relayed snapshots until
// the breaker closes.
type CircuitBreakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

// NewCircuitBreakerHook opens at a 60% failure rate over at least 5 calls in
// a 10s window, half-opens after 30s and closes on the first success.
func NewCircuitBreakerHook(m *metrics.RedisMetrics) *CircuitBreakerHook {
	return newCircuitBreakerHook(m, breakerDelay)
}

func newCircuitBreakerHook(m *metrics.RedisMetrics, delay time.Duration) *CircuitBreakerHook {
	m.BreakerState.Set(breakerGauge(circuitbreaker.ClosedState))

	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(breakerFailureRate, breakerMinCalls, breakerWindow).
		WithDelay(delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Redis circuit breaker state changed", "from", e.OldState.String(), "to", e.NewState.String())
			m.BreakerStateChanges.WithLabelValues(e.NewState.String()).Inc()
			m.BreakerState.Set(breakerGauge(e.NewState))
		}).
		Build()

	return &CircuitBreakerHook{cb: cb}
}

// State is exposed for tests.
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		var conn net.Conn
		err := h.guard(ctx, "dial", func() error {
			var err error
			conn, err = next(ctx, network, addr)
			return err
		})
		return conn, err
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		return h.guard(ctx, cmd.Name(), func() error { return next(ctx, cmd) })
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		return h.guard(ctx, "pipeline", func() error { return next(ctx, cmds) })
	}
}

// guard runs call if the breaker permits and records the outcome. The
// call's own error is returned unwrapped so callers can still match
// redis.Nil.
func (h *CircuitBreakerHook) guard(ctx context.Context, op string, call func() error) error {
	if !h.cb.TryAcquirePermit() {
		slog.DebugContext(ctx, "Redis circuit breaker open, rejecting call", "op", op)
		return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
	}

	err := call()
	if isRedisFailure(ctx, err) {
		h.cb.RecordError(err)
	} else {
		h.cb.RecordSuccess()
	}
	return err
}

// isRedisFailure reports whether err says something about Redis' health.
// A miss is an answer, and a caller that gave up says nothing about Redis.
func isRedisFailure(ctx context.Context, err error) bool {
	switch {
	case err == nil, errors.Is(err, goredis.Nil):
		return false
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return false
	}
	return true
}

func breakerGauge(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	}
	return -1
}
