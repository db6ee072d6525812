package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
)

// MetricsTracer implements pgx.QueryTracer to collect database metrics
type MetricsTracer struct {
	metrics *metrics.DBMetrics
	clock   clockwork.Clock
}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

func NewMetricsTracer(m *metrics.DBMetrics, clock clockwork.Clock) *MetricsTracer {
	return &MetricsTracer{metrics: m, clock: clock}
}

type queryContextKey struct{}

type queryContext struct {
	startTime time.Time
	statement string
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{
		startTime: t.clock.Now(),
		statement: statementKind(data.SQL),
	})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}

	t.metrics.QueryDuration.WithLabelValues(qctx.statement).Observe(t.clock.Since(qctx.startTime).Seconds())
	if data.Err != nil {
		t.metrics.ErrorsTotal.WithLabelValues(qctx.statement).Inc()
	}
}

// statementKind reduces SQL to its leading keyword (SELECT, INSERT, ...)
// to keep label cardinality low.
func statementKind(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}

	kind := strings.ToUpper(fields[0])
	if len(kind) > 20 {
		kind = kind[:20]
	}
	return kind
}
