package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/domain"
	"github.com/pscheid92/pollpulse/internal/platform/config"
)

type appService interface {
	CreatePoll(ctx context.Context, in domain.NewPoll) (*domain.Poll, error)
	GetPoll(ctx context.Context, pollID string) (*domain.Poll, error)
	ListPolls(ctx context.Context, category string) ([]*domain.Poll, error)
	CastVote(ctx context.Context, pollID, actorID string, optionIndex int) (domain.Snapshot, error)
	ListVotes(ctx context.Context, actorID string) ([]domain.VoteRecord, error)
	SubmitFeedback(ctx context.Context, in domain.NewFeedback) (*domain.FeedbackEntry, error)
	ListFeedback(ctx context.Context, category string) ([]*domain.FeedbackEntry, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

// streamServer upgrades a request to a live tally stream. Errors returned
// before the upgrade are rendered as HTTP errors.
type streamServer interface {
	Serve(w http.ResponseWriter, r *http.Request, pollID string) error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	app    appService
	stream streamServer

	httpMetrics    *metrics.HTTPMetrics
	metricsHandler http.Handler

	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer builds the echo instance and registers every route. httpMetrics
// and metricsHandler may be nil.
func NewServer(cfg *config.Config, clock clockwork.Clock, app appService, stream streamServer, httpMetrics *metrics.HTTPMetrics, metricsHandler http.Handler, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		config:         cfg,
		clock:          clock,
		app:            app,
		stream:         stream,
		httpMetrics:    httpMetrics,
		metricsHandler: metricsHandler,
		healthChecks:   healthChecks,
		startTime:      clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
