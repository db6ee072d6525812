package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pollpulse/internal/adapter/eventpublisher"
	"github.com/pscheid92/pollpulse/internal/adapter/httpserver"
	"github.com/pscheid92/pollpulse/internal/adapter/memory"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/adapter/postgres"
	"github.com/pscheid92/pollpulse/internal/adapter/redis"
	"github.com/pscheid92/pollpulse/internal/adapter/websocket"
	"github.com/pscheid92/pollpulse/internal/app"
	"github.com/pscheid92/pollpulse/internal/broadcast"
	"github.com/pscheid92/pollpulse/internal/domain"
	"github.com/pscheid92/pollpulse/internal/platform/config"
	"github.com/pscheid92/pollpulse/internal/platform/logging"
	"github.com/pscheid92/pollpulse/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const (
	shutdownTimeout = 10 * time.Second
	connectTimeout  = 10 * time.Second
	sentryFlushWait = 2 * time.Second
)

// storage is whichever backend DATABASE_URL selects.
type storage struct {
	repos app.Repositories
	ping  func(ctx context.Context) error
	pool  *pgxpool.Pool
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupSentry(cfg *config.Config) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.AppEnv,
		Release:     version.Get().Release(),
	})
	if err != nil {
		slog.Error("Failed to initialize Sentry", "error", err)
		os.Exit(1)
	}
	if cfg.SentryDSN != "" {
		slog.Info("Sentry error reporting enabled")
	}
}

func setupStorage(cfg *config.Config, clock clockwork.Clock, m *metrics.DBMetrics) storage {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, polls are kept in memory and lost on restart")
		store := memory.NewStore(clock)
		return storage{
			repos: app.Repositories{Polls: store.Polls(), Votes: store.Votes(), Feedback: store.Feedback(), Tx: store},
			ping:  store.Ping,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.NewMetricsTracer(m, clock))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	store := postgres.NewStore(pool)
	return storage{
		repos: app.Repositories{Polls: store.Polls(), Votes: store.Votes(), Feedback: store.Feedback(), Tx: store},
		ping:  store.Ping,
		pool:  pool,
	}
}

func setupRedis(cfg *config.Config, clock clockwork.Clock, m *metrics.RedisMetrics) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, votes are serialized per process and snapshots stay local")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, m, clock)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *httpserver.Server, hub *broadcast.Hub, stopRelay func()) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// Streams are hijacked connections the HTTP server does not wait
		// for; stopping the hub closes them with a close frame.
		hub.Stop()
		stopRelay()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().Version)

	setupSentry(cfg)
	defer sentry.Flush(sentryFlushWait)

	registry := metrics.NewRegistry()
	m := metrics.NewSet(registry)

	store := setupStorage(cfg, clock, m.DB)
	if store.pool != nil {
		defer store.pool.Close()
	}

	hub := broadcast.NewHub(clock, cfg.MaxSubscribersPerPoll, m.Hub)

	healthChecks := []httpserver.HealthCheck{{Name: "storage", Check: store.ping}}

	var (
		locker    domain.PollLocker = app.NewKeyedLocker()
		publisher                   = eventpublisher.New(hub, nil)
	)

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()

	if redisClient := setupRedis(cfg, clock, m.Redis); redisClient != nil {
		defer func() { _ = redisClient.Close() }()

		locker = redis.NewPollLocker(redisClient, cfg.VoteLockTTL, clock)

		relay := redis.NewTallyRelay(redisClient, m.Relay)
		publisher = eventpublisher.New(hub, relay)
		go relay.Start(relayCtx, hub)

		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	svc := app.NewService(store.repos, locker, publisher, hub, clock, app.VotePolicy{
		MaxAttempts:    cfg.VoteMaxAttempts,
		InitialBackoff: cfg.VoteInitialBackoff,
	}, m.Votes)

	origins := websocket.NewOriginPolicy(cfg.StreamOrigins(), cfg.IsDevelopment())
	streamer := websocket.NewStreamer(svc, origins.CheckOrigin, clock, m.Stream)
	srv := httpserver.NewServer(cfg, clock, svc, streamer, m.HTTP, metrics.Handler(registry), healthChecks)

	done := runGracefulShutdown(srv, hub, func() {
		publisher.Close()
		stopRelay()
	})

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		sentry.CaptureException(err)
		os.Exit(1)
	}

	<-done
}
