package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/pollpulse/internal/domain"
	"github.com/pscheid92/pollpulse/internal/platform/config"
)

// --- Mock implementations ---

type mockAppService struct {
	createPollFn     func(ctx context.Context, in domain.NewPoll) (*domain.Poll, error)
	getPollFn        func(ctx context.Context, pollID string) (*domain.Poll, error)
	listPollsFn      func(ctx context.Context, category string) ([]*domain.Poll, error)
	castVoteFn       func(ctx context.Context, pollID, actorID string, optionIndex int) (domain.Snapshot, error)
	listVotesFn      func(ctx context.Context, actorID string) ([]domain.VoteRecord, error)
	submitFeedbackFn func(ctx context.Context, in domain.NewFeedback) (*domain.FeedbackEntry, error)
	listFeedbackFn   func(ctx context.Context, category string) ([]*domain.FeedbackEntry, error)
	statsFn          func(ctx context.Context) (domain.Stats, error)
}

var errNotImplemented = errors.New("not implemented")

func (m *mockAppService) CreatePoll(ctx context.Context, in domain.NewPoll) (*domain.Poll, error) {
	if m.createPollFn != nil {
		return m.createPollFn(ctx, in)
	}
	return nil, errNotImplemented
}

func (m *mockAppService) GetPoll(ctx context.Context, pollID string) (*domain.Poll, error) {
	if m.getPollFn != nil {
		return m.getPollFn(ctx, pollID)
	}
	return nil, domain.ErrPollNotFound
}

func (m *mockAppService) ListPolls(ctx context.Context, category string) ([]*domain.Poll, error) {
	if m.listPollsFn != nil {
		return m.listPollsFn(ctx, category)
	}
	return nil, nil
}

func (m *mockAppService) CastVote(ctx context.Context, pollID, actorID string, optionIndex int) (domain.Snapshot, error) {
	if m.castVoteFn != nil {
		return m.castVoteFn(ctx, pollID, actorID, optionIndex)
	}
	return domain.Snapshot{}, errNotImplemented
}

func (m *mockAppService) ListVotes(ctx context.Context, actorID string) ([]domain.VoteRecord, error) {
	if m.listVotesFn != nil {
		return m.listVotesFn(ctx, actorID)
	}
	return nil, nil
}

func (m *mockAppService) SubmitFeedback(ctx context.Context, in domain.NewFeedback) (*domain.FeedbackEntry, error) {
	if m.submitFeedbackFn != nil {
		return m.submitFeedbackFn(ctx, in)
	}
	return nil, errNotImplemented
}

func (m *mockAppService) ListFeedback(ctx context.Context, category string) ([]*domain.FeedbackEntry, error) {
	if m.listFeedbackFn != nil {
		return m.listFeedbackFn(ctx, category)
	}
	return nil, nil
}

func (m *mockAppService) Stats(ctx context.Context) (domain.Stats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return domain.Stats{}, nil
}

type mockStream struct {
	serveFn func(w http.ResponseWriter, r *http.Request, pollID string) error
}

func (m *mockStream) Serve(w http.ResponseWriter, r *http.Request, pollID string) error {
	if m.serveFn != nil {
		return m.serveFn(w, r, pollID)
	}
	return errNotImplemented
}

// --- Test helpers ---

var testCreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testPoll() *domain.Poll {
	return &domain.Poll{
		ID:            "p1",
		Question:      "Best theme?",
		Options:       []string{"Retro", "Space"},
		Category:      domain.CategoryEvents,
		Tally:         []int64{1, 3},
		TotalVoters:   4,
		CreatedBy:     "creator-1",
		CreatedByName: "Sam",
		CreatedAt:     testCreatedAt,
		Version:       4,
	}
}

func newTestServer(t *testing.T, app appService, opts ...func(*Server)) *Server {
	t.Helper()

	srv := &Server{
		echo: echo.New(),
		config: &config.Config{
			Port:               "8080",
			RateLimitPerSecond: 1000,
			RateLimitBurst:     1000,
		},
		clock:  clockwork.NewFakeClock(),
		app:    app,
		stream: &mockStream{},
	}
	srv.startTime = srv.clock.Now()

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withStream(stream streamServer) func(*Server) {
	return func(s *Server) {
		s.stream = stream
	}
}

// doRequest sends a request through the full middleware stack.
func doRequest(srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func asActor(id, name string) map[string]string {
	return map[string]string{headerActorID: id, headerActorName: name}
}
