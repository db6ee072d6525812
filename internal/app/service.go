package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/broadcast"
	"github.com/pscheid92/pollpulse/internal/domain"
	"golang.org/x/sync/singleflight"
)

const (
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 5 * time.Millisecond
	maxBackoff            = 100 * time.Millisecond
	commitTimeout         = 5 * time.Second
)

// Repositories groups the storage the service works on. One backend
// (memory or postgres) provides all four.
type Repositories struct {
	Polls    domain.PollRepository
	Votes    domain.VoteLedger
	Feedback domain.FeedbackLedger
	Tx       domain.VoteTransactor
}

// Hub is the subscription side of broadcast.Hub.
type Hub interface {
	Subscribe(ctx context.Context, pollID, subscriberID string) (*broadcast.Subscription, error)
	Offer(ctx context.Context, sub *broadcast.Subscription, snapshot domain.Snapshot) error
	Unsubscribe(pollID, subscriberID string)
}

// VotePolicy bounds the optimistic retry loop of CastVote.
type VotePolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
}

// Service is the application layer. It is the only component that
// references repositories, the lock, the publisher and the hub together.
type Service struct {
	repos     Repositories
	locker    domain.PollLocker
	publisher domain.TallyPublisher
	hub       Hub
	clock     clockwork.Clock
	policy    VotePolicy
	metrics   *metrics.VoteMetrics

	snapshotGroup singleflight.Group
	registrations atomic.Uint64
}

// NewService wires the use cases. A zero policy falls back to five attempts
// starting at 5ms; m may be nil.
func NewService(repos Repositories, locker domain.PollLocker, publisher domain.TallyPublisher, hub Hub, clock clockwork.Clock, policy VotePolicy, m *metrics.VoteMetrics) *Service {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = defaultMaxAttempts
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = defaultInitialBackoff
	}

	return &Service{
		repos:     repos,
		locker:    locker,
		publisher: publisher,
		hub:       hub,
		clock:     clock,
		policy:    policy,
		metrics:   m,
	}
}

// CreatePoll validates and stores a new poll with a zeroed tally.
func (s *Service) CreatePoll(ctx context.Context, in domain.NewPoll) (*domain.Poll, error) {
	draft, err := in.Validate()
	if err != nil {
		return nil, err
	}

	poll, err := s.repos.Polls.Create(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll: %w", err)
	}

	slog.InfoContext(ctx, "Poll created", "poll_id", poll.ID, "category", poll.Category, "options", len(poll.Options))
	return poll, nil
}

func (s *Service) GetPoll(ctx context.Context, pollID string) (*domain.Poll, error) {
	return s.repos.Polls.Get(ctx, pollID)
}

// ListPolls returns polls newest first. An empty category lists all;
// an unknown one is ErrInvalidPoll.
func (s *Service) ListPolls(ctx context.Context, category string) ([]*domain.Poll, error) {
	c, err := domain.ParseCategoryFilter(category)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPoll, err)
	}
	return s.repos.Polls.List(ctx, c)
}

// ListVotes returns the polls actorID has voted on, most recent first.
func (s *Service) ListVotes(ctx context.Context, actorID string) ([]domain.VoteRecord, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, domain.ErrMissingActor
	}
	return s.repos.Votes.ListByActor(ctx, actorID)
}

// Subscribe registers the subscriber before reading the poll, so a vote
// committed in between is either in the offered snapshot or published after
// registration. The hub's version filter drops whichever copy is older.
// An empty subscriberID gets a generated one.
func (s *Service) Subscribe(ctx context.Context, pollID, subscriberID string) (*broadcast.Subscription, error) {
	if subscriberID == "" {
		subscriberID = uuid.NewString()
	}

	sub, err := s.hub.Subscribe(ctx, pollID, subscriberID)
	if err != nil {
		return nil, err
	}
	registered := s.registrations.Add(1)

	snapshot, err := s.loadSnapshot(ctx, pollID, registered)
	if err != nil {
		sub.Close()
		return nil, err
	}

	if err := s.hub.Offer(ctx, sub, snapshot); err != nil {
		sub.Close()
		return nil, err
	}

	slog.DebugContext(ctx, "Subscribed to poll", "poll_id", pollID, "subscriber_id", subscriberID, "version", snapshot.Version)
	return sub, nil
}

// Unsubscribe is idempotent.
func (s *Service) Unsubscribe(pollID, subscriberID string) {
	s.hub.Unsubscribe(pollID, subscriberID)
}

type snapshotRead struct {
	snapshot domain.Snapshot
	// registrations counted when the read started
	startedAt uint64
}

// loadSnapshot collapses concurrent reads of the same poll, which happen
// when many viewers open a poll at once. A caller only keeps a shared read
// that started after its own registration; an older read may predate a
// vote whose publish the caller missed, so it reads again on its own.
func (s *Service) loadSnapshot(ctx context.Context, pollID string, registered uint64) (domain.Snapshot, error) {
	v, err, _ := s.snapshotGroup.Do(pollID, func() (any, error) {
		startedAt := s.registrations.Load()
		poll, err := s.repos.Polls.Get(ctx, pollID)
		if err != nil {
			return nil, err
		}
		return snapshotRead{snapshot: poll.Snapshot(), startedAt: startedAt}, nil
	})
	if err != nil {
		return domain.Snapshot{}, err
	}

	read := v.(snapshotRead)
	if read.startedAt < registered {
		poll, err := s.repos.Polls.Get(ctx, pollID)
		if err != nil {
			return domain.Snapshot{}, err
		}
		return poll.Snapshot(), nil
	}

	snapshot := read.snapshot
	snapshot.Tally = append([]int64(nil), snapshot.Tally...)
	return snapshot, nil
}

// SubmitFeedback validates and appends a feedback entry.
func (s *Service) SubmitFeedback(ctx context.Context, in domain.NewFeedback) (*domain.FeedbackEntry, error) {
	draft, err := in.Validate()
	if err != nil {
		return nil, err
	}

	entry, err := s.repos.Feedback.Append(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("failed to append feedback: %w", err)
	}

	slog.InfoContext(ctx, "Feedback submitted", "feedback_id", entry.ID, "category", entry.Category, "rating", entry.Rating)
	return entry, nil
}

func (s *Service) ListFeedback(ctx context.Context, category string) ([]*domain.FeedbackEntry, error) {
	c, err := domain.ParseCategoryFilter(category)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidFeedback, err)
	}
	return s.repos.Feedback.List(ctx, c)
}

// Stats summarises every poll and feedback entry.
func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	polls, err := s.repos.Polls.List(ctx, "")
	if err != nil {
		return domain.Stats{}, fmt.Errorf("failed to list polls: %w", err)
	}

	feedback, err := s.repos.Feedback.List(ctx, "")
	if err != nil {
		return domain.Stats{}, fmt.Errorf("failed to list feedback: %w", err)
	}

	return domain.ComputeStats(polls, feedback), nil
}
