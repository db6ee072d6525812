package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/domain"
	"github.com/pscheid92/pollpulse/internal/platform/retry"
)

// CastVote records actorID's vote for optionIndex on pollID and returns the
// committed snapshot. Preconditions are checked in order: the poll exists,
// the option is in range, the actor has not voted yet.
//
// Votes on one poll are serialized through the PollLocker. Inside the lock
// the read, the conditional tally update and the ledger insert run as one
// vote transaction, retried on version conflicts until the attempts run out
// (ErrContention). Cancelling ctx before the transaction starts changes
// nothing; once it starts it runs to completion.
func (s *Service) CastVote(ctx context.Context, pollID, actorID string, optionIndex int) (domain.Snapshot, error) {
	start := s.clock.Now()
	snapshot, err := s.castVote(ctx, pollID, strings.TrimSpace(actorID), optionIndex)
	s.observeVote(start, err)

	if err != nil {
		logVoteError(ctx, pollID, actorID, err)
		return domain.Snapshot{}, err
	}

	slog.InfoContext(ctx, "Vote committed", "poll_id", pollID, "option_index", optionIndex, "version", snapshot.Version, "total_voters", snapshot.TotalVoters)

	if err := s.publisher.PublishTally(ctx, snapshot); err != nil {
		slog.WarnContext(ctx, "Failed to publish tally", "poll_id", pollID, "version", snapshot.Version, "error", err)
	}
	return snapshot, nil
}

func (s *Service) castVote(ctx context.Context, pollID, actorID string, optionIndex int) (domain.Snapshot, error) {
	if actorID == "" {
		return domain.Snapshot{}, domain.ErrMissingActor
	}

	// Cheap rejections before queueing on the poll lock.
	poll, err := s.repos.Polls.Get(ctx, pollID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if !poll.HasOption(optionIndex) {
		return domain.Snapshot{}, fmt.Errorf("%w: %d not in [0, %d)", domain.ErrInvalidOption, optionIndex, len(poll.Options))
	}
	voted, err := s.repos.Votes.HasVoted(ctx, pollID, actorID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to check vote ledger: %w", err)
	}
	if voted {
		return domain.Snapshot{}, domain.ErrAlreadyVoted
	}

	lockStart := s.clock.Now()
	unlock, err := s.locker.Lock(ctx, pollID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to lock poll: %w", err)
	}
	defer unlock()
	if s.metrics != nil {
		s.metrics.LockWait.Observe(s.clock.Since(lockStart).Seconds())
	}

	policy := retry.Policy{
		MaxAttempts:    s.policy.MaxAttempts,
		InitialBackoff: s.policy.InitialBackoff,
		MaxBackoff:     maxBackoff,
		Clock:          s.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			if s.metrics != nil {
				s.metrics.VersionConflicts.Inc()
			}
			slog.DebugContext(ctx, "Vote version conflict, retrying", "poll_id", pollID, "attempt", attempt, "backoff", backoff)
		},
	}

	committed, err := retry.Do(ctx, policy, classifyVoteError, func(int) (*domain.Poll, error) {
		return s.attemptVote(ctx, pollID, actorID, optionIndex)
	})
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			return domain.Snapshot{}, fmt.Errorf("%w: gave up after %d attempts", domain.ErrContention, exhausted.Attempts)
		}
		return domain.Snapshot{}, err
	}

	return committed.Snapshot(), nil
}

// attemptVote is one pass of the optimistic loop. The transaction is the
// commit point: it gets its own deadline and ignores cancellation of ctx.
func (s *Service) attemptVote(ctx context.Context, pollID, actorID string, optionIndex int) (*domain.Poll, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	var committed *domain.Poll
	err := s.repos.Tx.InVoteTx(txCtx, func(polls domain.PollRepository, votes domain.VoteLedger) error {
		poll, err := polls.Get(txCtx, pollID)
		if err != nil {
			return err
		}

		voted, err := votes.HasVoted(txCtx, pollID, actorID)
		if err != nil {
			return fmt.Errorf("failed to check vote ledger: %w", err)
		}
		if voted {
			return domain.ErrAlreadyVoted
		}

		updated, err := polls.ApplyVote(txCtx, pollID, optionIndex, poll.Version)
		if err != nil {
			return err
		}

		if err := votes.RecordVote(txCtx, pollID, actorID); err != nil {
			if errors.Is(err, domain.ErrAlreadyRecorded) {
				return domain.ErrAlreadyVoted
			}
			return fmt.Errorf("failed to record vote: %w", err)
		}

		committed = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

func classifyVoteError(err error) retry.Action {
	if errors.Is(err, domain.ErrVersionConflict) {
		return retry.Retry
	}
	return retry.Stop
}

func (s *Service) observeVote(start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.CastDuration.Observe(s.clock.Since(start).Seconds())
	s.metrics.VotesCast.WithLabelValues(voteResult(err)).Inc()
}

func voteResult(err error) string {
	switch {
	case err == nil:
		return metrics.VoteResultCommitted
	case errors.Is(err, domain.ErrAlreadyVoted):
		return metrics.VoteResultAlreadyVoted
	case errors.Is(err, domain.ErrPollNotFound):
		return metrics.VoteResultNotFound
	case errors.Is(err, domain.ErrInvalidOption), errors.Is(err, domain.ErrMissingActor):
		return metrics.VoteResultInvalid
	case errors.Is(err, domain.ErrContention):
		return metrics.VoteResultContention
	case errors.Is(err, context.Canceled):
		return metrics.VoteResultCanceled
	default:
		return metrics.VoteResultError
	}
}

func logVoteError(ctx context.Context, pollID, actorID string, err error) {
	switch {
	case errors.Is(err, domain.ErrAlreadyVoted),
		errors.Is(err, domain.ErrPollNotFound),
		errors.Is(err, domain.ErrInvalidOption),
		errors.Is(err, domain.ErrMissingActor):
		slog.DebugContext(ctx, "Vote rejected", "poll_id", pollID, "actor_id", actorID, "error", err)
	case errors.Is(err, domain.ErrContention):
		slog.WarnContext(ctx, "Vote contention", "poll_id", pollID, "error", err)
	case errors.Is(err, context.Canceled):
		slog.DebugContext(ctx, "Vote abandoned by caller", "poll_id", pollID, "error", err)
	default:
		slog.ErrorContext(ctx, "Vote failed", "poll_id", pollID, "error", err)
	}
}
