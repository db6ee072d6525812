package domain

import (
	"context"
	"time"
)

// VoteRecord marks that an actor voted on a poll. Its presence is the only
// truth of "has voted"; which option was chosen is not kept.
type VoteRecord struct {
	PollID     string
	ActorID    string
	RecordedAt time.Time
}

type VoteLedger interface {
	HasVoted(ctx context.Context, pollID, actorID string) (bool, error)
	// RecordVote inserts the (poll, actor) pair or returns ErrAlreadyRecorded
	// without changing anything.
	RecordVote(ctx context.Context, pollID, actorID string) error
	// ListByActor returns the actor's votes, most recent first.
	ListByActor(ctx context.Context, actorID string) ([]VoteRecord, error)
}

// VoteTransactor runs fn so that every write it makes through the given
// repositories commits together or not at all.
type VoteTransactor interface {
	InVoteTx(ctx context.Context, fn func(polls PollRepository, votes VoteLedger) error) error
}

// PollLocker serializes vote application per poll. Different polls never
// wait on each other.
type PollLocker interface {
	Lock(ctx context.Context, pollID string) (unlock func(), err error)
}
