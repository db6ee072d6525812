package domain

import "errors"

var (
	ErrPollNotFound    = errors.New("poll not found")
	ErrInvalidPoll     = errors.New("invalid poll")
	ErrInvalidOption   = errors.New("option index out of range")
	ErrAlreadyVoted    = errors.New("actor has already voted on this poll")
	ErrInvalidFeedback = errors.New("invalid feedback")
	ErrMissingActor    = errors.New("actor id is required")

	// ErrVersionConflict means the poll changed since it was read. The vote
	// coordinator retries it and callers never see it.
	ErrVersionConflict = errors.New("poll version conflict")
	// ErrAlreadyRecorded is the ledger's answer to a duplicate (poll, actor) insert.
	ErrAlreadyRecorded = errors.New("vote already recorded")
	// ErrContention means the retry budget ran out. The caller may try again.
	ErrContention = errors.New("poll is under heavy contention, retry later")

	ErrTooManySubscribers = errors.New("too many subscribers for poll")
	ErrHubStopped         = errors.New("subscription hub stopped")
)
