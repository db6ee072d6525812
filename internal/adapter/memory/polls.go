package memory

import (
	"context"

	"github.com/pscheid92/pollpulse/internal/domain"
)

// PollRepo implements domain.PollRepository on a Store.
type PollRepo struct {
	store *Store
}

var _ domain.PollRepository = (*PollRepo)(nil)

func (r *PollRepo) Create(_ context.Context, draft domain.PollDraft) (*domain.Poll, error) {
	p := &domain.Poll{
		ID:            newID(),
		Question:      draft.Question,
		Options:       append([]string(nil), draft.Options...),
		Category:      draft.Category,
		Tally:         make([]int64, len(draft.Options)),
		CreatedBy:     draft.CreatedBy,
		CreatedByName: draft.CreatedByName,
		CreatedAt:     r.store.clock.Now().UTC(),
	}

	seq := r.store.nextSeq()
	sh := r.store.shardFor(p.ID)

	sh.write.Lock()
	defer sh.write.Unlock()

	sh.entry.Store(&pollEntry{poll: p, seq: seq})
	return p.Clone(), nil
}

func (r *PollRepo) Get(_ context.Context, pollID string) (*domain.Poll, error) {
	sh := r.store.lookup(pollID)
	if sh == nil {
		return nil, domain.ErrPollNotFound
	}
	e, err := sh.current()
	if err != nil {
		return nil, err
	}
	return e.poll.Clone(), nil
}

func (r *PollRepo) ApplyVote(_ context.Context, pollID string, optionIndex int, expectedVersion int64) (*domain.Poll, error) {
	sh := r.store.lookup(pollID)
	if sh == nil {
		return nil, domain.ErrPollNotFound
	}

	sh.write.Lock()
	defer sh.write.Unlock()

	e, err := sh.current()
	if err != nil {
		return nil, err
	}
	next, err := nextPoll(e.poll, optionIndex, expectedVersion)
	if err != nil {
		return nil, err
	}
	sh.entry.Store(&pollEntry{poll: next, seq: e.seq})
	return next.Clone(), nil
}

func (r *PollRepo) List(_ context.Context, category domain.Category) ([]*domain.Poll, error) {
	return r.store.listPolls(category), nil
}
