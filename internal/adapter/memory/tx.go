package memory

import (
	"context"
	"errors"

	"github.com/pscheid92/pollpulse/internal/domain"
)

var errNotInTx = errors.New("operation not available inside a vote transaction")

// txShard is one write-locked shard and what the transaction staged on it.
type txShard struct {
	shard  *shard
	entry  *pollEntry
	voters []domain.VoteRecord
}

func (ts *txShard) hasVoted(actorID string) bool {
	for _, rec := range ts.voters {
		if rec.ActorID == actorID {
			return true
		}
	}
	return ts.shard.hasVoted(actorID)
}

// txView gives InVoteTx's callback a private view of the store. Nothing it
// writes is visible to others before commit.
type txView struct {
	store *Store
	held  map[string]*txShard
	order []*txShard
}

func newTxView(s *Store) *txView {
	return &txView{store: s, held: make(map[string]*txShard)}
}

// acquire write-locks the shard of pollID on first use. With create unset a
// missing shard yields nil.
func (tx *txView) acquire(pollID string, create bool) *txShard {
	if ts, ok := tx.held[pollID]; ok {
		return ts
	}

	sh := tx.store.lookup(pollID)
	if sh == nil {
		if !create {
			return nil
		}
		sh = tx.store.shardFor(pollID)
	}

	sh.write.Lock()
	ts := &txShard{shard: sh, entry: sh.entry.Load()}
	tx.held[pollID] = ts
	tx.order = append(tx.order, ts)
	return ts
}

func (tx *txView) commit() {
	for _, ts := range tx.order {
		if ts.entry != nil {
			ts.shard.entry.Store(ts.entry)
		}
		for _, rec := range ts.voters {
			ts.shard.addVoter(rec)
		}
	}
}

func (tx *txView) release() {
	for i := len(tx.order) - 1; i >= 0; i-- {
		tx.order[i].shard.write.Unlock()
	}
	tx.order = nil
	tx.held = nil
}

type txPolls struct{ tx *txView }

func (p txPolls) Create(context.Context, domain.PollDraft) (*domain.Poll, error) {
	return nil, errNotInTx
}

func (p txPolls) Get(_ context.Context, pollID string) (*domain.Poll, error) {
	ts := p.tx.acquire(pollID, false)
	if ts == nil || ts.entry == nil {
		return nil, domain.ErrPollNotFound
	}
	return ts.entry.poll.Clone(), nil
}

func (p txPolls) ApplyVote(_ context.Context, pollID string, optionIndex int, expectedVersion int64) (*domain.Poll, error) {
	ts := p.tx.acquire(pollID, false)
	if ts == nil || ts.entry == nil {
		return nil, domain.ErrPollNotFound
	}

	next, err := nextPoll(ts.entry.poll, optionIndex, expectedVersion)
	if err != nil {
		return nil, err
	}
	ts.entry = &pollEntry{poll: next, seq: ts.entry.seq}
	return next.Clone(), nil
}

func (p txPolls) List(context.Context, domain.Category) ([]*domain.Poll, error) {
	return nil, errNotInTx
}

type txVotes struct{ tx *txView }

func (v txVotes) HasVoted(_ context.Context, pollID, actorID string) (bool, error) {
	ts := v.tx.acquire(pollID, false)
	if ts == nil {
		return false, nil
	}
	return ts.hasVoted(actorID), nil
}

func (v txVotes) RecordVote(_ context.Context, pollID, actorID string) error {
	ts := v.tx.acquire(pollID, true)
	if ts.hasVoted(actorID) {
		return domain.ErrAlreadyRecorded
	}
	ts.voters = append(ts.voters, domain.VoteRecord{PollID: pollID, ActorID: actorID, RecordedAt: v.tx.store.clock.Now().UTC()})
	return nil
}

func (v txVotes) ListByActor(context.Context, string) ([]domain.VoteRecord, error) {
	return nil, errNotInTx
}
