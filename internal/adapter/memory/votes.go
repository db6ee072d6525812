package memory

import (
	"context"
	"sort"

	"github.com/pscheid92/pollpulse/internal/domain"
)

// VoteLedger implements domain.VoteLedger on a Store.
type VoteLedger struct {
	store *Store
}

var _ domain.VoteLedger = (*VoteLedger)(nil)

func (l *VoteLedger) HasVoted(_ context.Context, pollID, actorID string) (bool, error) {
	sh := l.store.lookup(pollID)
	if sh == nil {
		return false, nil
	}
	return sh.hasVoted(actorID), nil
}

func (l *VoteLedger) RecordVote(_ context.Context, pollID, actorID string) error {
	sh := l.store.shardFor(pollID)

	sh.write.Lock()
	defer sh.write.Unlock()

	if sh.hasVoted(actorID) {
		return domain.ErrAlreadyRecorded
	}
	sh.addVoter(domain.VoteRecord{PollID: pollID, ActorID: actorID, RecordedAt: l.store.clock.Now().UTC()})
	return nil
}

func (l *VoteLedger) ListByActor(_ context.Context, actorID string) ([]domain.VoteRecord, error) {
	var out []domain.VoteRecord
	for _, sh := range l.store.allShards() {
		sh.votersMu.RLock()
		rec, ok := sh.voters[actorID]
		sh.votersMu.RUnlock()
		if ok {
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.After(out[j].RecordedAt)
		}
		return out[i].PollID > out[j].PollID
	})
	return out, nil
}
