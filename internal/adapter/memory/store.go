// Package memory keeps polls, votes and feedback in process memory. It is
// the store used when no DATABASE_URL is configured and in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pollpulse/internal/domain"
)

// pollEntry is immutable once published; writers swap in a new one.
type pollEntry struct {
	poll *domain.Poll
	seq  uint64
}

// shard is everything stored under one poll id. A shard may exist without
// a poll when only ledger entries were written for that id.
//
// write serializes writers (a vote transaction holds it until it ends).
// Readers never take it: the poll is read through an atomic pointer and
// the voters through their own short lock.
type shard struct {
	write sync.Mutex
	entry atomic.Pointer[pollEntry]

	votersMu sync.RWMutex
	voters   map[string]domain.VoteRecord
}

func newShard() *shard {
	return &shard{voters: make(map[string]domain.VoteRecord)}
}

func (sh *shard) current() (*pollEntry, error) {
	e := sh.entry.Load()
	if e == nil {
		return nil, domain.ErrPollNotFound
	}
	return e, nil
}

func (sh *shard) hasVoted(actorID string) bool {
	sh.votersMu.RLock()
	defer sh.votersMu.RUnlock()
	_, ok := sh.voters[actorID]
	return ok
}

// addVoter requires sh.write.
func (sh *shard) addVoter(rec domain.VoteRecord) {
	sh.votersMu.Lock()
	defer sh.votersMu.Unlock()
	sh.voters[rec.ActorID] = rec
}

// Store is the shared state behind the repositories. The map-level lock
// only guards lookup and insertion of shards, so work on one poll never
// waits for another.
type Store struct {
	clock clockwork.Clock

	mu     sync.RWMutex
	seq    uint64
	shards map[string]*shard

	feedbackMu sync.RWMutex
	feedback   []*domain.FeedbackEntry
}

func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		clock:  clock,
		shards: make(map[string]*shard),
	}
}

func (s *Store) Polls() *PollRepo { return &PollRepo{store: s} }

func (s *Store) Votes() *VoteLedger { return &VoteLedger{store: s} }

func (s *Store) Feedback() *FeedbackLedger { return &FeedbackLedger{store: s} }

// Ping satisfies readiness checks. Memory is always reachable.
func (s *Store) Ping(_ context.Context) error { return nil }

// InVoteTx stages the writes fn makes and publishes them only if fn
// succeeds. Each poll fn touches stays write-locked until the end, so
// concurrent transactions on the same poll run one after another while
// other polls and all readers are unaffected.
func (s *Store) InVoteTx(ctx context.Context, fn func(domain.PollRepository, domain.VoteLedger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := newTxView(s)
	defer tx.release()

	if err := fn(txPolls{tx}, txVotes{tx}); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) lookup(pollID string) *shard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shards[pollID]
}

func (s *Store) shardFor(pollID string) *shard {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shards[pollID]
	if !ok {
		sh = newShard()
		s.shards[pollID] = sh
	}
	return sh
}

func (s *Store) nextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (s *Store) allShards() []*shard {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*shard, 0, len(s.shards))
	for _, sh := range s.shards {
		out = append(out, sh)
	}
	return out
}

func (s *Store) listPolls(category domain.Category) []*domain.Poll {
	var entries []*pollEntry
	for _, sh := range s.allShards() {
		e := sh.entry.Load()
		if e != nil && (category == "" || e.poll.Category == category) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].poll.CreatedAt.Equal(entries[j].poll.CreatedAt) {
			return entries[i].poll.CreatedAt.After(entries[j].poll.CreatedAt)
		}
		return entries[i].seq > entries[j].seq
	})

	out := make([]*domain.Poll, len(entries))
	for i, e := range entries {
		out[i] = e.poll.Clone()
	}
	return out
}

// nextPoll returns poll with one more vote for optionIndex, or why it
// cannot have one.
func nextPoll(poll *domain.Poll, optionIndex int, expectedVersion int64) (*domain.Poll, error) {
	if !poll.HasOption(optionIndex) {
		return nil, domain.ErrInvalidOption
	}
	if poll.Version != expectedVersion {
		return nil, domain.ErrVersionConflict
	}

	next := poll.Clone()
	next.Tally[optionIndex]++
	next.TotalVoters++
	next.Version++
	return next, nil
}

func newID() string {
	return uuid.NewString()
}
