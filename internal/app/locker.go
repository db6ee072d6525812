package app

import (
	"context"
	"sync"

	"github.com/pscheid92/pollpulse/internal/domain"
)

// KeyedLocker is the in-process domain.PollLocker: one mutex per poll id,
// created on first use and dropped when nobody holds or waits for it.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sem  chan struct{}
	refs int
}

var _ domain.PollLocker = (*KeyedLocker)(nil)

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedLock)}
}

// Lock blocks until pollID is free or ctx is done. The returned unlock is
// safe to call more than once.
func (l *KeyedLocker) Lock(ctx context.Context, pollID string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[pollID]
	if !ok {
		kl = &keyedLock{sem: make(chan struct{}, 1)}
		l.locks[pollID] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(pollID, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.sem
			l.release(pollID, kl)
		})
	}, nil
}

// Len reports how many poll ids currently have a lock entry.
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *KeyedLocker) release(pollID string, kl *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, pollID)
	}
}
