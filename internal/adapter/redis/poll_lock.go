package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pollpulse/internal/domain"
	"github.com/pscheid92/pollpulse/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

const (
	lockAcquireAttempts = 100
	lockInitialBackoff  = 2 * time.Millisecond
	lockMaxBackoff      = 50 * time.Millisecond
	lockReleaseTimeout  = 2 * time.Second
)

var errLockHeld = errors.New("poll lock held by another owner")

// releaseLockScript deletes the lock only if it still holds our token, so a
// lease that expired and was taken over is never released by the old owner.
// KEYS: [1]=lock key  ARGV: [1]=owner token
var releaseLockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// PollLocker is a domain.PollLocker shared by every instance that talks to
// the same Redis. Each lock is a lease (SET NX PX) that expires after ttl
// in case its holder dies.
type PollLocker struct {
	rdb      *goredis.Client
	ttl      time.Duration
	clock    clockwork.Clock
	attempts int
}

var _ domain.PollLocker = (*PollLocker)(nil)

func NewPollLocker(rdb *goredis.Client, ttl time.Duration, clock clockwork.Clock) *PollLocker {
	return &PollLocker{rdb: rdb, ttl: ttl, clock: clock, attempts: lockAcquireAttempts}
}

// Lock polls for the lease with capped exponential backoff. If the lease
// stays taken for the whole budget the poll is reported as contended.
func (l *PollLocker) Lock(ctx context.Context, pollID string) (func(), error) {
	key := lockKey(pollID)
	token := uuid.NewString()

	policy := retry.Policy{
		MaxAttempts:    l.attempts,
		InitialBackoff: lockInitialBackoff,
		MaxBackoff:     lockMaxBackoff,
		Clock:          l.clock,
	}

	err := retry.DoVoid(ctx, policy, classifyLockError, func(int) error {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("failed to set lock: %w", err)
		}
		if !ok {
			return errLockHeld
		}
		return nil
	})
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			return nil, fmt.Errorf("%w: poll lock busy after %d attempts", domain.ErrContention, exhausted.Attempts)
		}
		return nil, err
	}

	return func() { l.release(key, token) }, nil
}

func (l *PollLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), lockReleaseTimeout)
	defer cancel()

	if err := releaseLockScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
		slog.Warn("Failed to release poll lock, lease will expire", "key", key, "error", err)
	}
}

func classifyLockError(err error) retry.Action {
	if errors.Is(err, errLockHeld) {
		return retry.Retry
	}
	return retry.Stop
}

func lockKey(pollID string) string {
	return "poll:lock:" + pollID
}
