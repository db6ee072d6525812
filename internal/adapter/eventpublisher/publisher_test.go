package eventpublisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pscheid92/pollpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type localRecorder struct {
	mu        sync.Mutex
	snapshots []domain.Snapshot
}

func (l *localRecorder) Publish(snapshot domain.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshots = append(l.snapshots, snapshot)
}

func (l *localRecorder) received() []domain.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Snapshot(nil), l.snapshots...)
}

type mockRelay struct {
	publishFn func(ctx context.Context, snapshot domain.Snapshot) error

	mu       sync.Mutex
	relayed  []domain.Snapshot
	deadline bool
}

func (m *mockRelay) PublishTally(ctx context.Context, snapshot domain.Snapshot) error {
	m.mu.Lock()
	m.relayed = append(m.relayed, snapshot)
	_, m.deadline = ctx.Deadline()
	m.mu.Unlock()

	if m.publishFn != nil {
		return m.publishFn(ctx, snapshot)
	}
	return nil
}

func (m *mockRelay) versions() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.relayed))
	for i, s := range m.relayed {
		out[i] = s.Version
	}
	return out
}

func snapshotAt(version int64) domain.Snapshot {
	return domain.Snapshot{PollID: "p1", Version: version, Tally: []int64{version, 0}, TotalVoters: version}
}

func TestPublishTally_LocalOnly(t *testing.T) {
	local := &localRecorder{}
	ep := New(local, nil)
	t.Cleanup(ep.Close)

	snap := snapshotAt(1)
	require.NoError(t, ep.PublishTally(context.Background(), snap))

	assert.Equal(t, []domain.Snapshot{snap}, local.received())
}

func TestPublishTally_LocalAndRelay(t *testing.T) {
	local := &localRecorder{}
	relay := &mockRelay{}
	ep := New(local, relay)
	t.Cleanup(ep.Close)

	require.NoError(t, ep.PublishTally(context.Background(), snapshotAt(2)))

	assert.Len(t, local.received(), 1)
	require.Eventually(t, func() bool { return len(relay.versions()) == 1 }, time.Second, time.Millisecond)

	relay.mu.Lock()
	defer relay.mu.Unlock()
	assert.True(t, relay.deadline, "relay call must be bounded")
}

func TestPublishTally_RelayFailureStillDeliversLocally(t *testing.T) {
	local := &localRecorder{}
	relay := &mockRelay{publishFn: func(context.Context, domain.Snapshot) error { return errors.New("redis down") }}
	ep := New(local, relay)
	t.Cleanup(ep.Close)

	require.NoError(t, ep.PublishTally(context.Background(), snapshotAt(1)))
	assert.Len(t, local.received(), 1)
	require.Eventually(t, func() bool { return len(relay.versions()) == 1 }, time.Second, time.Millisecond)
}

func TestPublishTally_ReturnsWhileRelayHangs(t *testing.T) {
	local := &localRecorder{}
	relay := &mockRelay{publishFn: func(ctx context.Context, _ domain.Snapshot) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	ep := New(local, relay)

	start := time.Now()
	for v := int64(1); v <= 3; v++ {
		require.NoError(t, ep.PublishTally(context.Background(), snapshotAt(v)))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Len(t, local.received(), 3)

	closed := make(chan struct{})
	go func() {
		ep.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close waited for the hanging relay")
	}
}

func TestPublishTally_RelayKeepsNewestPerPoll(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	relay := &mockRelay{publishFn: func(context.Context, domain.Snapshot) error {
		select {
		case entered <- struct{}{}:
			<-release
		default:
		}
		return nil
	}}
	ep := New(&localRecorder{}, relay)
	t.Cleanup(ep.Close)
	ctx := context.Background()

	require.NoError(t, ep.PublishTally(ctx, snapshotAt(1)))
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("relay not called")
	}

	require.NoError(t, ep.PublishTally(ctx, snapshotAt(3)))
	require.NoError(t, ep.PublishTally(ctx, snapshotAt(2)))
	close(release)

	require.Eventually(t, func() bool { return len(relay.versions()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []int64{1, 3}, relay.versions())
}
