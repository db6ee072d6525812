package eventpublisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pscheid92/pollpulse/internal/domain"
)

const relayTimeout = 2 * time.Second

// LocalPublisher delivers to viewers connected to this instance.
type LocalPublisher interface {
	Publish(snapshot domain.Snapshot)
}

// EventPublisher implements domain.TallyPublisher by composing the local
// subscription hub and the optional cross-instance relay. Relaying happens
// on a background goroutine; only the newest pending snapshot per poll is
// kept, since viewers only ever need the latest tally.
type EventPublisher struct {
	local LocalPublisher
	relay domain.TallyPublisher

	mu      sync.Mutex
	pending map[string]domain.Snapshot
	notify  chan struct{}

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

var _ domain.TallyPublisher = (*EventPublisher)(nil)

// New returns a publisher. relay may be nil for a single instance;
// otherwise a relay goroutine runs until Close.
func New(local LocalPublisher, relay domain.TallyPublisher) *EventPublisher {
	ep := &EventPublisher{
		local:   local,
		relay:   relay,
		pending: make(map[string]domain.Snapshot),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if relay == nil {
		close(ep.done)
		return ep
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep.cancel = cancel
	go ep.run(ctx)
	return ep
}

// PublishTally hands snapshot to local viewers and queues it for the relay.
// It never waits on the relay.
func (ep *EventPublisher) PublishTally(_ context.Context, snapshot domain.Snapshot) error {
	ep.local.Publish(snapshot)

	if ep.relay == nil {
		return nil
	}

	ep.mu.Lock()
	if cur, ok := ep.pending[snapshot.PollID]; !ok || snapshot.Version > cur.Version {
		ep.pending[snapshot.PollID] = snapshot
	}
	ep.mu.Unlock()

	select {
	case ep.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close stops the relay goroutine. Snapshots still pending are dropped.
func (ep *EventPublisher) Close() {
	ep.closeOnce.Do(func() {
		if ep.cancel != nil {
			ep.cancel()
		}
		<-ep.done
	})
}

func (ep *EventPublisher) run(ctx context.Context) {
	defer close(ep.done)

	for {
		select {
		case <-ep.notify:
			ep.flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (ep *EventPublisher) flush(ctx context.Context) {
	ep.mu.Lock()
	batch := ep.pending
	ep.pending = make(map[string]domain.Snapshot, len(batch))
	ep.mu.Unlock()

	for _, snapshot := range batch {
		if ctx.Err() != nil {
			return
		}
		ep.send(ctx, snapshot)
	}
}

func (ep *EventPublisher) send(ctx context.Context, snapshot domain.Snapshot) {
	ctx, cancel := context.WithTimeout(ctx, relayTimeout)
	defer cancel()

	if err := ep.relay.PublishTally(ctx, snapshot); err != nil {
		slog.Warn("Failed to relay snapshot", "poll_id", snapshot.PollID, "version", snapshot.Version, "error", err)
	}
}
