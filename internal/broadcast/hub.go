package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/domain"
)

const (
	commandQueueSize = 256
	commandTimeout   = 5 * time.Second
	stopTimeout      = 10 * time.Second
	depthInterval    = time.Second
)

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type subscribeCmd struct {
	baseHubCmd
	pollID string
	sub    *subscriber
	reply  chan subscribeReply
}

type subscribeReply struct {
	sub *Subscription
	err error
}

// unsubscribeCmd removes subscriberID. With sub set, only if that exact
// registration is still the current one.
type unsubscribeCmd struct {
	baseHubCmd
	pollID       string
	subscriberID string
	sub          *subscriber
}

type offerCmd struct {
	baseHubCmd
	pollID   string
	sub      *subscriber
	snapshot domain.Snapshot
}

type countCmd struct {
	baseHubCmd
	pollID string
	reply  chan int
}

type stopCmd struct {
	baseHubCmd
}

type subscriber struct {
	id          string
	mailbox     chan domain.Snapshot
	lastVersion int64
}

// Subscription is one viewer's feed of snapshots for one poll. C yields
// snapshots in non-decreasing version order and is closed on Unsubscribe
// or hub shutdown. A consumer that falls behind only sees the latest.
type Subscription struct {
	PollID string
	ID     string
	C      <-chan domain.Snapshot

	hub *Hub
	sub *subscriber
}

// Close unsubscribes. Safe to call more than once, and a no-op once the id
// has been re-subscribed with a new feed.
func (s *Subscription) Close() {
	s.hub.unsubscribe(unsubscribeCmd{pollID: s.PollID, subscriberID: s.ID, sub: s.sub})
}

// Hub tracks who watches which poll and fans committed snapshots out to
// them. All subscriber state is owned by one goroutine; Publish never
// waits for it.
type Hub struct {
	cmdCh      chan hubCmd
	clock      clockwork.Clock
	metrics    *metrics.HubMetrics
	maxPerPoll int

	polls       map[string]map[string]*subscriber
	subscribers int

	pendingMu sync.Mutex
	pending   map[string]domain.Snapshot
	notify    chan struct{}

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub starts the hub goroutine. m may be nil.
func NewHub(clock clockwork.Clock, maxPerPoll int, m *metrics.HubMetrics) *Hub {
	h := &Hub{
		cmdCh:      make(chan hubCmd, commandQueueSize),
		clock:      clock,
		metrics:    m,
		maxPerPoll: maxPerPoll,
		polls:      make(map[string]map[string]*subscriber),
		pending:    make(map[string]domain.Snapshot),
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

// Subscribe registers subscriberID on pollID. Nothing is delivered until a
// snapshot is offered or published.
func (h *Hub) Subscribe(ctx context.Context, pollID, subscriberID string) (*Subscription, error) {
	sub := &subscriber{
		id:          subscriberID,
		mailbox:     make(chan domain.Snapshot, 1),
		lastVersion: -1,
	}
	reply := make(chan subscribeReply, 1)
	if err := h.send(ctx, subscribeCmd{pollID: pollID, sub: sub, reply: reply}); err != nil {
		return nil, err
	}
	cleanup := unsubscribeCmd{pollID: pollID, subscriberID: subscriberID, sub: sub}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case r := <-reply:
		return r.sub, r.err
	case <-ctx.Done():
		// The command may still land; make sure it does not leak.
		go h.unsubscribe(cleanup)
		return nil, ctx.Err()
	case <-timer.Chan():
		go h.unsubscribe(cleanup)
		return nil, fmt.Errorf("subscribe command timed out after %v", commandTimeout)
	case <-h.done:
		return nil, domain.ErrHubStopped
	}
}

// Offer delivers snapshot to a single subscriber, subject to the same
// version ordering as Publish. Used for the initial snapshot.
func (h *Hub) Offer(ctx context.Context, sub *Subscription, snapshot domain.Snapshot) error {
	return h.send(ctx, offerCmd{pollID: sub.PollID, sub: sub.sub, snapshot: snapshot})
}

// Unsubscribe removes the subscriber and closes its channel. Unknown or
// already removed subscribers are ignored.
func (h *Hub) Unsubscribe(pollID, subscriberID string) {
	h.unsubscribe(unsubscribeCmd{pollID: pollID, subscriberID: subscriberID})
}

func (h *Hub) unsubscribe(cmd unsubscribeCmd) {
	select {
	case h.cmdCh <- cmd:
	case <-h.done:
	}
}

// Publish records snapshot as the newest state of its poll and wakes the
// hub. It never blocks. Snapshots older than one already pending are dropped.
func (h *Hub) Publish(snapshot domain.Snapshot) {
	h.pendingMu.Lock()
	if cur, ok := h.pending[snapshot.PollID]; !ok || snapshot.Version > cur.Version {
		h.pending[snapshot.PollID] = snapshot
	}
	h.pendingMu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// PublishTally implements domain.TallyPublisher.
func (h *Hub) PublishTally(_ context.Context, snapshot domain.Snapshot) error {
	h.Publish(snapshot)
	return nil
}

// SubscriberCount returns the local subscribers of pollID, or -1 if the
// hub did not answer in time.
func (h *Hub) SubscriberCount(pollID string) int {
	reply := make(chan int, 1)
	if err := h.send(context.Background(), countCmd{pollID: pollID, reply: reply}); err != nil {
		return -1
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-reply:
		return n
	case <-timer.Chan():
		slog.Warn("SubscriberCount timed out", "timeout", commandTimeout)
		return -1
	case <-h.done:
		return -1
	}
}

// Stop closes every subscription and waits for the hub goroutine to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		select {
		case h.cmdCh <- stopCmd{}:
		case <-h.done:
			return
		}

		timeout := h.clock.NewTimer(stopTimeout)
		defer timeout.Stop()

		select {
		case <-h.done:
			slog.Info("Subscription hub stopped")
		case <-timeout.Chan():
			slog.Warn("Subscription hub stop timeout exceeded", "timeout", stopTimeout)
		}
	})
}

func (h *Hub) send(ctx context.Context, cmd hubCmd) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case h.cmdCh <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return domain.ErrHubStopped
	}
}

func (h *Hub) run() {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Subscription hub panic recovered", "panic", r)
			h.closeAll()
		}
	}()

	depthTicker := h.clock.NewTicker(depthInterval)
	defer depthTicker.Stop()

	for {
		select {
		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case subscribeCmd:
				c.reply <- h.handleSubscribe(c)
			case unsubscribeCmd:
				h.handleUnsubscribe(c)
			case offerCmd:
				if c.sub != nil && h.polls[c.pollID][c.sub.id] == c.sub {
					h.deliver(c.pollID, c.sub, c.snapshot)
				}
			case countCmd:
				c.reply <- len(h.polls[c.pollID])
			case stopCmd:
				h.closeAll()
				return
			default:
				slog.Warn("Subscription hub received unknown command", "command_type", fmt.Sprintf("%T", cmd))
			}
		case <-h.notify:
			h.flushPending()
		case <-depthTicker.Chan():
			if h.metrics != nil {
				h.metrics.CommandQueueDepth.Set(float64(len(h.cmdCh)))
			}
		}
	}
}

func (h *Hub) handleSubscribe(c subscribeCmd) subscribeReply {
	subs, exists := h.polls[c.pollID]
	if !exists {
		subs = make(map[string]*subscriber)
		h.polls[c.pollID] = subs
	}

	id := c.sub.id
	if existing, ok := subs[id]; ok {
		// Re-subscribing with the same id replaces the old feed.
		close(existing.mailbox)
		delete(subs, id)
		h.subscribers--
	}

	if len(subs) >= h.maxPerPoll {
		if len(subs) == 0 {
			delete(h.polls, c.pollID)
		}
		slog.Warn("Rejecting subscriber: max subscribers reached", "poll_id", c.pollID, "max_subscribers", h.maxPerPoll)
		if h.metrics != nil {
			h.metrics.RejectedSubscribes.Inc()
		}
		return subscribeReply{err: fmt.Errorf("%w: limit is %d", domain.ErrTooManySubscribers, h.maxPerPoll)}
	}

	subs[id] = c.sub
	h.subscribers++
	h.updateGauges()

	slog.Debug("Subscriber registered", "poll_id", c.pollID, "subscriber_id", id, "total_subscribers", len(subs))
	return subscribeReply{sub: &Subscription{PollID: c.pollID, ID: id, C: c.sub.mailbox, hub: h, sub: c.sub}}
}

func (h *Hub) handleUnsubscribe(c unsubscribeCmd) {
	pollID := c.pollID
	subs, ok := h.polls[pollID]
	if !ok {
		return
	}
	sub, ok := subs[c.subscriberID]
	if !ok || (c.sub != nil && c.sub != sub) {
		return
	}

	close(sub.mailbox)
	delete(subs, c.subscriberID)
	h.subscribers--

	if len(subs) == 0 {
		delete(h.polls, pollID)
		slog.Debug("Last subscriber left", "poll_id", pollID)
	}
	h.updateGauges()
}

func (h *Hub) flushPending() {
	h.pendingMu.Lock()
	batch := h.pending
	h.pending = make(map[string]domain.Snapshot, len(batch))
	h.pendingMu.Unlock()

	for pollID, snapshot := range batch {
		for _, sub := range h.polls[pollID] {
			h.deliver(pollID, sub, snapshot)
		}
	}
}

// deliver puts snapshot in the subscriber's one-slot mailbox, replacing an
// unread older snapshot. Only the hub goroutine sends on mailboxes, so the
// second send cannot block.
func (h *Hub) deliver(pollID string, sub *subscriber, snapshot domain.Snapshot) {
	if snapshot.Version <= sub.lastVersion {
		return
	}

	select {
	case sub.mailbox <- snapshot:
	default:
		select {
		case <-sub.mailbox:
			if h.metrics != nil {
				h.metrics.SnapshotsCoalesced.Inc()
			}
			slog.Debug("Slow subscriber coalesced", "poll_id", pollID, "subscriber_id", sub.id)
		default:
		}
		sub.mailbox <- snapshot
	}

	sub.lastVersion = snapshot.Version
	if h.metrics != nil {
		h.metrics.SnapshotsDelivered.Inc()
	}
}

func (h *Hub) closeAll() {
	total := h.subscribers
	for pollID, subs := range h.polls {
		for _, sub := range subs {
			close(sub.mailbox)
		}
		delete(h.polls, pollID)
	}
	h.subscribers = 0
	h.updateGauges()
	slog.Info("Subscription hub closed all subscriptions", "subscribers", total)
}

func (h *Hub) updateGauges() {
	if h.metrics == nil {
		return
	}
	h.metrics.ActivePolls.Set(float64(len(h.polls)))
	h.metrics.ActiveSubscribers.Set(float64(h.subscribers))
}
