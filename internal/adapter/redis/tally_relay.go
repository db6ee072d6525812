package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const tallyChannelPrefix = "poll:tally:"

// SnapshotSink receives snapshots relayed from other instances.
type SnapshotSink interface {
	Publish(snapshot domain.Snapshot)
}

type tallyMessage struct {
	PollID      string  `json:"poll_id"`
	Version     int64   `json:"version"`
	Tally       []int64 `json:"tally"`
	TotalVoters int64   `json:"total_voters"`
}

// TallyRelay forwards committed snapshots to every instance over Redis
// pub/sub, one channel per poll.
type TallyRelay struct {
	rdb     *goredis.Client
	metrics *metrics.RelayMetrics
}

var _ domain.TallyPublisher = (*TallyRelay)(nil)

func NewTallyRelay(rdb *goredis.Client, m *metrics.RelayMetrics) *TallyRelay {
	return &TallyRelay{rdb: rdb, metrics: m}
}

func (r *TallyRelay) PublishTally(ctx context.Context, snapshot domain.Snapshot) error {
	data, err := json.Marshal(tallyMessage{
		PollID:      snapshot.PollID,
		Version:     snapshot.Version,
		Tally:       snapshot.Tally,
		TotalVoters: snapshot.TotalVoters,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := r.rdb.Publish(ctx, tallyChannel(snapshot.PollID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	r.metrics.Published.Inc()
	return nil
}

// Start pattern-subscribes to every poll channel and hands decoded snapshots
// to sink until ctx is cancelled. Our own publications come back too; the
// hub drops them by version.
func (r *TallyRelay) Start(ctx context.Context, sink SnapshotSink) {
	pubsub := r.rdb.PSubscribe(ctx, tallyChannelPrefix+"*")
	defer func() { _ = pubsub.Close() }()

	slog.Info("Tally relay started", "pattern", tallyChannelPrefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			if msg == nil {
				return
			}
			r.handleMessage(msg.Channel, msg.Payload, sink)
		case <-ctx.Done():
			slog.Info("Tally relay stopped")
			return
		}
	}
}

func (r *TallyRelay) handleMessage(channel, payload string, sink SnapshotSink) {
	snapshot, err := decodeTallyMessage(channel, payload)
	if err != nil {
		r.metrics.DecodeErrors.Inc()
		slog.Warn("Dropping relayed snapshot", "channel", channel, "error", err)
		return
	}

	r.metrics.Received.Inc()
	sink.Publish(snapshot)
}

func decodeTallyMessage(channel, payload string) (domain.Snapshot, error) {
	var msg tallyMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return domain.Snapshot{}, fmt.Errorf("invalid payload: %w", err)
	}

	pollID := strings.TrimPrefix(channel, tallyChannelPrefix)
	if msg.PollID != pollID {
		return domain.Snapshot{}, fmt.Errorf("payload poll %q does not match channel poll %q", msg.PollID, pollID)
	}

	var total int64
	for _, n := range msg.Tally {
		total += n
	}
	if total != msg.TotalVoters {
		return domain.Snapshot{}, fmt.Errorf("tally sums to %d but total_voters is %d", total, msg.TotalVoters)
	}

	return domain.Snapshot{
		PollID:      msg.PollID,
		Version:     msg.Version,
		Tally:       msg.Tally,
		TotalVoters: msg.TotalVoters,
	}, nil
}

func tallyChannel(pollID string) string {
	return tallyChannelPrefix + pollID
}
