package websocket

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/broadcast"
)

const maxClientMessageSize = 512

// Subscriber opens a live feed of snapshots for one poll. The feed starts
// with the poll's current snapshot.
type Subscriber interface {
	Subscribe(ctx context.Context, pollID, subscriberID string) (*broadcast.Subscription, error)
}

// Streamer serves tally streams: one WebSocket per viewer, fed by a hub
// subscription. Viewers only receive; anything they send is discarded.
type Streamer struct {
	subscriber Subscriber
	upgrader   websocket.Upgrader
	clock      clockwork.Clock
	metrics    *metrics.StreamMetrics
}

func NewStreamer(subscriber Subscriber, checkOrigin func(r *http.Request) bool, clock clockwork.Clock, m *metrics.StreamMetrics) *Streamer {
	return &Streamer{
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clock:   clock,
		metrics: m,
	}
}

// Serve subscribes to pollID, upgrades the request and streams until the
// viewer leaves or the subscription ends. Subscribe errors are returned
// before the upgrade, so the caller can still answer with an HTTP error.
// Once the upgrade was attempted Serve returns nil.
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, pollID string) error {
	sub, err := s.subscriber.Subscribe(r.Context(), pollID, "")
	if err != nil {
		return err
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already wrote the HTTP error.
		slog.Debug("Tally stream upgrade failed", "poll_id", pollID, "error", err)
		return nil
	}

	s.metrics.ActiveConnections.Inc()
	defer s.metrics.ActiveConnections.Dec()

	slog.Debug("Tally stream opened", "poll_id", pollID, "subscriber_id", sub.ID)

	cw := newClientWriter(conn, s.clock, s.metrics, sub.C)
	readUntilClosed(conn)
	cw.stop()

	slog.Debug("Tally stream closed", "poll_id", pollID, "subscriber_id", sub.ID)
	return nil
}

// readUntilClosed keeps reading so pong and close frames are processed. It
// returns once the connection fails, times out or is closed by the writer.
func readUntilClosed(conn *websocket.Conn) {
	conn.SetReadLimit(maxClientMessageSize)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
