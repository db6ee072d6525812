package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/domain"
)

const (
	writeDeadline   = 5 * time.Second
	pingInterval    = 30 * time.Second
	pongDeadline    = 60 * time.Second
	closeReasonDone = "stream ended"
)

// snapshotMessage is the frame pushed to viewers for every snapshot.
type snapshotMessage struct {
	PollID      string    `json:"poll_id"`
	Version     int64     `json:"version"`
	Tally       []int64   `json:"tally"`
	TotalVoters int64     `json:"total_voters"`
	Percentages []float64 `json:"percentages"`
}

func newSnapshotMessage(s domain.Snapshot) snapshotMessage {
	return snapshotMessage{
		PollID:      s.PollID,
		Version:     s.Version,
		Tally:       s.Tally,
		TotalVoters: s.TotalVoters,
		Percentages: s.Percentages(),
	}
}

// clientWriter owns every write to one connection: snapshots from the feed,
// keepalive pings and the final close frame.
type clientWriter struct {
	connection *websocket.Conn
	clock      clockwork.Clock
	metrics    *metrics.StreamMetrics
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func newClientWriter(connection *websocket.Conn, clock clockwork.Clock, m *metrics.StreamMetrics, feed <-chan domain.Snapshot) *clientWriter {
	cw := &clientWriter{
		connection: connection,
		clock:      clock,
		metrics:    m,
		done:       make(chan struct{}),
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run(feed)
	return cw
}

func (cw *clientWriter) run(feed <-chan domain.Snapshot) {
	defer cw.wg.Done()

	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case snapshot, ok := <-feed:
			if !ok {
				// Hub stopped or the subscription was replaced.
				cw.writeClose(closeReasonDone)
				_ = cw.connection.Close()
				return
			}
			if err := cw.writeSnapshot(snapshot); err != nil {
				slog.Debug("Tally stream write failed", "poll_id", snapshot.PollID, "error", err)
				_ = cw.connection.Close()
				return
			}
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				cw.metrics.PingFailures.Inc()
				_ = cw.connection.Close()
				return
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *clientWriter) writeSnapshot(snapshot domain.Snapshot) error {
	data, err := json.Marshal(newSnapshotMessage(snapshot))
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	start := cw.clock.Now()
	cw.updateWriteDeadline()
	if err := cw.connection.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	cw.metrics.SendDuration.Observe(cw.clock.Since(start).Seconds())
	cw.metrics.MessagesSent.Inc()
	return nil
}

func (cw *clientWriter) writeClose(reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	cw.updateWriteDeadline()
	_ = cw.connection.WriteMessage(websocket.CloseMessage, msg)
}

// stop ends the writer and closes the connection. Safe to call more than once.
func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.done)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *clientWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}
