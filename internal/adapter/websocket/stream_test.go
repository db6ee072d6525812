package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/broadcast"
	"github.com/pscheid92/pollpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hubSubscriber mirrors the service: register on the hub, then offer the
// current snapshot.
type hubSubscriber struct {
	hub     *broadcast.Hub
	current domain.Snapshot
	err     error
}

func (h *hubSubscriber) Subscribe(ctx context.Context, pollID, _ string) (*broadcast.Subscription, error) {
	if h.err != nil {
		return nil, h.err
	}
	sub, err := h.hub.Subscribe(ctx, pollID, "viewer-1")
	if err != nil {
		return nil, err
	}
	if err := h.hub.Offer(ctx, sub, h.current); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

type streamFixture struct {
	hub     *broadcast.Hub
	metrics *metrics.StreamMetrics
	url     string
}

func newStreamFixture(t *testing.T, subscriber *hubSubscriber, checkOrigin func(*http.Request) bool) *streamFixture {
	t.Helper()

	m := metrics.NewStreamMetrics(prometheus.NewRegistry())
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	streamer := NewStreamer(subscriber, checkOrigin, clockwork.NewRealClock(), m)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := streamer.Serve(w, r, "p1"); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	return &streamFixture{
		hub:     subscriber.hub,
		metrics: m,
		url:     "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func newTestHub(t *testing.T) *broadcast.Hub {
	t.Helper()
	hub := broadcast.NewHub(clockwork.NewRealClock(), 10, nil)
	t.Cleanup(hub.Stop)
	return hub
}

func dial(t *testing.T, url string) *ws.Conn {
	t.Helper()
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *ws.Conn) snapshotMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg snapshotMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestStreamer_SendsInitialAndPublishedSnapshots(t *testing.T) {
	hub := newTestHub(t)
	f := newStreamFixture(t, &hubSubscriber{hub: hub, current: domain.Snapshot{PollID: "p1", Version: 0, Tally: []int64{0, 0}}}, nil)
	conn := dial(t, f.url)

	initial := readSnapshot(t, conn)
	assert.Equal(t, "p1", initial.PollID)
	assert.Equal(t, int64(0), initial.Version)
	assert.Equal(t, []int64{0, 0}, initial.Tally)
	assert.Equal(t, []float64{0, 0}, initial.Percentages)

	hub.Publish(domain.Snapshot{PollID: "p1", Version: 3, Tally: []int64{1, 2}, TotalVoters: 3})

	next := readSnapshot(t, conn)
	assert.Equal(t, int64(3), next.Version)
	assert.Equal(t, []int64{1, 2}, next.Tally)
	assert.Equal(t, int64(3), next.TotalVoters)
	assert.Equal(t, []float64{33.3, 66.7}, next.Percentages)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.MessagesSent) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ActiveConnections))
}

func TestStreamer_SubscribeErrorIsReturnedBeforeUpgrade(t *testing.T) {
	hub := newTestHub(t)
	f := newStreamFixture(t, &hubSubscriber{hub: hub, err: domain.ErrPollNotFound}, nil)

	_, resp, err := ws.DefaultDialer.Dial(f.url, nil)
	require.ErrorIs(t, err, ws.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamer_HubStopSendsCloseFrame(t *testing.T) {
	hub := broadcast.NewHub(clockwork.NewRealClock(), 10, nil)
	f := newStreamFixture(t, &hubSubscriber{hub: hub, current: domain.Snapshot{PollID: "p1", Tally: []int64{0, 0}}}, nil)
	conn := dial(t, f.url)
	_ = readSnapshot(t, conn)

	hub.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()

	var closeErr *ws.CloseError
	require.True(t, errors.As(err, &closeErr), "expected close frame, got %v", err)
	assert.Equal(t, ws.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, closeReasonDone, closeErr.Text)
}

func TestStreamer_ClientDisconnectReleasesSubscription(t *testing.T) {
	hub := newTestHub(t)
	f := newStreamFixture(t, &hubSubscriber{hub: hub, current: domain.Snapshot{PollID: "p1", Tally: []int64{0, 0}}}, nil)

	conn, _, err := ws.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	_ = readSnapshot(t, conn)
	require.Equal(t, 1, hub.SubscriberCount("p1"))

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return hub.SubscriberCount("p1") == 0 && testutil.ToFloat64(f.metrics.ActiveConnections) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamer_RejectedOriginReleasesSubscription(t *testing.T) {
	hub := newTestHub(t)
	f := newStreamFixture(t,
		&hubSubscriber{hub: hub, current: domain.Snapshot{PollID: "p1", Tally: []int64{0, 0}}},
		NewOriginPolicy([]string{"https://polls.example.edu"}, false).CheckOrigin,
	)

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := ws.DefaultDialer.Dial(f.url, header)
	require.ErrorIs(t, err, ws.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.Eventually(t, func() bool {
		return hub.SubscriberCount("p1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewSnapshotMessage(t *testing.T) {
	msg := newSnapshotMessage(domain.Snapshot{PollID: "p1", Version: 4, Tally: []int64{3, 1}, TotalVoters: 4})

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"poll_id":"p1","version":4,"tally":[3,1],"total_voters":4,"percentages":[75,25]}`, string(data))
}
