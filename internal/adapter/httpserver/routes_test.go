package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pollpulse/internal/adapter/eventpublisher"
	"github.com/pscheid92/pollpulse/internal/adapter/memory"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/adapter/websocket"
	"github.com/pscheid92/pollpulse/internal/app"
	"github.com/pscheid92/pollpulse/internal/broadcast"
	"github.com/pscheid92/pollpulse/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newLiveServer wires the real service, memory store, hub and stream, the
// way cmd/server does without Postgres and Redis.
func newLiveServer(t *testing.T) *httptest.Server {
	t.Helper()

	clock := clockwork.NewRealClock()
	reg := metrics.NewRegistry()
	m := metrics.NewSet(reg)

	store := memory.NewStore(clock)
	hub := broadcast.NewHub(clock, 10, m.Hub)
	t.Cleanup(hub.Stop)

	svc := app.NewService(
		app.Repositories{Polls: store.Polls(), Votes: store.Votes(), Feedback: store.Feedback(), Tx: store},
		app.NewKeyedLocker(),
		eventpublisher.New(hub, nil),
		hub,
		clock,
		app.VotePolicy{},
		m.Votes,
	)

	cfg := &config.Config{Port: "0", AppEnv: "development", RateLimitPerSecond: 1000, RateLimitBurst: 1000}
	streamer := websocket.NewStreamer(svc, websocket.NewOriginPolicy(cfg.StreamOrigins(), cfg.IsDevelopment()).CheckOrigin, clock, m.Stream)
	srv := NewServer(cfg, clock, svc, streamer, m.HTTP, metrics.Handler(reg), nil)

	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)
	return ts
}

func send(t *testing.T, method, url, body, actor string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(headerActorID, actor)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func readFrame(t *testing.T, conn *ws.Conn) snapshotResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame snapshotResponse
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestLive_CreateVoteAndStream(t *testing.T) {
	ts := newLiveServer(t)

	resp, body := send(t, http.MethodPost, ts.URL+"/api/polls", `{"question":"Lunch?","options":["Pizza","Salad","Curry"]}`, "creator")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var poll pollResponse
	require.NoError(t, json.Unmarshal(body, &poll))
	assert.Equal(t, "general", poll.Category)
	assert.Equal(t, "Anonymous", poll.CreatedByName)

	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/polls/"+poll.ID+"/stream", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	initial := readFrame(t, conn)
	assert.Equal(t, int64(0), initial.Version)
	assert.Equal(t, []int64{0, 0, 0}, initial.Tally)

	resp, body = send(t, http.MethodPost, ts.URL+"/api/polls/"+poll.ID+"/votes", `{"option_index":2}`, "alice")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	pushed := readFrame(t, conn)
	assert.Equal(t, int64(1), pushed.Version)
	assert.Equal(t, []int64{0, 0, 1}, pushed.Tally)
	assert.Equal(t, []float64{0, 0, 100}, pushed.Percentages)

	resp, body = send(t, http.MethodPost, ts.URL+"/api/polls/"+poll.ID+"/votes", `{"option_index":0}`, "alice")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), `"code":"already_voted"`)

	resp, body = send(t, http.MethodGet, ts.URL+"/api/me/votes", "", "alice")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), poll.ID)

	resp, body = send(t, http.MethodGet, ts.URL+"/api/polls/"+poll.ID, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &poll))
	assert.Equal(t, []int64{0, 0, 1}, poll.Tally)
	assert.Equal(t, int64(1), poll.TotalVoters)
}

func TestLive_VoteWithoutActorIsRejected(t *testing.T) {
	ts := newLiveServer(t)

	resp, body := send(t, http.MethodPost, ts.URL+"/api/polls", `{"question":"Q","options":["A","B"]}`, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var poll pollResponse
	require.NoError(t, json.Unmarshal(body, &poll))

	resp, body = send(t, http.MethodPost, ts.URL+"/api/polls/"+poll.ID+"/votes", `{"option_index":0}`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), `"code":"missing_actor"`)
}

func TestLive_StreamUnknownPoll(t *testing.T) {
	ts := newLiveServer(t)

	_, resp, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/polls/nope/stream", nil)
	require.ErrorIs(t, err, ws.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLive_FeedbackAndStats(t *testing.T) {
	ts := newLiveServer(t)

	resp, _ := send(t, http.MethodPost, ts.URL+"/api/polls", `{"question":"Q","options":["A","B"]}`, "creator")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, rating := range []string{"4", "5"} {
		resp, body := send(t, http.MethodPost, ts.URL+"/api/feedback", `{"title":"t","content":"c","category":"events","rating":`+rating+`}`, "u")
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	}

	resp, body := send(t, http.MethodPost, ts.URL+"/api/feedback", `{"title":"t","content":"c","rating":0}`, "u")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))

	resp, body = send(t, http.MethodGet, ts.URL+"/api/stats", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"total_polls":1,"total_votes":0,"active_pollsters":1,"feedback_count":2,"average_rating":4.5}`, string(body))
}

func TestLive_MetricsEndpoint(t *testing.T) {
	ts := newLiveServer(t)

	resp, body := send(t, http.MethodPost, ts.URL+"/api/polls", `{"question":"Q","options":["A","B"]}`, "creator")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var poll pollResponse
	require.NoError(t, json.Unmarshal(body, &poll))
	send(t, http.MethodPost, ts.URL+"/api/polls/"+poll.ID+"/votes", `{"option_index":1}`, "alice")

	resp, body = send(t, http.MethodGet, ts.URL+"/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `pollpulse_votes_cast_total{result="committed"} 1`)
	assert.Contains(t, string(body), `pollpulse_http_requests_total{method="POST",route="/api/polls",status="201"} 1`)
}
