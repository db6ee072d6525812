package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/pscheid92/pollpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleSubmitFeedback(t *testing.T) {
	var got domain.NewFeedback
	app := &mockAppService{
		submitFeedbackFn: func(_ context.Context, in domain.NewFeedback) (*domain.FeedbackEntry, error) {
			got = in
			return &domain.FeedbackEntry{
				ID:        "f1",
				Title:     in.Title,
				Content:   in.Content,
				Category:  domain.CategoryFacilities,
				Rating:    in.Rating,
				Author:    in.Author,
				UserID:    in.UserID,
				Status:    domain.FeedbackStatusActive,
				CreatedAt: testCreatedAt,
			}, nil
		},
	}
	srv := newTestServer(t, app)

	rec := doRequest(srv, http.MethodPost, "/api/feedback",
		`{"title":"Wifi","content":"Library wifi drops","category":"facilities","rating":2}`,
		asActor("u-1", "Robin"))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Robin", got.Author, "author falls back to the actor's display name")
	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, 2, got.Rating)

	var resp feedbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "f1", resp.ID)
	assert.Equal(t, "active", resp.Status)
	assert.Equal(t, "facilities", resp.Category)
}

func TestHandleSubmitFeedback_ExplicitAuthorWins(t *testing.T) {
	var got domain.NewFeedback
	app := &mockAppService{
		submitFeedbackFn: func(_ context.Context, in domain.NewFeedback) (*domain.FeedbackEntry, error) {
			got = in
			return &domain.FeedbackEntry{ID: "f1", Status: domain.FeedbackStatusActive}, nil
		},
	}
	srv := newTestServer(t, app)

	rec := doRequest(srv, http.MethodPost, "/api/feedback",
		`{"title":"t","content":"c","rating":5,"author":"Kim"}`,
		asActor("u-1", "Robin"))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Kim", got.Author)
}

func TestHandleSubmitFeedback_Invalid(t *testing.T) {
	app := &mockAppService{
		submitFeedbackFn: func(context.Context, domain.NewFeedback) (*domain.FeedbackEntry, error) {
			return nil, fmt.Errorf("%w: rating must be between 1 and 5, got 6", domain.ErrInvalidFeedback)
		},
	}
	srv := newTestServer(t, app)

	rec := doRequest(srv, http.MethodPost, "/api/feedback", `{"title":"t","content":"c","rating":6}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_feedback", decodeError(t, rec.Body.Bytes()).Code)
}

func TestHandleListFeedback(t *testing.T) {
	var gotCategory string
	app := &mockAppService{
		listFeedbackFn: func(_ context.Context, category string) ([]*domain.FeedbackEntry, error) {
			gotCategory = category
			return []*domain.FeedbackEntry{
				{ID: "f2", Title: "b", Category: domain.CategoryEvents, Rating: 4, Status: domain.FeedbackStatusActive},
				{ID: "f1", Title: "a", Category: domain.CategoryEvents, Rating: 5, Status: domain.FeedbackStatusActive},
			}, nil
		},
	}
	srv := newTestServer(t, app)

	rec := doRequest(srv, http.MethodGet, "/api/feedback?category=events", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "events", gotCategory)

	var resp []feedbackResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "f2", resp[0].ID)
}

func TestHandleListFeedback_UnknownCategory(t *testing.T) {
	app := &mockAppService{
		listFeedbackFn: func(context.Context, string) ([]*domain.FeedbackEntry, error) {
			return nil, fmt.Errorf("%w: unknown category", domain.ErrInvalidFeedback)
		},
	}
	srv := newTestServer(t, app)

	rec := doRequest(srv, http.MethodGet, "/api/feedback?category=sports", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStats(t *testing.T) {
	app := &mockAppService{
		statsFn: func(context.Context) (domain.Stats, error) {
			return domain.Stats{TotalPolls: 3, TotalVotes: 12, ActivePollsters: 2, FeedbackCount: 4, AverageRating: 4.5}, nil
		},
	}
	srv := newTestServer(t, app)

	rec := doRequest(srv, http.MethodGet, "/api/stats", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_polls":3,"total_votes":12,"active_pollsters":2,"feedback_count":4,"average_rating":4.5}`, rec.Body.String())
}
