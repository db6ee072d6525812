package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/pollpulse/internal/domain"
	apperrors "github.com/pscheid92/pollpulse/internal/platform/errors"
)

func (s *Server) registerPollRoutes(api *echo.Group) {
	api.POST("/polls", s.handleCreatePoll)
	api.GET("/polls", s.handleListPolls)
	api.GET("/polls/:id", s.handleGetPoll)
	api.POST("/polls/:id/votes", s.handleCastVote)
	api.GET("/polls/:id/stream", s.handleStream)
	api.GET("/me/votes", s.handleMyVotes)
	api.GET("/categories", s.handleCategories)
}

type createPollRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Category string   `json:"category"`
}

type castVoteRequest struct {
	OptionIndex *int `json:"option_index"`
}

func (s *Server) handleCreatePoll(c echo.Context) error {
	var req createPollRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	poll, err := s.app.CreatePoll(c.Request().Context(), domain.NewPoll{
		Question:      req.Question,
		Options:       req.Options,
		Category:      req.Category,
		CreatedBy:     actorID(c),
		CreatedByName: actorName(c),
	})
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderLocation, "/api/polls/"+poll.ID)
	if err := c.JSON(http.StatusCreated, newPollResponse(poll)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleListPolls(c echo.Context) error {
	polls, err := s.app.ListPolls(c.Request().Context(), c.QueryParam("category"))
	if err != nil {
		return err
	}

	out := make([]pollResponse, len(polls))
	for i, p := range polls {
		out[i] = newPollResponse(p)
	}
	if err := c.JSON(http.StatusOK, out); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetPoll(c echo.Context) error {
	poll, err := s.app.GetPoll(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, newPollResponse(poll)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleCastVote(c echo.Context) error {
	var req castVoteRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.OptionIndex == nil {
		return apperrors.ValidationError("option_index is required").WithCode("invalid_option")
	}

	pollID := c.Param("id")
	snapshot, err := s.app.CastVote(c.Request().Context(), pollID, actorID(c), *req.OptionIndex)
	if err != nil {
		return toAPIError(err).WithField("poll_id", pollID)
	}

	if err := c.JSON(http.StatusOK, newSnapshotResponse(snapshot)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleStream(c echo.Context) error {
	return s.stream.Serve(c.Response(), c.Request(), c.Param("id"))
}

func (s *Server) handleMyVotes(c echo.Context) error {
	records, err := s.app.ListVotes(c.Request().Context(), actorID(c))
	if err != nil {
		return err
	}

	out := make([]voteRecordResponse, len(records))
	for i, r := range records {
		out[i] = voteRecordResponse{PollID: r.PollID, RecordedAt: r.RecordedAt}
	}
	if err := c.JSON(http.StatusOK, out); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// handleCategories lists the categories polls and feedback accept, in
// display order.
func (s *Server) handleCategories(c echo.Context) error {
	categories := domain.Categories()
	out := make([]string, len(categories))
	for i, cat := range categories {
		out[i] = string(cat)
	}
	if err := c.JSON(http.StatusOK, out); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// bindJSON binds the request body and turns binding failures into
// validation errors.
func bindJSON(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return WrapHTTPError(httpErr)
		}
		return apperrors.ValidationError("invalid request body").WithCause(err)
	}
	return nil
}
