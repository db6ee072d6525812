package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/pollpulse/internal/domain"
)

func (s *Server) registerFeedbackRoutes(api *echo.Group) {
	api.POST("/feedback", s.handleSubmitFeedback)
	api.GET("/feedback", s.handleListFeedback)
	api.GET("/stats", s.handleStats)
}

type submitFeedbackRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Rating   int    `json:"rating"`
	Author   string `json:"author"`
}

// handleSubmitFeedback takes the author from the body, falling back to the
// actor's display name. The actor id is kept as the entry's user id.
func (s *Server) handleSubmitFeedback(c echo.Context) error {
	var req submitFeedbackRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	author := req.Author
	if author == "" {
		author = actorName(c)
	}

	entry, err := s.app.SubmitFeedback(c.Request().Context(), domain.NewFeedback{
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
		Rating:   req.Rating,
		Author:   author,
		UserID:   actorID(c),
	})
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusCreated, newFeedbackResponse(entry)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleListFeedback(c echo.Context) error {
	entries, err := s.app.ListFeedback(c.Request().Context(), c.QueryParam("category"))
	if err != nil {
		return err
	}

	out := make([]feedbackResponse, len(entries))
	for i, f := range entries {
		out[i] = newFeedbackResponse(f)
	}
	if err := c.JSON(http.StatusOK, out); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.app.Stats(c.Request().Context())
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, statsResponse{
		TotalPolls:      stats.TotalPolls,
		TotalVotes:      stats.TotalVotes,
		ActivePollsters: stats.ActivePollsters,
		FeedbackCount:   stats.FeedbackCount,
		AverageRating:   stats.AverageRating,
	}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
