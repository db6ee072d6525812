package httpserver

import (
	"time"

	"github.com/pscheid92/pollpulse/internal/domain"
)

type pollResponse struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	Options       []string  `json:"options"`
	Category      string    `json:"category"`
	Tally         []int64   `json:"tally"`
	Percentages   []float64 `json:"percentages"`
	TotalVoters   int64     `json:"total_voters"`
	CreatedBy     string    `json:"created_by"`
	CreatedByName string    `json:"created_by_name"`
	CreatedAt     time.Time `json:"created_at"`
	Version       int64     `json:"version"`
}

func newPollResponse(p *domain.Poll) pollResponse {
	return pollResponse{
		ID:            p.ID,
		Question:      p.Question,
		Options:       p.Options,
		Category:      string(p.Category),
		Tally:         p.Tally,
		Percentages:   p.Snapshot().Percentages(),
		TotalVoters:   p.TotalVoters,
		CreatedBy:     p.CreatedBy,
		CreatedByName: p.CreatedByName,
		CreatedAt:     p.CreatedAt,
		Version:       p.Version,
	}
}

type snapshotResponse struct {
	PollID      string    `json:"poll_id"`
	Version     int64     `json:"version"`
	Tally       []int64   `json:"tally"`
	Percentages []float64 `json:"percentages"`
	TotalVoters int64     `json:"total_voters"`
}

func newSnapshotResponse(s domain.Snapshot) snapshotResponse {
	return snapshotResponse{
		PollID:      s.PollID,
		Version:     s.Version,
		Tally:       s.Tally,
		Percentages: s.Percentages(),
		TotalVoters: s.TotalVoters,
	}
}

type voteRecordResponse struct {
	PollID     string    `json:"poll_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

type feedbackResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Rating    int       `json:"rating"`
	Author    string    `json:"author"`
	UserID    string    `json:"user_id,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func newFeedbackResponse(f *domain.FeedbackEntry) feedbackResponse {
	return feedbackResponse{
		ID:        f.ID,
		Title:     f.Title,
		Content:   f.Content,
		Category:  string(f.Category),
		Rating:    f.Rating,
		Author:    f.Author,
		UserID:    f.UserID,
		Status:    string(f.Status),
		CreatedAt: f.CreatedAt,
	}
}

type statsResponse struct {
	TotalPolls      int     `json:"total_polls"`
	TotalVotes      int64   `json:"total_votes"`
	ActivePollsters int     `json:"active_pollsters"`
	FeedbackCount   int     `json:"feedback_count"`
	AverageRating   float64 `json:"average_rating"`
}
