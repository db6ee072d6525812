package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	MinRating = 1
	MaxRating = 5
)

type FeedbackStatus string

const FeedbackStatusActive FeedbackStatus = "active"

// FeedbackEntry is append-only. Entries are never edited or removed.
type FeedbackEntry struct {
	ID        string
	Title     string
	Content   string
	Category  Category
	Rating    int
	Author    string
	UserID    string
	Status    FeedbackStatus
	CreatedAt time.Time
}

type NewFeedback struct {
	Title    string
	Content  string
	Category string
	Rating   int
	Author   string
	UserID   string
}

type FeedbackDraft struct {
	Title    string
	Content  string
	Category Category
	Rating   int
	Author   string
	UserID   string
}

// Validate trims text fields and checks the rating range.
// Failures wrap ErrInvalidFeedback.
func (n NewFeedback) Validate() (FeedbackDraft, error) {
	title := strings.TrimSpace(n.Title)
	content := strings.TrimSpace(n.Content)
	if title == "" || content == "" {
		return FeedbackDraft{}, fmt.Errorf("%w: title and content are required", ErrInvalidFeedback)
	}

	if n.Rating < MinRating || n.Rating > MaxRating {
		return FeedbackDraft{}, fmt.Errorf("%w: rating must be between %d and %d, got %d", ErrInvalidFeedback, MinRating, MaxRating, n.Rating)
	}

	category, err := ParseCategory(n.Category)
	if err != nil {
		return FeedbackDraft{}, fmt.Errorf("%w: %v", ErrInvalidFeedback, err)
	}

	author := strings.TrimSpace(n.Author)
	if author == "" {
		author = DefaultActorName
	}

	return FeedbackDraft{
		Title:    title,
		Content:  content,
		Category: category,
		Rating:   n.Rating,
		Author:   author,
		UserID:   strings.TrimSpace(n.UserID),
	}, nil
}

type FeedbackLedger interface {
	Append(ctx context.Context, draft FeedbackDraft) (*FeedbackEntry, error)
	// List returns entries newest first. An empty category lists all.
	List(ctx context.Context, category Category) ([]*FeedbackEntry, error)
}
