package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pscheid92/pollpulse/internal/domain"
)

type FeedbackLedger struct {
	db dbtx
}

var _ domain.FeedbackLedger = (*FeedbackLedger)(nil)

const feedbackColumns = `id, title, content, category, rating, author, user_id, status, created_at`

func scanFeedback(row pgx.Row) (*domain.FeedbackEntry, error) {
	var (
		e                domain.FeedbackEntry
		id               uuid.UUID
		category, status string
	)
	if err := row.Scan(&id, &e.Title, &e.Content, &category, &e.Rating, &e.Author, &e.UserID, &status, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.ID = id.String()
	e.Category = domain.Category(category)
	e.Status = domain.FeedbackStatus(status)
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (l *FeedbackLedger) Append(ctx context.Context, draft domain.FeedbackDraft) (*domain.FeedbackEntry, error) {
	row := l.db.QueryRow(ctx, `
		INSERT INTO feedback (id, title, content, category, rating, author, user_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+feedbackColumns,
		uuid.New(), draft.Title, draft.Content, string(draft.Category), draft.Rating, draft.Author, draft.UserID, string(domain.FeedbackStatusActive))

	e, err := scanFeedback(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert feedback: %w", err)
	}
	return e, nil
}

func (l *FeedbackLedger) List(ctx context.Context, category domain.Category) ([]*domain.FeedbackEntry, error) {
	rows, err := l.db.Query(ctx, `
		SELECT `+feedbackColumns+`
		FROM feedback
		WHERE $1 = '' OR category = $1
		ORDER BY created_at DESC, id DESC`,
		string(category))
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	entries := []*domain.FeedbackEntry{}
	for rows.Next() {
		e, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	return entries, nil
}
