package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pscheid92/pollpulse/internal/domain"
)

type VoteLedger struct {
	db dbtx
}

var _ domain.VoteLedger = (*VoteLedger)(nil)

func (l *VoteLedger) HasVoted(ctx context.Context, pollID, actorID string) (bool, error) {
	id, err := uuid.Parse(pollID)
	if err != nil {
		return false, nil
	}

	var voted bool
	err = l.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM votes WHERE poll_id = $1 AND actor_id = $2)`, id, actorID).Scan(&voted)
	if err != nil {
		return false, fmt.Errorf("failed to check vote: %w", err)
	}
	return voted, nil
}

// RecordVote relies on the primary key: a duplicate insert affects no rows.
func (l *VoteLedger) RecordVote(ctx context.Context, pollID, actorID string) error {
	id, err := uuid.Parse(pollID)
	if err != nil {
		return domain.ErrPollNotFound
	}

	tag, err := l.db.Exec(ctx, `
		INSERT INTO votes (poll_id, actor_id)
		VALUES ($1, $2)
		ON CONFLICT (poll_id, actor_id) DO NOTHING`,
		id, actorID)
	if err != nil {
		return fmt.Errorf("failed to record vote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyRecorded
	}
	return nil
}

func (l *VoteLedger) ListByActor(ctx context.Context, actorID string) ([]domain.VoteRecord, error) {
	rows, err := l.db.Query(ctx, `
		SELECT poll_id, actor_id, recorded_at
		FROM votes
		WHERE actor_id = $1
		ORDER BY recorded_at DESC, poll_id DESC`,
		actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	defer rows.Close()

	records := []domain.VoteRecord{}
	for rows.Next() {
		var (
			rec    domain.VoteRecord
			pollID uuid.UUID
		)
		if err := rows.Scan(&pollID, &rec.ActorID, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		rec.PollID = pollID.String()
		rec.RecordedAt = rec.RecordedAt.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	return records, nil
}
