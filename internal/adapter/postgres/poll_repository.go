package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pscheid92/pollpulse/internal/domain"
)

type PollRepo struct {
	db dbtx
}

var _ domain.PollRepository = (*PollRepo)(nil)

const pollColumns = `id, question, options, category, tally, total_voters, created_by, created_by_name, created_at, version`

func scanPoll(row pgx.Row) (*domain.Poll, error) {
	var (
		p        domain.Poll
		id       uuid.UUID
		category string
	)
	err := row.Scan(&id, &p.Question, &p.Options, &category, &p.Tally, &p.TotalVoters, &p.CreatedBy, &p.CreatedByName, &p.CreatedAt, &p.Version)
	if err != nil {
		return nil, err
	}
	p.ID = id.String()
	p.Category = domain.Category(category)
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (r *PollRepo) Create(ctx context.Context, draft domain.PollDraft) (*domain.Poll, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO polls (id, question, options, category, tally, created_by, created_by_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+pollColumns,
		uuid.New(), draft.Question, draft.Options, string(draft.Category), make([]int64, len(draft.Options)), draft.CreatedBy, draft.CreatedByName)

	p, err := scanPoll(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert poll: %w", err)
	}
	return p, nil
}

func (r *PollRepo) Get(ctx context.Context, pollID string) (*domain.Poll, error) {
	id, err := uuid.Parse(pollID)
	if err != nil {
		return nil, domain.ErrPollNotFound
	}

	p, err := scanPoll(r.db.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPollNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get poll: %w", err)
	}
	return p, nil
}

// ApplyVote is a single conditional UPDATE. When it matches no row a second
// read tells apart a missing poll, a bad option and a stale version.
func (r *PollRepo) ApplyVote(ctx context.Context, pollID string, optionIndex int, expectedVersion int64) (*domain.Poll, error) {
	id, err := uuid.Parse(pollID)
	if err != nil {
		return nil, domain.ErrPollNotFound
	}

	// Postgres arrays are 1-based.
	p, err := scanPoll(r.db.QueryRow(ctx, `
		UPDATE polls
		SET tally[$2] = tally[$2] + 1,
		    total_voters = total_voters + 1,
		    version = version + 1
		WHERE id = $1
		  AND version = $3
		  AND $2 BETWEEN 1 AND cardinality(options)
		RETURNING `+pollColumns,
		id, optionIndex+1, expectedVersion))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to apply vote: %w", err)
	}

	var (
		optionCount int
		version     int64
	)
	err = r.db.QueryRow(ctx, `SELECT cardinality(options), version FROM polls WHERE id = $1`, id).Scan(&optionCount, &version)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, domain.ErrPollNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to inspect poll after rejected vote: %w", err)
	case optionIndex < 0 || optionIndex >= optionCount:
		return nil, domain.ErrInvalidOption
	default:
		return nil, domain.ErrVersionConflict
	}
}

func (r *PollRepo) List(ctx context.Context, category domain.Category) ([]*domain.Poll, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+pollColumns+`
		FROM polls
		WHERE $1 = '' OR category = $1
		ORDER BY created_at DESC, id DESC`,
		string(category))
	if err != nil {
		return nil, fmt.Errorf("failed to list polls: %w", err)
	}
	defer rows.Close()

	polls := []*domain.Poll{}
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan poll: %w", err)
		}
		polls = append(polls, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list polls: %w", err)
	}
	return polls, nil
}
