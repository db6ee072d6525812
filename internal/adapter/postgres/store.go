package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/pollpulse/internal/domain"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx, so repositories run
// unchanged inside and outside a vote transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

var _ domain.VoteTransactor = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Polls() *PollRepo { return &PollRepo{db: s.pool} }

func (s *Store) Votes() *VoteLedger { return &VoteLedger{db: s.pool} }

func (s *Store) Feedback() *FeedbackLedger { return &FeedbackLedger{db: s.pool} }

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InVoteTx runs fn in a READ COMMITTED transaction. The conditional UPDATE
// on polls.version and the (poll_id, actor_id) primary key keep concurrent
// transactions from double counting, even across server instances.
func (s *Store) InVoteTx(ctx context.Context, fn func(domain.PollRepository, domain.VoteLedger) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PollRepo{db: tx}, &VoteLedger{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
