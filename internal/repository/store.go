package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/redemption/internal/store"
)

// PostgresStore exposes the repositories over one executor
type PostgresStore struct {
	db  *sqlx.DB
	exe DBExecutor
}

var (
	_ store.Store      = (*PostgresStore)(nil)
	_ store.Transactor = (*PostgresStore)(nil)
	_ store.Pinger     = (*PostgresStore)(nil)
)

// NewPostgresStore creates a store backed by the given connection pool
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, exe: db}
}

func (s *PostgresStore) Campaigns() store.Campaigns { return NewCampaignRepository(s.exe) }
func (s *PostgresStore) Codes() store.Codes         { return NewCodeRepository(s.exe) }
func (s *PostgresStore) Participants() store.Participants {
	return NewParticipantRepository(s.exe)
}
func (s *PostgresStore) Participations() store.Participations {
	return NewParticipationRepository(s.exe)
}

// WithinTx runs fn against repositories bound to a single transaction.
// The transaction commits only if fn returns nil.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Ping checks the connection pool
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type txStore struct {
	tx *sqlx.Tx
}

func (s *txStore) Campaigns() store.Campaigns           { return NewCampaignRepository(s.tx) }
func (s *txStore) Codes() store.Codes                   { return NewCodeRepository(s.tx) }
func (s *txStore) Participants() store.Participants     { return NewParticipantRepository(s.tx) }
func (s *txStore) Participations() store.Participations { return NewParticipationRepository(s.tx) }
