package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cuongbtq/colorize-be/internal/domain"
	"github.com/jmoiron/sqlx"
)

// Totals is one row of the colorize_events_totals view.
type Totals struct {
	TotalUniqueUsers int64 `db:"total_unique_users" json:"total_unique_users"`
	TotalMemories    int64 `db:"total_memories" json:"total_memories"`
}

// Store persists events and reads aggregate totals.
type Store interface {
	InsertEvent(ctx context.Context, event domain.ColorizeEvent) error
	Totals(ctx context.Context) (Totals, error)
}

// PostgresStore is the sqlx implementation of Store.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InsertEvent(ctx context.Context, event domain.ColorizeEvent) error {
	query := `
		INSERT INTO colorize_events (user_id, user_email, platform, source, created_at)
		VALUES (:user_id, :user_email, :platform, :source, :created_at)
	`

	if _, err := s.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("failed to insert colorize event: %w", err)
	}
	return nil
}

// Totals returns zeros when the view has no row.
func (s *PostgresStore) Totals(ctx context.Context) (Totals, error) {
	var totals Totals
	query := `SELECT total_unique_users, total_memories FROM colorize_events_totals LIMIT 1`

	err := s.db.GetContext(ctx, &totals, query)
	if errors.Is(err, sql.ErrNoRows) {
		return Totals{}, nil
	}
	if err != nil {
		return Totals{}, fmt.Errorf("failed to fetch stats: %w", err)
	}
	return totals, nil
}
