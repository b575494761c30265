package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/colorize-be/internal/domain"
	"github.com/jmoiron/sqlx"
)

// Repository persists colorize requests.
type Repository interface {
	Create(ctx context.Context, req *domain.ColorizeRequest) error
	Get(ctx context.Context, id string) (*domain.ColorizeRequest, error)
	// MarkComplete and MarkFailed only affect records still processing and
	// return domain.ErrRequestFinalized otherwise.
	MarkComplete(ctx context.Context, id string, c domain.Completion) error
	MarkFailed(ctx context.Context, id, message string, at time.Time) error
}

// PostgresRepository is the sqlx implementation of Repository.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, req *domain.ColorizeRequest) error {
	query := `
		INSERT INTO colorize_requests (
			id, user_id, user_email, status,
			original_path, original_url, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7
		)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		req.ID,
		req.UserID,
		req.UserEmail,
		req.Status,
		req.OriginalPath,
		req.OriginalURL,
		req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store colorize request: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.ColorizeRequest, error) {
	var req domain.ColorizeRequest
	query := `
		SELECT
			id, user_id, user_email, status,
			original_path, original_url, colorized_path, colorized_url,
			error_message, created_at, completed_at
		FROM colorize_requests
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &req, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, domain.ErrRequestNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get colorize request: %w", err)
	}

	return &req, nil
}

func (r *PostgresRepository) MarkComplete(ctx context.Context, id string, c domain.Completion) error {
	query := `
		UPDATE colorize_requests
		SET status = $2,
			original_url = $3,
			colorized_path = $4,
			colorized_url = $5,
			completed_at = $6
		WHERE id = $1 AND status = 'processing'
	`

	res, err := r.db.ExecContext(ctx, query, id, domain.StatusComplete, c.OriginalURL, c.ColorizedPath, c.ColorizedURL, c.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to mark request complete: %w", err)
	}
	return requireUpdated(res, id)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id, message string, at time.Time) error {
	query := `
		UPDATE colorize_requests
		SET status = $2,
			error_message = $3,
			completed_at = $4
		WHERE id = $1 AND status = 'processing'
	`

	res, err := r.db.ExecContext(ctx, query, id, domain.StatusFailed, message, at)
	if err != nil {
		return fmt.Errorf("failed to mark request failed: %w", err)
	}
	return requireUpdated(res, id)
}

func requireUpdated(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("request %s: %w", id, domain.ErrRequestFinalized)
	}
	return nil
}
