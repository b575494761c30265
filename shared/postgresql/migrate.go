package postgresql

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// Migrate applies every pending embedded migration.
func (c *Client) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	err := goose.UpContext(ctx, c.db.DB, migrationsDir)
	if errors.Is(err, goose.ErrNoNextVersion) {
		c.logger.Info("No migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, c.db.DB)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	c.logger.Info("Database migrations applied", slog.Int64("version", version))
	return nil
}
