package postgresql

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{Host: "db", Port: 5432, User: "app", Password: "secret", Database: "colorize_db"}
	assert.Equal(t, "host=db port=5432 user=app password=secret dbname=colorize_db sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

func TestMigrations_Embedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.Len(t, files, 2)

	for _, f := range files {
		body, err := fs.ReadFile(migrations, f)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(body), "-- +goose Up"), f)
		assert.True(t, strings.Contains(string(body), "-- +goose Down"), f)
	}
}

func TestMigrations_ColorizeRequestsConstraints(t *testing.T) {
	body, err := fs.ReadFile(migrations, "migrations/20250901000001_create_colorize_requests.sql")
	require.NoError(t, err)
	sql := string(body)

	tests := []struct {
		name string
		want string
	}{
		{name: "status values", want: "CHECK (status IN ('processing', 'complete', 'failed'))"},
		{name: "terminal constraint", want: "CONSTRAINT colorize_requests_terminal_check"},
		{name: "processing has no outcome", want: "status = 'processing' AND completed_at IS NULL AND colorized_url IS NULL AND error_message IS NULL"},
		{name: "complete has url and timestamp", want: "status = 'complete' AND completed_at IS NOT NULL AND colorized_url IS NOT NULL AND error_message IS NULL"},
		{name: "failed has message and timestamp", want: "status = 'failed' AND completed_at IS NOT NULL AND colorized_url IS NULL AND error_message IS NOT NULL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, sql, tt.want)
		})
	}
}
