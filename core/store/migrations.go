package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"incidentdesk/core/utils"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFiles embed.FS

// ApplyMigrations runs the embedded goose migrations for the DB dialect.
func ApplyMigrations(ctx context.Context, db *DB, logger *utils.Logger) error {
	dialect, dir := goose.DialectPostgres, "migrations/postgres"
	if db.Dialect() == DialectSQLite {
		dialect, dir = goose.DialectSQLite3, "migrations/sqlite"
	}
	fsys, err := fs.Sub(migrationFiles, dir)
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(dialect, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		logger.Printf("migration applied version=%d dur=%s", res.Source.Version, res.Duration)
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("goose version: %w", err)
	}
	logger.Printf("schema version=%d dialect=%s", version, db.Dialect())
	return nil
}
