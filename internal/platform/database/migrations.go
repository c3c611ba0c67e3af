package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Migration commands accepted by Migrate.
const (
	MigrateUp     = "up"
	MigrateDown   = "down"
	MigrateStatus = "status"
)

// NewMigrationProvider builds a goose provider over the embedded migrations
// for db's dialect.
func NewMigrationProvider(db *sqlx.DB) (*goose.Provider, error) {
	dialect := goose.DialectSQLite3
	if IsPostgres(db) {
		dialect = goose.DialectPostgres
	}

	migrationsFS, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db.DB, migrationsFS)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider, nil
}

// Migrate runs a migration command against db and logs every step.
func Migrate(ctx context.Context, db *sqlx.DB, command string, logger *slog.Logger) error {
	provider, err := NewMigrationProvider(db)
	if err != nil {
		return err
	}

	log := logger.With("component", "migrations", "command", command)

	switch command {
	case MigrateUp:
		results, err := provider.Up(ctx)
		for _, r := range results {
			log.Info("applied migration",
				"version", r.Source.Version,
				"path", r.Source.Path,
				"duration", r.Duration)
		}
		if err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		if len(results) == 0 {
			log.Info("no pending migrations")
		}

	case MigrateDown:
		result, err := provider.Down(ctx)
		if err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		log.Info("rolled back migration",
			"version", result.Source.Version,
			"path", result.Source.Path)

	case MigrateStatus:
		statuses, err := provider.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}
		for _, s := range statuses {
			log.Info("migration status",
				"version", s.Source.Version,
				"path", s.Source.Path,
				"state", string(s.State),
				"applied_at", s.AppliedAt)
		}

	default:
		return fmt.Errorf("unknown migration command %q", command)
	}

	return nil
}
