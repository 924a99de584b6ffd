// Package data implements the Postgres-backed role and account stores.
package data

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/target/aad-connect/internal/migrate"
)

// RunMigrations applies pending schema migrations and returns the versions applied.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) ([]string, error) {
	return migrate.Run(ctx, db, migrate.Options{Logger: logger})
}
