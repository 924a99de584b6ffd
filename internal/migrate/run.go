// Package migrate applies the embedded aad-connect schema migrations.
// Files run in name order, each in its own transaction, and are recorded in
// aad_connect_schema_migrations so repeated runs are no-ops.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/target/aad-connect/internal/data/pgxutil"
)

//go:embed migrations/*.sql
var embedded embed.FS

const versionTable = "aad_connect_schema_migrations"

// Migration is a single SQL file.
type Migration struct {
	Version string
	File    string
}

// Options configures Run.
type Options struct {
	Logger *slog.Logger
	// Source holds *.sql files at its root. Defaults to the embedded migrations.
	Source fs.FS
}

func (o Options) source() (fs.FS, error) {
	if o.Source != nil {
		return o.Source, nil
	}
	return fs.Sub(embedded, "migrations")
}

// List returns the migrations in src ordered by version.
func List(src fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(src, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".sql"), File: e.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Run applies pending migrations and returns the versions it applied.
func Run(ctx context.Context, db *sql.DB, opts Options) ([]string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "migrations")

	src, err := opts.source()
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	migrations, err := List(src)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+versionTable+` (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return nil, fmt.Errorf("create %s: %w", versionTable, err)
	}

	done, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		logger.InfoContext(ctx, "applying migration", "version", m.Version)
		if err := apply(ctx, db, src, m); err != nil {
			return applied, err
		}
		applied = append(applied, m.Version)
	}
	return applied, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+versionTable)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		done[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	return done, nil
}

func apply(ctx context.Context, db *sql.DB, src fs.FS, m Migration) error {
	body, err := fs.ReadFile(src, m.File)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", m.File, err)
	}
	err = pgxutil.WithSQLTx(ctx, db, pgxutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("exec: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+versionTable+` (version) VALUES ($1)`, m.Version); err != nil {
			return fmt.Errorf("record version: %w", err)
		}
		return nil
	}})
	if err != nil {
		return fmt.Errorf("migration %s: %w", m.Version, err)
	}
	return nil
}
