// Package migrate applies the embedded export schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ourresearch/openalex-formatter/internal/data/pgxutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// advisoryLockKey serializes migrators across replicas starting together.
const advisoryLockKey int64 = 0x666d745f6d6967 // "fmt_mig"

// Status describes one embedded migration and whether it has been applied.
type Status struct {
	Version string
	Applied bool
}

type migration struct {
	version string
	sql     string
}

// Run applies every pending embedded migration, each in its own transaction.
// Concurrent callers queue on an advisory lock, so it is safe to call from
// every process on startup.
func Run(ctx context.Context, db *sql.DB) error {
	all, err := load(migrationsFS)
	if err != nil {
		return err
	}
	logger := slog.Default().With("component", "migrations")

	for _, m := range all {
		err := pgxutil.InTx(ctx, db, pgx.TxOptions{}, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
				return fmt.Errorf("lock migrations: %w", err)
			}
			if err := ensureTable(ctx, tx); err != nil {
				return err
			}
			applied, err := appliedVersions(ctx, tx)
			if err != nil {
				return err
			}
			if applied[m.version] {
				return nil
			}

			logger.InfoContext(ctx, "applying migration", "version", m.version)
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return fmt.Errorf("exec migration %s: %w", m.version, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
				return fmt.Errorf("record migration %s: %w", m.version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// List reports every embedded migration in version order with its applied state.
func List(ctx context.Context, db *sql.DB) ([]Status, error) {
	all, err := load(migrationsFS)
	if err != nil {
		return nil, err
	}

	var out []Status
	err = pgxutil.InTx(ctx, db, pgx.TxOptions{AccessMode: pgx.ReadWrite}, func(tx pgx.Tx) error {
		if err := ensureTable(ctx, tx); err != nil {
			return err
		}
		applied, err := appliedVersions(ctx, tx)
		if err != nil {
			return err
		}
		out = make([]Status, 0, len(all))
		for _, m := range all {
			out = append(out, Status{Version: m.version, Applied: applied[m.version]})
		}
		return nil
	})
	return out, err
}

func ensureTable(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, tx pgx.Tx) (map[string]bool, error) {
	rows, err := tx.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan applied migrations: %w", err)
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// load reads migrations/*.sql sorted by file name; the name sans extension
// is the version.
func load(fsys fs.FS) ([]migration, error) {
	names, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	slices.Sort(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(body)) == "" {
			return nil, fmt.Errorf("migration %s is empty", name)
		}
		out = append(out, migration{
			version: strings.TrimSuffix(path.Base(name), ".sql"),
			sql:     string(body),
		})
	}
	return out, nil
}
