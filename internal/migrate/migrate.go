// Package migrate applies the embedded document-store migrations in version
// order. Files are named 0001_name.sql and each runs once, inside its own
// transaction, recorded in schema_migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"sort"
)

//go:embed sql/*.sql
var sqlFS embed.FS

const tableName = "schema_migrations"

var migrationFileRe = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration is one embedded migration file.
type Migration struct {
	Version string
	Name    string
	Applied bool
	body    string
}

// Run applies every pending migration and returns how many were applied.
func Run(ctx context.Context, db *sql.DB, logger *slog.Logger) (int, error) {
	return run(ctx, db, sqlFS, logger)
}

// Status lists the embedded migrations and whether each has been applied.
func Status(ctx context.Context, db *sql.DB) ([]Migration, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure migrations table: %w", err)
	}
	return load(ctx, db, sqlFS)
}

func run(ctx context.Context, db *sql.DB, fsys fs.FS, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return 0, fmt.Errorf("ensure migrations table: %w", err)
	}

	all, err := load(ctx, db, fsys)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, m := range all {
		if m.Applied {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return n, fmt.Errorf("apply %s_%s.sql: %w", m.Version, m.Name, err)
		}
		logger.Info("migration applied", "version", m.Version, "name", m.Name)
		n++
	}
	return n, nil
}

func load(ctx context.Context, db *sql.DB, fsys fs.FS) ([]Migration, error) {
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}

	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		body, err := fs.ReadFile(fsys, "sql/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: m[1], Name: m[2], Applied: applied[m[1]], body: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+tableName+` (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)
	`)
	return err
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM "+tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO "+tableName+" (version, name) VALUES (?, ?)",
		m.Version, m.Name,
	); err != nil {
		return err
	}
	return tx.Commit()
}
