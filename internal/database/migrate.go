package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// Dialect is the SQL a backend needs to track applied migrations.
type Dialect struct {
	Name string
	// CreateTable creates schema_migrations if it does not exist. The table
	// needs a version column; applied_at must default on the database side.
	CreateTable string
	// Placeholder returns the SQL bind parameter for the n-th argument (1-based).
	Placeholder func(n int) string
}

var (
	PostgresDialect = Dialect{
		Name: "postgres",
		CreateTable: `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version VARCHAR(255) PRIMARY KEY,
				applied_at TIMESTAMPTZ DEFAULT NOW()
			)`,
		Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	}

	SQLiteDialect = Dialect{
		Name: "sqlite",
		CreateTable: `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
			)`,
		Placeholder: func(int) string { return "?" },
	}
)

// Migrate applies the *.sql files in fsys that are not yet recorded in
// schema_migrations, in name order, one transaction per file. It returns the
// versions applied by this call.
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS, d Dialect) ([]string, error) {
	if _, err := db.ExecContext(ctx, d.CreateTable); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}
	files, err := pendingMigrations(fsys, applied)
	if err != nil {
		return nil, err
	}

	record := "INSERT INTO schema_migrations (version) VALUES (" + d.Placeholder(1) + ")"
	for _, file := range files {
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin transaction for %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("execute migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, record, file); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit migration %s: %w", file, err)
		}

		slog.InfoContext(ctx, "applied migration", "backend", d.Name, "version", file)
	}
	return files, nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

func pendingMigrations(fsys fs.FS, applied map[string]bool) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") && !applied[e.Name()] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
