package database

import (
	"context"
	"database/sql"
	"slices"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openMigrateDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate_AppliesPendingInOrder(t *testing.T) {
	db := openMigrateDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"002_index.sql":  {Data: []byte("CREATE INDEX things_name ON things(name);")},
		"001_things.sql": {Data: []byte("CREATE TABLE things (id INTEGER PRIMARY KEY, name TEXT);")},
		"README.md":      {Data: []byte("not a migration")},
	}

	applied, err := Migrate(ctx, db, fsys, SQLiteDialect)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if want := []string{"001_things.sql", "002_index.sql"}; !slices.Equal(applied, want) {
		t.Errorf("applied = %v, want %v", applied, want)
	}

	again, err := Migrate(ctx, db, fsys, SQLiteDialect)
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected nothing pending, got %v", again)
	}

	fsys["003_more.sql"] = &fstest.MapFile{Data: []byte("ALTER TABLE things ADD COLUMN extra TEXT;")}
	more, err := Migrate(ctx, db, fsys, SQLiteDialect)
	if err != nil {
		t.Fatalf("third Migrate: %v", err)
	}
	if !slices.Equal(more, []string{"003_more.sql"}) {
		t.Errorf("expected only the new file, got %v", more)
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE applied_at > 0").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 recorded migrations, got %d", n)
	}
}

func TestMigrate_FailedFileIsNotRecorded(t *testing.T) {
	db := openMigrateDB(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"001_ok.sql":     {Data: []byte("CREATE TABLE ok (id INTEGER);")},
		"002_broken.sql": {Data: []byte("CREATE TABLE nope (")},
	}
	if _, err := Migrate(ctx, db, fsys, SQLiteDialect); err == nil {
		t.Fatal("expected broken migration to fail")
	}

	var versions []string
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			t.Fatal(err)
		}
		versions = append(versions, v)
	}
	if !slices.Equal(versions, []string{"001_ok.sql"}) {
		t.Errorf("recorded = %v, want only 001_ok.sql", versions)
	}
}

func TestDialectPlaceholders(t *testing.T) {
	tests := []struct {
		dialect Dialect
		n       int
		want    string
	}{
		{PostgresDialect, 1, "$1"},
		{PostgresDialect, 12, "$12"},
		{SQLiteDialect, 1, "?"},
		{SQLiteDialect, 3, "?"},
	}
	for _, tt := range tests {
		if got := tt.dialect.Placeholder(tt.n); got != tt.want {
			t.Errorf("%s placeholder %d = %q, want %q", tt.dialect.Name, tt.n, got, tt.want)
		}
	}
}
