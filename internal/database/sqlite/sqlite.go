// Package sqlite stores identities in a single SQLite file using the pure-Go
// modernc.org/sqlite driver. DATABASE_URL form: sqlite://path/to/faces.db
// (sqlite://:memory: for a throwaway database).
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const memoryPath = ":memory:"

func init() {
	database.RegisterBackend("sqlite", func(ctx context.Context, dsn string, _ *config.DatabaseConfig) (database.IdentityRepository, error) {
		return Open(ctx, dsn)
	})
}

// Repository is a SQLite-backed database.IdentityRepository.
type Repository struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Repository, error) {
	if path == "" {
		path = memoryPath
	}

	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == memoryPath {
		// Every connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}

	r := &Repository{db: db, path: path, now: time.Now}
	if err := r.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return r, nil
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

func (r *Repository) migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("opening embedded migrations: %w", err)
	}
	applied, err := database.Migrate(ctx, r.db, sub, database.SQLiteDialect)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		slog.InfoContext(ctx, "sqlite schema updated", "path", r.path, "migrations", applied)
	}
	return nil
}

// Insert stores a new identity.
func (r *Repository) Insert(ctx context.Context, label string, blob []byte) (database.StoredIdentity, error) {
	row := database.StoredIdentity{
		Label:      label,
		Blob:       append([]byte(nil), blob...),
		EnrolledAt: r.now().UTC(),
	}

	err := r.db.QueryRowContext(ctx,
		"INSERT INTO identities (label, face_vector, enrolled_at) VALUES (?, ?, ?) RETURNING id",
		label, blob, row.EnrolledAt.UnixNano(),
	).Scan(&row.ID)
	if isUniqueViolation(err) {
		return database.StoredIdentity{}, database.ErrDuplicateLabel
	}
	if err != nil {
		return database.StoredIdentity{}, fmt.Errorf("insert identity: %w", err)
	}
	return row, nil
}

// List returns all identities ordered by ID.
func (r *Repository) List(ctx context.Context) ([]database.StoredIdentity, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, label, face_vector, enrolled_at FROM identities ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var out []database.StoredIdentity
	for rows.Next() {
		var row database.StoredIdentity
		var enrolled int64
		if err := rows.Scan(&row.ID, &row.Label, &row.Blob, &enrolled); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		row.EnrolledAt = time.Unix(0, enrolled).UTC()
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

// Count returns the number of stored identities.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
