package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-id/internal/codec"
	"github.com/kozaktomas/face-id/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// IdentityRepository stores identities in PostgreSQL. The canonical
// embedding lives in face_vector as codec bytes; the embedding column is a
// pgvector mirror used for SQL-side nearest queries.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new PostgreSQL identity repository
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// Insert stores a new identity.
func (r *IdentityRepository) Insert(ctx context.Context, label string, blob []byte) (database.StoredIdentity, error) {
	emb, err := codec.Decode(blob, 0)
	if err != nil {
		return database.StoredIdentity{}, err
	}

	query := `
		INSERT INTO identities (label, face_vector, embedding)
		VALUES ($1, $2, $3)
		RETURNING id, label, face_vector, enrolled_at
	`

	var row database.StoredIdentity
	err = r.pool.QueryRow(ctx, query, label, blob, pgvector.NewVector(emb)).Scan(
		&row.ID,
		&row.Label,
		&row.Blob,
		&row.EnrolledAt,
	)
	if isUniqueViolation(err) {
		return database.StoredIdentity{}, database.ErrDuplicateLabel
	}
	if err != nil {
		return database.StoredIdentity{}, fmt.Errorf("insert identity: %w", err)
	}
	return row, nil
}

// List returns all identities ordered by ID.
func (r *IdentityRepository) List(ctx context.Context) ([]database.StoredIdentity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, label, face_vector, enrolled_at
		FROM identities
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var out []database.StoredIdentity
	for rows.Next() {
		var row database.StoredIdentity
		if err := rows.Scan(&row.ID, &row.Label, &row.Blob, &row.EnrolledAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

// Count returns the number of stored identities.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

// FindNearest returns the identity with the smallest L2 distance to
// embedding, ties resolved by lowest ID.
func (r *IdentityRepository) FindNearest(
	ctx context.Context, embedding []float32,
) (database.StoredIdentity, float64, bool, error) {
	query := `
		SELECT id, label, face_vector, enrolled_at, embedding <-> $1::vector AS distance
		FROM identities
		ORDER BY distance, id
		LIMIT 1
	`

	var row database.StoredIdentity
	var distance float64
	err := r.pool.QueryRow(ctx, query, pgvector.NewVector(embedding)).Scan(
		&row.ID,
		&row.Label,
		&row.Blob,
		&row.EnrolledAt,
		&distance,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return database.StoredIdentity{}, 0, false, nil
	}
	if err != nil {
		return database.StoredIdentity{}, 0, false, fmt.Errorf("query nearest identity: %w", err)
	}
	return row, distance, true, nil
}

// Close closes the underlying pool.
func (r *IdentityRepository) Close() error {
	return r.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
