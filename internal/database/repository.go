package database

import (
	"context"
	"errors"
)

// ErrDuplicateLabel is returned by Insert when the label is already stored.
var ErrDuplicateLabel = errors.New("database: duplicate label")

// IdentityRepository persists enrolled identities.
// Implementations must be safe for concurrent use.
type IdentityRepository interface {
	// Insert stores a new identity and returns it with its assigned ID and
	// enrollment time. IDs increase monotonically and are never reused.
	// Returns ErrDuplicateLabel if the label is taken.
	Insert(ctx context.Context, label string, blob []byte) (StoredIdentity, error)
	// List returns all identities ordered by ID.
	List(ctx context.Context) ([]StoredIdentity, error)
	// Count returns the number of stored identities.
	Count(ctx context.Context) (int, error)
	// Close releases the backend.
	Close() error
}

// NearestFinder is implemented by backends that can compute the nearest
// identity themselves (Euclidean distance, ties to the lowest ID).
// Found is false when nothing is stored.
type NearestFinder interface {
	FindNearest(ctx context.Context, embedding []float32) (identity StoredIdentity, distance float64, found bool, err error)
}
