// Package memory provides a process-local identity repository. It backs the
// "memory://" DATABASE_URL and doubles as a test double with error injection.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/database"
)

func init() {
	database.RegisterBackend("memory", func(_ context.Context, _ string, _ *config.DatabaseConfig) (database.IdentityRepository, error) {
		return New(), nil
	})
}

// Repository is an in-memory database.IdentityRepository.
type Repository struct {
	mu     sync.RWMutex
	rows   []database.StoredIdentity
	labels map[string]struct{}
	nextID int64
	now    func() time.Time

	// Error injection
	InsertError error
	ListError   error
	CountError  error

	// InsertHook, when set, runs before each insert outside the lock.
	InsertHook func(label string)
}

// New creates an empty repository.
func New() *Repository {
	return &Repository{
		labels: make(map[string]struct{}),
		now:    time.Now,
	}
}

// Insert stores an identity.
func (r *Repository) Insert(ctx context.Context, label string, blob []byte) (database.StoredIdentity, error) {
	if r.InsertHook != nil {
		r.InsertHook(label)
	}
	if r.InsertError != nil {
		return database.StoredIdentity{}, r.InsertError
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.labels[label]; ok {
		return database.StoredIdentity{}, database.ErrDuplicateLabel
	}
	r.nextID++
	row := database.StoredIdentity{
		ID:         r.nextID,
		Label:      label,
		Blob:       slices.Clone(blob),
		EnrolledAt: r.now().UTC(),
	}
	r.rows = append(r.rows, row)
	r.labels[label] = struct{}{}
	return row, nil
}

// Seed stores a row verbatim, bypassing validation. Used to simulate
// existing or corrupted data.
func (r *Repository) Seed(row database.StoredIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
	r.labels[row.Label] = struct{}{}
	r.nextID = max(r.nextID, row.ID)
	slices.SortFunc(r.rows, func(a, b database.StoredIdentity) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

// List returns all identities ordered by ID.
func (r *Repository) List(ctx context.Context) ([]database.StoredIdentity, error) {
	if r.ListError != nil {
		return nil, r.ListError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]database.StoredIdentity, len(r.rows))
	for i, row := range r.rows {
		row.Blob = slices.Clone(row.Blob)
		out[i] = row
	}
	return out, nil
}

// Count returns the number of identities.
func (r *Repository) Count(ctx context.Context) (int, error) {
	if r.CountError != nil {
		return 0, r.CountError
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows), nil
}

// Close is a no-op.
func (r *Repository) Close() error {
	return nil
}
