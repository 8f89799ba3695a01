package identity

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-id/internal/codec"
	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/facematch"
)

// MaxLabelLength is the longest label, in characters, every backend can hold.
const MaxLabelLength = 255

// checkFinite rejects NaN and infinite components. A NaN never compares
// closer than anything, so a stored one would win every query after it.
func checkFinite(emb Embedding) error {
	for i, v := range emb {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: value %d is %v", ErrInvalidEmbedding, i, v)
		}
	}
	return nil
}

// Store owns all enrolled identities. It is the only place that enforces
// label uniqueness and computes nearest matches.
//
// Enroll takes the write lock twice for short sections (reserve the label,
// then commit the record) and never across repository I/O. FindNearest holds
// the read lock for its whole scan, so it sees exactly the records committed
// before it started.
type Store struct {
	dim   int
	repo  database.IdentityRepository
	index Index
	log   *slog.Logger
	now   func() time.Time

	mu      sync.RWMutex
	records map[int64]*Record
	labels  map[string]int64
	pending map[string]struct{}
	nextID  int64

	matched    atomic.Int64
	emptyQuery atomic.Int64
	emptyStore atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithRepository persists enrollments. Without one the store is memory-only
// and assigns IDs itself.
func WithRepository(repo database.IdentityRepository) Option {
	return func(s *Store) { s.repo = repo }
}

// WithIndex replaces the default LinearIndex.
func WithIndex(index Index) Option {
	return func(s *Store) { s.index = index }
}

// WithLogger sets the logger used for enrollment and query events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.log = logger }
}

// WithClock sets the time source for memory-only enrollments.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store for embeddings of length dim.
func New(dim int, opts ...Option) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("identity: embedding dimension must be positive, got %d", dim)
	}

	s := &Store{
		dim:     dim,
		log:     slog.Default(),
		now:     time.Now,
		records: make(map[int64]*Record),
		labels:  make(map[string]int64),
		pending: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.index == nil {
		s.index = NewLinearIndex()
	}
	return s, nil
}

// Dim returns the configured embedding length.
func (s *Store) Dim() int {
	return s.dim
}

// Load populates an empty store from its repository. Every stored embedding
// must decode; a corrupt row aborts the load with codec.ErrMalformed.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	rows, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("listing identities: %w", err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting identities: %w", err)
	}
	if total != len(rows) {
		// Another writer enrolled between List and Count. Those records stay
		// invisible to this process until the next Load.
		s.log.WarnContext(ctx, "identity count changed during load",
			"listed", len(rows), "counted", total)
	}

	records := make([]Record, 0, len(rows))
	seen := make(map[string]int64, len(rows))
	for _, row := range rows {
		emb, err := codec.Decode(row.Blob, s.dim)
		if err != nil {
			return fmt.Errorf("identity %d (%q): %w", row.ID, row.Label, err)
		}
		if err := checkFinite(emb); err != nil {
			return fmt.Errorf("identity %d (%q): %w", row.ID, row.Label, err)
		}
		label := facematch.CanonicalLabel(row.Label)
		if prev, ok := seen[label]; ok {
			return fmt.Errorf("identities %d and %d: %w", prev, row.ID, ErrDuplicateLabel)
		}
		seen[label] = row.ID
		records = append(records, Record{ID: row.ID, Label: label, Embedding: emb, EnrolledAt: row.EnrolledAt})
	}
	slices.SortFunc(records, func(a, b Record) int { return cmp.Compare(a.ID, b.ID) })

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) > 0 || len(s.pending) > 0 {
		return ErrAlreadyPopulated
	}
	for i := range records {
		rec := &records[i]
		s.records[rec.ID] = rec
		s.labels[rec.Label] = rec.ID
		s.nextID = max(s.nextID, rec.ID)
	}
	s.index.Rebuild(records)

	s.log.InfoContext(ctx, "identity store loaded",
		"records", len(records), "index", s.index.Name(), "dim", s.dim)
	return nil
}

// Enroll adds a new identity under label.
//
// Fails with ErrEmptyLabel, ErrLabelTooLong, ErrDimensionMismatch,
// ErrInvalidEmbedding or ErrDuplicateLabel without changing the store. The record becomes visible to FindNearest atomically,
// before Enroll returns.
func (s *Store) Enroll(ctx context.Context, label string, embedding Embedding) (Record, error) {
	label = facematch.CanonicalLabel(label)
	if label == "" {
		return Record{}, ErrEmptyLabel
	}
	if n := utf8.RuneCountInString(label); n > MaxLabelLength {
		return Record{}, fmt.Errorf("%w: %d characters, at most %d", ErrLabelTooLong, n, MaxLabelLength)
	}
	if len(embedding) != s.dim {
		return Record{}, fmt.Errorf("%w: got %d values, expected %d", ErrDimensionMismatch, len(embedding), s.dim)
	}
	if err := checkFinite(embedding); err != nil {
		return Record{}, err
	}
	emb := slices.Clone(embedding)

	if err := s.reserve(label); err != nil {
		return Record{}, err
	}

	rec, err := s.persist(ctx, label, emb)
	if err != nil {
		s.release(label)
		return Record{}, err
	}

	s.commit(&rec)

	s.log.InfoContext(ctx, "identity enrolled", "id", rec.ID, "label", rec.Label)
	return rec.clone(), nil
}

// reserve claims label for an in-flight enrollment.
func (s *Store) reserve(label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.labels[label]; ok {
		return fmt.Errorf("%w: %q (id %d)", ErrDuplicateLabel, label, id)
	}
	if _, ok := s.pending[label]; ok {
		return fmt.Errorf("%w: %q (enrollment in progress)", ErrDuplicateLabel, label)
	}
	s.pending[label] = struct{}{}
	return nil
}

func (s *Store) release(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, label)
}

// persist writes the record to the repository, which assigns ID and
// enrollment time. Memory-only stores leave both for commit.
func (s *Store) persist(ctx context.Context, label string, emb Embedding) (Record, error) {
	rec := Record{Label: label, Embedding: emb}
	if s.repo == nil {
		return rec, nil
	}

	row, err := s.repo.Insert(ctx, label, codec.Encode(emb))
	if errors.Is(err, database.ErrDuplicateLabel) {
		return Record{}, fmt.Errorf("%w: %q", ErrDuplicateLabel, label)
	}
	if err != nil {
		return Record{}, fmt.Errorf("storing identity %q: %w", label, err)
	}

	rec.ID = row.ID
	rec.EnrolledAt = row.EnrolledAt
	return rec, nil
}

func (s *Store) commit(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		s.nextID++
		rec.ID = s.nextID
		rec.EnrolledAt = s.now().UTC()
	} else {
		s.nextID = max(s.nextID, rec.ID)
	}

	delete(s.pending, rec.Label)
	s.records[rec.ID] = rec
	s.labels[rec.Label] = rec.ID
	s.index.Add(*rec)
}

// FindNearest returns the enrolled identity closest to query.
//
// A nil query means upstream found no face: the result is unmatched and the
// store is not inspected. An empty store is unmatched as well. Otherwise the
// record with minimal Euclidean distance is returned, however far away it is;
// equal distances resolve to the lowest ID. A query of the wrong length
// returns ErrDimensionMismatch, one with NaN or infinite values
// ErrInvalidEmbedding.
func (s *Store) FindNearest(ctx context.Context, query Embedding) (MatchResult, error) {
	queryID := uuid.NewString()

	if query == nil {
		s.emptyQuery.Add(1)
		s.log.DebugContext(ctx, "no match", "query_id", queryID, "reason", ReasonEmptyQuery)
		return MatchResult{Reason: ReasonEmptyQuery}, nil
	}
	if len(query) != s.dim {
		return MatchResult{}, fmt.Errorf("%w: got %d values, expected %d", ErrDimensionMismatch, len(query), s.dim)
	}
	if err := checkFinite(query); err != nil {
		return MatchResult{}, err
	}

	s.mu.RLock()
	c, ok := s.index.Nearest(query)
	var rec *Record
	if ok {
		rec = s.records[c.ID]
	}
	s.mu.RUnlock()

	if rec == nil {
		s.emptyStore.Add(1)
		s.log.DebugContext(ctx, "no match", "query_id", queryID, "reason", ReasonEmptyStore)
		return MatchResult{Reason: ReasonEmptyStore}, nil
	}

	s.matched.Add(1)
	s.log.DebugContext(ctx, "match", "query_id", queryID, "reason", ReasonMatched,
		"id", rec.ID, "label", rec.Label, "distance", c.Distance)

	id, label, dist := rec.ID, rec.Label, c.Distance
	return MatchResult{
		Matched:  true,
		ID:       &id,
		Label:    &label,
		Distance: &dist,
		Reason:   ReasonMatched,
	}, nil
}

// Len returns the number of live records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns a copy of the record with the given ID.
func (s *Store) Get(id int64) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Lookup returns a copy of the record enrolled under label.
func (s *Store) Lookup(label string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.labels[facematch.CanonicalLabel(label)]
	if !ok {
		return Record{}, false
	}
	return s.records[id].clone(), true
}

// Records returns copies of all live records ordered by ID.
func (s *Store) Records() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Stats returns the record count and query counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	n := len(s.records)
	name := s.index.Name()
	s.mu.RUnlock()

	return Stats{
		Records: n,
		Dim:     s.dim,
		Index:   name,
		Queries: QueryStats{
			Matched:    s.matched.Load(),
			EmptyQuery: s.emptyQuery.Load(),
			EmptyStore: s.emptyStore.Load(),
		},
	}
}

// WithIndexLocked runs fn with the read lock held, for callers that persist
// or inspect the index while enrollments may be running.
func (s *Store) WithIndexLocked(fn func(Index) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.index)
}
