package identity

import "github.com/coder/hnsw"

// Candidate is a nearest-match candidate returned by an Index.
type Candidate struct {
	ID       int64
	Distance float32
}

// Index is the nearest-neighbor strategy behind a Store.
//
// The store serializes access: Add and Rebuild run under its write lock,
// Nearest under its read lock, so implementations need no locking of their own
// as long as Nearest does not mutate.
type Index interface {
	// Name identifies the strategy in stats and logs.
	Name() string
	// Add indexes a committed record.
	Add(rec Record)
	// Rebuild replaces the indexed set with records (ordered by ID).
	Rebuild(records []Record)
	// Nearest returns the closest record, ties going to the lowest ID.
	// ok is false when the index is empty.
	Nearest(query Embedding) (c Candidate, ok bool)
	// Len returns the number of indexed records.
	Len() int
}

// Distance is the Euclidean (L2) distance in float32.
func Distance(a, b Embedding) float32 {
	return hnsw.EuclideanDistance(a, b)
}

// closer reports whether c beats best: strictly smaller distance, or equal
// distance and a lower ID.
func closer(c, best Candidate) bool {
	if c.Distance != best.Distance {
		return c.Distance < best.Distance
	}
	return c.ID < best.ID
}

type linearEntry struct {
	id  int64
	vec Embedding
}

// LinearIndex is the exact baseline: every query scans every record.
type LinearIndex struct {
	entries []linearEntry
}

// NewLinearIndex creates an empty linear index.
func NewLinearIndex() *LinearIndex {
	return &LinearIndex{}
}

func (l *LinearIndex) Name() string { return "linear" }

func (l *LinearIndex) Add(rec Record) {
	l.entries = append(l.entries, linearEntry{id: rec.ID, vec: rec.Embedding})
}

func (l *LinearIndex) Rebuild(records []Record) {
	l.entries = make([]linearEntry, 0, len(records))
	for _, rec := range records {
		l.Add(rec)
	}
}

func (l *LinearIndex) Nearest(query Embedding) (Candidate, bool) {
	if len(l.entries) == 0 {
		return Candidate{}, false
	}

	best := Candidate{ID: l.entries[0].id, Distance: Distance(query, l.entries[0].vec)}
	for _, e := range l.entries[1:] {
		c := Candidate{ID: e.id, Distance: Distance(query, e.vec)}
		if closer(c, best) {
			best = c
		}
	}
	return best, true
}

func (l *LinearIndex) Len() int {
	return len(l.entries)
}
