// Package identity implements the identity matching store: a concurrent set of
// enrolled face embeddings keyed by unique label, with exact nearest-match
// queries under Euclidean distance.
package identity

import "time"

// Embedding is a fixed-length face embedding produced upstream.
type Embedding = []float32

// Record is an enrolled identity. Records are immutable once enrolled.
type Record struct {
	ID         int64     `json:"id"`
	Label      string    `json:"label"`
	Embedding  Embedding `json:"-"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// clone returns a copy that does not share the embedding backing array.
func (r Record) clone() Record {
	emb := make(Embedding, len(r.Embedding))
	copy(emb, r.Embedding)
	r.Embedding = emb
	return r
}

// Reason explains a MatchResult. Matched=false results share one public shape
// but keep distinct reasons for logs and counters.
type Reason string

const (
	ReasonMatched    Reason = "matched"
	ReasonEmptyQuery Reason = "empty_query" // upstream found no face
	ReasonEmptyStore Reason = "empty_store" // nothing enrolled yet
)

// MatchResult is the outcome of FindNearest. When Matched is true ID, Label
// and Distance are set, however large the distance is.
type MatchResult struct {
	Matched  bool     `json:"matched"`
	ID       *int64   `json:"id"`
	Label    *string  `json:"label"`
	Distance *float32 `json:"distance"`
	Reason   Reason   `json:"-"`
}

// QueryStats counts FindNearest outcomes by reason.
type QueryStats struct {
	Matched    int64 `json:"matched"`
	EmptyQuery int64 `json:"empty_query"`
	EmptyStore int64 `json:"empty_store"`
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Records int        `json:"records"`
	Dim     int        `json:"dim"`
	Index   string     `json:"index"`
	Queries QueryStats `json:"queries"`
}
