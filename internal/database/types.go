package database

import (
	"time"
)

// StoredIdentity is an identity row as persisted by a backend.
// Blob holds the codec-encoded embedding.
type StoredIdentity struct {
	ID         int64
	Label      string
	Blob       []byte
	EnrolledAt time.Time
}
