package identity

import "errors"

var (
	// ErrDimensionMismatch is returned when an embedding length differs from the store dimension.
	ErrDimensionMismatch = errors.New("identity: embedding dimension mismatch")

	// ErrDuplicateLabel is returned when enrolling a label that already names a live record.
	ErrDuplicateLabel = errors.New("identity: label already enrolled")

	// ErrEmptyLabel is returned when the label is empty after canonicalization.
	ErrEmptyLabel = errors.New("identity: label is required")

	// ErrLabelTooLong is returned when a label exceeds MaxLabelLength characters.
	ErrLabelTooLong = errors.New("identity: label too long")

	// ErrInvalidEmbedding is returned when an embedding holds NaN or infinite values.
	ErrInvalidEmbedding = errors.New("identity: embedding values must be finite")

	// ErrAlreadyPopulated is returned by Load when the store already holds records.
	ErrAlreadyPopulated = errors.New("identity: store already populated")
)
