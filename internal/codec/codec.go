// Package codec converts face embeddings to and from their durable byte form.
//
// The encoding is a flat little-endian sequence of IEEE 754 float32 values with
// no header; the vector length is derived from the blob size on decode.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ValueSize is the number of bytes used per embedding component.
const ValueSize = 4

// ErrMalformed is returned when stored bytes cannot be decoded into an embedding.
var ErrMalformed = errors.New("codec: malformed embedding")

// EncodedLen returns the blob size for an embedding of dim components.
func EncodedLen(dim int) int {
	return dim * ValueSize
}

// Encode serializes an embedding. Decode(Encode(v), len(v)) returns v bit for bit.
func Encode(v []float32) []byte {
	buf := make([]byte, len(v)*ValueSize)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*ValueSize:], math.Float32bits(f))
	}
	return buf
}

// Decode deserializes a blob produced by Encode.
// When dim is positive the decoded length must equal dim.
func Decode(b []byte, dim int) ([]float32, error) {
	if len(b)%ValueSize != 0 {
		return nil, fmt.Errorf("%w: blob length %d is not a multiple of %d", ErrMalformed, len(b), ValueSize)
	}
	n := len(b) / ValueSize
	if dim > 0 && n != dim {
		return nil, fmt.Errorf("%w: got %d values, expected %d", ErrMalformed, n, dim)
	}

	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*ValueSize:]))
	}
	return v, nil
}
