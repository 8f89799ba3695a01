package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-id/internal/identity"
)

// parseEmbedding parses a comma-separated list of floats.
func parseEmbedding(s string) (identity.Embedding, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("embedding is empty")
	}
	parts := strings.Split(s, ",")
	emb := make(identity.Embedding, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("embedding value %d: %w", i, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("embedding value %d: %q is not a finite number", i, p)
		}
		emb[i] = float32(f)
	}
	return emb, nil
}

// readEmbeddingFile reads a JSON array of floats.
func readEmbeddingFile(path string) (identity.Embedding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading embedding file: %w", err)
	}
	var emb identity.Embedding
	if err := json.Unmarshal(data, &emb); err != nil {
		return nil, fmt.Errorf("parsing embedding file %s: %w", path, err)
	}
	if emb == nil {
		return nil, fmt.Errorf("embedding file %s holds no embedding", path)
	}
	return emb, nil
}

// embeddingFromFlags reads --embedding or --file; exactly one must be set.
func embeddingFromFlags(inline, file string) (identity.Embedding, error) {
	switch {
	case inline != "" && file != "":
		return nil, errors.New("use either --embedding or --file, not both")
	case inline != "":
		return parseEmbedding(inline)
	case file != "":
		return readEmbeddingFile(file)
	default:
		return nil, errors.New("--embedding or --file is required")
	}
}
