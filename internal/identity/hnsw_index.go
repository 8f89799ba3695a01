package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-id/internal/codec"
)

// HNSW defaults for face embeddings.
const (
	// DefaultHNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	DefaultHNSWMaxNeighbors = 16

	// DefaultHNSWEfSearch is the search candidate pool size.
	DefaultHNSWEfSearch = 100

	// DefaultHNSWCandidates is how many graph neighbors are re-ranked exactly per query.
	DefaultHNSWCandidates = 10
)

// Version 2 keys graph nodes by distinct embedding instead of by record.
const hnswMetadataVersion = 2

// HNSWConfig tunes an HNSWIndex. Zero fields take the defaults above.
type HNSWConfig struct {
	M          int
	EfSearch   int
	Candidates int
}

func (c HNSWConfig) withDefaults() HNSWConfig {
	if c.M <= 0 {
		c.M = DefaultHNSWMaxNeighbors
	}
	if c.EfSearch <= 0 {
		c.EfSearch = DefaultHNSWEfSearch
	}
	if c.Candidates <= 0 {
		c.Candidates = DefaultHNSWCandidates
	}
	return c
}

// HNSWIndexMetadata is written next to a saved graph to detect stale files.
type HNSWIndexMetadata struct {
	Count     int       `json:"count"`
	Nodes     int       `json:"nodes"`
	MaxID     int64     `json:"max_id"`
	Dim       int       `json:"dim"`
	BuildTime time.Time `json:"build_time"`
	Version   int       `json:"version"`
}

// hnswGroup is one graph node: every record sharing a byte-identical
// embedding. lowest is the ID a match on this node resolves to.
type hnswGroup struct {
	vec    Embedding
	lowest int64
}

// HNSWIndex finds candidates with an HNSW graph (Euclidean distance) and
// re-ranks them exactly. Records with identical embeddings share one node
// that resolves to their lowest ID, and when every retrieved candidate ties
// the index falls back to an exact scan, so equal distances always go to the
// lowest ID. Recall is approximate: the true nearest record can be missed on
// large stores.
type HNSWIndex struct {
	cfg    HNSWConfig
	graph  *hnsw.Graph[int64]
	groups map[int64]*hnswGroup // graph key -> group
	keys   map[string]int64     // encoded embedding -> graph key
	count  int
	maxID  int64
	dim    int

	snapshot *hnswSnapshot
	adopted  bool
}

type hnswSnapshot struct {
	graph *hnsw.Graph[int64]
	meta  HNSWIndexMetadata
}

// NewHNSWIndex creates an empty HNSW index.
func NewHNSWIndex(cfg HNSWConfig) *HNSWIndex {
	h := &HNSWIndex{cfg: cfg.withDefaults()}
	h.reset(h.newGraph())
	return h
}

func (h *HNSWIndex) newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = h.cfg.M
	g.Ml = 1.0 / float64(h.cfg.M) // Standard HNSW formula
	g.EfSearch = h.cfg.EfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

func (h *HNSWIndex) reset(g *hnsw.Graph[int64]) {
	h.graph = g
	h.groups = make(map[int64]*hnswGroup)
	h.keys = make(map[string]int64)
	h.count = 0
	h.maxID = 0
}

func (h *HNSWIndex) Name() string { return "hnsw" }

func (h *HNSWIndex) Add(rec Record) {
	key := string(codec.Encode(rec.Embedding))
	if node, ok := h.keys[key]; ok {
		g := h.groups[node]
		g.lowest = min(g.lowest, rec.ID)
	} else {
		h.keys[key] = rec.ID
		h.groups[rec.ID] = &hnswGroup{vec: rec.Embedding, lowest: rec.ID}
		h.graph.Add(hnsw.MakeNode(rec.ID, rec.Embedding))
	}
	h.count++
	h.maxID = max(h.maxID, rec.ID)
	h.dim = len(rec.Embedding)
}

// Rebuild adopts a graph loaded by LoadFile when it matches records,
// otherwise builds a new graph from scratch.
func (h *HNSWIndex) Rebuild(records []Record) {
	snap := h.snapshot
	h.snapshot = nil
	h.adopted = false

	if snap != nil && snapshotMatches(snap.meta, records) && h.adopt(snap.graph, records) {
		h.adopted = true
		return
	}

	h.reset(h.newGraph())
	for _, rec := range records {
		h.Add(rec)
	}
}

func snapshotMatches(meta HNSWIndexMetadata, records []Record) bool {
	if meta.Version != hnswMetadataVersion || meta.Count != len(records) {
		return false
	}
	var maxID int64
	for _, rec := range records {
		maxID = max(maxID, rec.ID)
		if len(rec.Embedding) != meta.Dim {
			return false
		}
	}
	return maxID == meta.MaxID
}

// adopt rebuilds the group table for a loaded graph. Every graph key must be
// a record holding exactly that vector, and every record must map to a node.
func (h *HNSWIndex) adopt(g *hnsw.Graph[int64], records []Record) bool {
	groups := make(map[int64]*hnswGroup)
	keys := make(map[string]int64)
	for _, rec := range records {
		vec, ok := g.Lookup(rec.ID)
		if !ok {
			continue
		}
		if !slices.Equal(vec, rec.Embedding) {
			return false
		}
		key := string(codec.Encode(rec.Embedding))
		if _, dup := keys[key]; dup {
			return false
		}
		keys[key] = rec.ID
		groups[rec.ID] = &hnswGroup{vec: rec.Embedding, lowest: rec.ID}
	}
	if len(groups) != g.Len() {
		return false
	}

	var maxID int64
	for _, rec := range records {
		node, ok := keys[string(codec.Encode(rec.Embedding))]
		if !ok {
			return false
		}
		grp := groups[node]
		grp.lowest = min(grp.lowest, rec.ID)
		maxID = max(maxID, rec.ID)
	}

	h.graph = g
	h.groups = groups
	h.keys = keys
	h.count = len(records)
	h.maxID = maxID
	if len(records) > 0 {
		h.dim = len(records[0].Embedding)
	}
	return true
}

func (h *HNSWIndex) Nearest(query Embedding) (Candidate, bool) {
	if h.graph.Len() == 0 {
		return Candidate{}, false
	}

	neighbors := h.graph.Search(query, h.cfg.Candidates)
	if len(neighbors) == 0 {
		return Candidate{}, false
	}

	var best Candidate
	tied := true
	for i, n := range neighbors {
		c := Candidate{ID: h.groups[n.Key].lowest, Distance: Distance(query, n.Value)}
		if i > 0 && c.Distance != best.Distance {
			tied = false
		}
		if i == 0 || closer(c, best) {
			best = c
		}
	}

	// Equidistant nodes may continue past the candidate window.
	if tied && len(neighbors) > 1 && len(h.groups) > len(neighbors) {
		return h.scan(query), true
	}
	return best, true
}

// scan is the exact fallback over distinct embeddings.
func (h *HNSWIndex) scan(query Embedding) Candidate {
	var best Candidate
	first := true
	for _, g := range h.groups {
		c := Candidate{ID: g.lowest, Distance: Distance(query, g.vec)}
		if first || closer(c, best) {
			best = c
			first = false
		}
	}
	return best
}

func (h *HNSWIndex) Len() int {
	return h.count
}

// FromSnapshot reports whether the last Rebuild reused a graph read from disk.
func (h *HNSWIndex) FromSnapshot() bool {
	return h.adopted
}

// Save persists the graph to path and its metadata to path+".meta".
// An empty index removes both files.
func (h *HNSWIndex) Save(path string) error {
	if path == "" {
		return nil
	}

	if h.graph.Len() == 0 {
		// Best-effort cleanup.
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if err := h.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing HNSW index file: %w", err)
	}

	meta := HNSWIndexMetadata{
		Count:     h.count,
		Nodes:     h.graph.Len(),
		MaxID:     h.maxID,
		Dim:       h.dim,
		BuildTime: time.Now().UTC(),
		Version:   hnswMetadataVersion,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", data, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadFile reads a graph saved by Save. The graph is only used if the next
// Rebuild sees matching records. A missing file is not an error.
func (h *HNSWIndex) LoadFile(path string) error {
	if path == "" {
		return nil
	}

	meta, err := LoadHNSWMetadata(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open HNSW index: %w", err)
	}
	defer f.Close()

	g := h.newGraph()
	if err := g.Import(f); err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	h.snapshot = &hnswSnapshot{graph: g, meta: meta}
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var meta HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return meta, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return meta, nil
}
