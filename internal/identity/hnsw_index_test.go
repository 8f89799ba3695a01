package identity

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func randomRecords(n, dim int, seed int64) []Record {
	rng := rand.New(rand.NewSource(seed))
	records := make([]Record, n)
	for i := range records {
		emb := make(Embedding, dim)
		for j := range emb {
			emb[j] = rng.Float32()*2 - 1
		}
		records[i] = Record{ID: int64(i + 1), Label: fmt.Sprintf("p%d", i+1), Embedding: emb}
	}
	return records
}

func TestHNSWIndex_Empty(t *testing.T) {
	idx := NewHNSWIndex(HNSWConfig{})
	if _, ok := idx.Nearest(Embedding{1, 2}); ok {
		t.Error("empty index must report no candidate")
	}
	if idx.Name() != "hnsw" {
		t.Errorf("unexpected name %q", idx.Name())
	}
}

func TestHNSWIndex_AgreesWithLinearOnSmallStore(t *testing.T) {
	records := randomRecords(50, 8, 1)

	linear := NewLinearIndex()
	linear.Rebuild(records)
	// Candidates cover the whole store, so the exact re-rank sees every record.
	approx := NewHNSWIndex(HNSWConfig{Candidates: len(records), EfSearch: 200})
	approx.Rebuild(records)

	if approx.Len() != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), approx.Len())
	}

	for _, q := range randomRecords(20, 8, 2) {
		want, _ := linear.Nearest(q.Embedding)
		got, ok := approx.Nearest(q.Embedding)
		if !ok {
			t.Fatal("expected a candidate")
		}
		if got != want {
			t.Errorf("query %s: hnsw %+v, linear %+v", q.Label, got, want)
		}
	}
}

func TestHNSWIndex_TieBreakAmongCandidates(t *testing.T) {
	idx := NewHNSWIndex(HNSWConfig{})
	emb := Embedding{0.1, 0.2, 0.3}
	idx.Add(Record{ID: 2, Embedding: emb})
	idx.Add(Record{ID: 1, Embedding: emb})
	idx.Add(Record{ID: 3, Embedding: Embedding{5, 5, 5}})

	c, ok := idx.Nearest(emb)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if c.ID != 1 || c.Distance != 0 {
		t.Errorf("expected (1, 0), got %+v", c)
	}
}

func TestHNSWIndex_DuplicatesResolveToLowestID(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			target := randomRecords(1, 8, seed*1000)[0].Embedding
			noise := randomRecords(500, 8, seed)

			s := newTestStore(t, 8, WithIndex(NewHNSWIndex(HNSWConfig{})))
			mustEnroll(t, s, "target", target)
			for _, rec := range noise {
				mustEnroll(t, s, rec.Label, rec.Embedding)
			}
			for i := range 30 {
				mustEnroll(t, s, fmt.Sprintf("copy-%d", i), target)
			}

			res, err := s.FindNearest(context.Background(), target)
			if err != nil {
				t.Fatalf("FindNearest: %v", err)
			}
			if *res.ID != 1 || *res.Distance != 0 {
				t.Errorf("expected id 1 at distance 0, got id %d at %v", *res.ID, *res.Distance)
			}
		})
	}
}

func TestHNSWIndex_EquidistantBeyondCandidates(t *testing.T) {
	const dim = 20
	// Unit vectors along every axis in both directions, all exactly 1 from the origin.
	var vecs []Embedding
	for i := range dim {
		for _, sign := range []float32{1, -1} {
			v := make(Embedding, dim)
			v[i] = sign
			vecs = append(vecs, v)
		}
	}
	rng := rand.New(rand.NewSource(7))
	ids := rng.Perm(len(vecs))

	idx := NewHNSWIndex(HNSWConfig{Candidates: 5})
	for i, v := range vecs {
		idx.Add(Record{ID: int64(ids[i] + 1), Embedding: v})
	}

	c, ok := idx.Nearest(make(Embedding, dim))
	if !ok {
		t.Fatal("expected a candidate")
	}
	if c.ID != 1 || c.Distance != 1 {
		t.Errorf("expected (1, 1), got %+v", c)
	}
}

func TestHNSWIndex_SnapshotKeepsDuplicateGroups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.hnsw")
	records := randomRecords(20, 4, 5)
	dup := records[3].Embedding
	records = append(records,
		Record{ID: 21, Label: "dup-a", Embedding: dup},
		Record{ID: 22, Label: "dup-b", Embedding: dup},
	)

	built := NewHNSWIndex(HNSWConfig{})
	built.Rebuild(records)
	if built.Len() != 22 {
		t.Fatalf("expected 22 records, got %d", built.Len())
	}
	if err := built.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		t.Fatalf("LoadHNSWMetadata: %v", err)
	}
	if meta.Count != 22 || meta.Nodes != 20 {
		t.Errorf("unexpected metadata %+v", meta)
	}

	loaded := NewHNSWIndex(HNSWConfig{})
	if err := loaded.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	loaded.Rebuild(records)
	if !loaded.FromSnapshot() {
		t.Fatal("expected snapshot to be adopted")
	}
	c, ok := loaded.Nearest(dup)
	if !ok || c.ID != 4 || c.Distance != 0 {
		t.Errorf("expected (4, 0), got %+v ok=%v", c, ok)
	}
}

func TestHNSWIndex_SnapshotWithForeignKeysIsRebuilt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.hnsw")
	records := randomRecords(10, 4, 9)

	built := NewHNSWIndex(HNSWConfig{})
	built.Rebuild(records)
	if err := built.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Same count, max ID and dim, but record 5 now holds a different vector.
	changed := slices.Clone(records)
	changed[4] = Record{ID: 5, Label: "p5", Embedding: Embedding{9, 9, 9, 9}}

	loaded := NewHNSWIndex(HNSWConfig{})
	if err := loaded.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	loaded.Rebuild(changed)
	if loaded.FromSnapshot() {
		t.Error("snapshot with a different vector must not be adopted")
	}
	c, _ := loaded.Nearest(Embedding{9, 9, 9, 9})
	if c.ID != 5 || c.Distance != 0 {
		t.Errorf("expected (5, 0), got %+v", c)
	}
}

func TestHNSWIndex_SaveAndAdoptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.hnsw")
	records := randomRecords(30, 4, 3)

	built := NewHNSWIndex(HNSWConfig{})
	built.Rebuild(records)
	if err := built.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	meta, err := LoadHNSWMetadata(path)
	if err != nil {
		t.Fatalf("LoadHNSWMetadata: %v", err)
	}
	if meta.Count != 30 || meta.MaxID != 30 || meta.Dim != 4 {
		t.Errorf("unexpected metadata %+v", meta)
	}

	loaded := NewHNSWIndex(HNSWConfig{})
	if err := loaded.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	loaded.Rebuild(records)
	if !loaded.FromSnapshot() {
		t.Error("expected matching snapshot to be adopted")
	}
	if loaded.Len() != 30 {
		t.Errorf("expected 30 records, got %d", loaded.Len())
	}

	// A stale snapshot is ignored and the graph is rebuilt.
	stale := NewHNSWIndex(HNSWConfig{})
	if err := stale.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	stale.Rebuild(records[:10])
	if stale.FromSnapshot() {
		t.Error("stale snapshot must not be adopted")
	}
	if stale.Len() != 10 {
		t.Errorf("expected 10 records after rebuild, got %d", stale.Len())
	}
}

func TestHNSWIndex_LoadMissingFile(t *testing.T) {
	idx := NewHNSWIndex(HNSWConfig{})
	if err := idx.LoadFile(filepath.Join(t.TempDir(), "missing.hnsw")); err != nil {
		t.Errorf("missing file should not be an error, got %v", err)
	}
	idx.Rebuild(nil)
	if idx.FromSnapshot() {
		t.Error("nothing to adopt")
	}
}

func TestHNSWIndex_SaveEmptyRemovesFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.hnsw")
	if err := os.WriteFile(path, []byte("old"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+".meta", []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := NewHNSWIndex(HNSWConfig{}).Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected index file to be removed")
	}
	if _, err := os.Stat(path + ".meta"); !os.IsNotExist(err) {
		t.Error("expected metadata file to be removed")
	}
}

func TestStore_WithHNSWIndex(t *testing.T) {
	s := newTestStore(t, 2, WithIndex(NewHNSWIndex(HNSWConfig{})))
	mustEnroll(t, s, "A", Embedding{1, 1})
	mustEnroll(t, s, "B", Embedding{1, 1})
	mustEnroll(t, s, "C", Embedding{-4, 7})

	res, err := s.FindNearest(context.Background(), Embedding{1, 1})
	if err != nil {
		t.Fatalf("FindNearest: %v", err)
	}
	if *res.Label != "A" {
		t.Errorf("expected A, got %s", *res.Label)
	}
	if s.Stats().Index != "hnsw" {
		t.Errorf("expected hnsw index in stats")
	}
}
