package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/identity"
)

func testConfig(t *testing.T, strategy string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Database.URL = "sqlite://" + filepath.Join(dir, "faces.db")
	cfg.Embedding.Dim = 2
	cfg.Index.Strategy = strategy
	cfg.Index.HNSWIndexPath = filepath.Join(dir, "faces.hnsw")
	return &cfg
}

func TestNewIndex(t *testing.T) {
	tests := []struct {
		strategy string
		name     string
		wantErr  bool
	}{
		{"", "linear", false},
		{config.IndexLinear, "linear", false},
		{config.IndexHNSW, "hnsw", false},
		{"annoy", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			idx, h, err := newIndex(&config.IndexConfig{Strategy: tt.strategy})
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if idx.Name() != tt.name {
				t.Errorf("expected %s index, got %s", tt.name, idx.Name())
			}
			if (h != nil) != (tt.name == "hnsw") {
				t.Errorf("unexpected HNSW handle %v", h)
			}
		})
	}
}

func TestOpenStore_PersistsAcrossOpens(t *testing.T) {
	cfg := testConfig(t, config.IndexLinear)
	ctx := context.Background()

	first, err := openStore(ctx, cfg)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	if _, err := first.store.Enroll(ctx, "alice", identity.Embedding{1, 0}); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	first.Close()

	second, err := openStore(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	res, err := second.store.FindNearest(ctx, identity.Embedding{1, 0.1})
	if err != nil {
		t.Fatalf("FindNearest: %v", err)
	}
	if !res.Matched || *res.Label != "alice" {
		t.Errorf("expected alice after reopen, got %+v", res)
	}
}

func TestOpenStore_ReusesSavedHNSWIndex(t *testing.T) {
	cfg := testConfig(t, config.IndexHNSW)
	ctx := context.Background()

	first, err := openStore(ctx, cfg)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	for i, label := range []string{"a", "b", "c"} {
		if _, err := first.store.Enroll(ctx, label, identity.Embedding{float32(i), 0}); err != nil {
			t.Fatalf("Enroll: %v", err)
		}
	}
	if err := first.saveHNSWIndex(cfg.Index.HNSWIndexPath); err != nil {
		t.Fatalf("saveHNSWIndex: %v", err)
	}
	first.Close()

	second, err := openStore(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !second.hnsw.FromSnapshot() {
		t.Error("expected saved index to be reused")
	}
	if _, err := second.store.Enroll(ctx, "d", identity.Embedding{9, 9}); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	second.Close()

	// The file no longer matches the database.
	third, err := openStore(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer third.Close()
	if third.hnsw.FromSnapshot() {
		t.Error("stale index must be rebuilt")
	}
	if third.store.Len() != 4 {
		t.Errorf("expected 4 identities, got %d", third.store.Len())
	}
}

func TestOpenStore_UnknownBackend(t *testing.T) {
	cfg := testConfig(t, config.IndexLinear)
	cfg.Database.URL = "cassandra://localhost"

	if _, err := openStore(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown backend")
	}
}
