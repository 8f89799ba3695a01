package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kozaktomas/face-id/internal/codec"
	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/database"
)

func newInMemory(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestOpen_RequiresDir(t *testing.T) {
	if _, err := Open(Options{}); err == nil {
		t.Error("expected error without Dir")
	}
}

func TestRepository_InsertListCount(t *testing.T) {
	repo := newInMemory(t)
	ctx := context.Background()

	var ids []int64
	for i, label := range []string{"alice", "bob", "carol"} {
		row, err := repo.Insert(ctx, label, codec.Encode([]float32{float32(i), 1}))
		if err != nil {
			t.Fatalf("Insert %s: %v", label, err)
		}
		ids = append(ids, row.ID)
	}
	if ids[0] < 1 || ids[1] <= ids[0] || ids[2] <= ids[1] {
		t.Errorf("expected increasing positive IDs, got %v", ids)
	}

	rows, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if row.ID != ids[i] {
			t.Errorf("row %d: expected ID %d, got %d", i, ids[i], row.ID)
		}
		emb, err := codec.Decode(row.Blob, 2)
		if err != nil {
			t.Fatalf("decode row %d: %v", i, err)
		}
		if emb[0] != float32(i) {
			t.Errorf("row %d: expected first value %d, got %v", i, i, emb[0])
		}
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3, got %d", count)
	}
}

func TestRepository_Duplicate(t *testing.T) {
	repo := newInMemory(t)
	ctx := context.Background()

	if _, err := repo.Insert(ctx, "alice", codec.Encode([]float32{1})); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	_, err := repo.Insert(ctx, "alice", codec.Encode([]float32{2}))
	if !errors.Is(err, database.ErrDuplicateLabel) {
		t.Fatalf("expected ErrDuplicateLabel, got %v", err)
	}
	if count, _ := repo.Count(ctx); count != 1 {
		t.Errorf("expected 1 identity, got %d", count)
	}
}

func TestRepository_ConcurrentSameLabel(t *testing.T) {
	repo := newInMemory(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var ok, dup atomic.Int32
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Insert(ctx, "same", codec.Encode([]float32{1}))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, database.ErrDuplicateLabel):
				dup.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 {
		t.Errorf("expected exactly one successful insert, got %d", ok.Load())
	}
	if count, _ := repo.Count(ctx); count != 1 {
		t.Errorf("expected 1 identity, got %d", count)
	}
}

func TestRepository_ReopenKeepsRowsAndIDs(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var last int64
	for i := range 3 {
		row, err := repo.Insert(ctx, fmt.Sprintf("p%d", i), codec.Encode([]float32{1}))
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		last = row.ID
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := database.Open(ctx, &config.DatabaseConfig{URL: "badger://" + dir})
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	defer reopened.Close()

	rows, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows after reopen, got %d", len(rows))
	}
	row, err := reopened.Insert(ctx, "p3", codec.Encode([]float32{1}))
	if err != nil {
		t.Fatalf("Insert after reopen: %v", err)
	}
	if row.ID <= last {
		t.Errorf("expected ID greater than %d, got %d", last, row.ID)
	}
}
