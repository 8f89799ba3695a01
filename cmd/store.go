package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/identity"
)

// openedStore bundles a loaded store with the backend it was loaded from.
type openedStore struct {
	store *identity.Store
	repo  database.IdentityRepository
	hnsw  *identity.HNSWIndex // nil for the linear strategy
}

func (o *openedStore) Close() error {
	return o.repo.Close()
}

// newIndex builds the index selected by INDEX_STRATEGY.
func newIndex(cfg *config.IndexConfig) (identity.Index, *identity.HNSWIndex, error) {
	switch cfg.Strategy {
	case "", config.IndexLinear:
		return identity.NewLinearIndex(), nil, nil
	case config.IndexHNSW:
		h := identity.NewHNSWIndex(identity.HNSWConfig{
			M:          cfg.HNSWM,
			EfSearch:   cfg.HNSWEfSearch,
			Candidates: cfg.HNSWCandidates,
		})
		return h, h, nil
	default:
		return nil, nil, fmt.Errorf("unknown INDEX_STRATEGY %q (expected %s or %s)",
			cfg.Strategy, config.IndexLinear, config.IndexHNSW)
	}
}

// openStore opens the configured backend and loads every stored identity.
// With the HNSW strategy a saved graph at HNSW_INDEX_PATH is reused when it
// matches the stored records.
func openStore(ctx context.Context, cfg *config.Config) (*openedStore, error) {
	index, h, err := newIndex(&cfg.Index)
	if err != nil {
		return nil, err
	}
	if h != nil && cfg.Index.HNSWIndexPath != "" {
		if err := h.LoadFile(cfg.Index.HNSWIndexPath); err != nil {
			fmt.Printf("Warning: ignoring HNSW index file: %v\n", err)
		}
	}

	repo, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	store, err := identity.New(cfg.Embedding.Dim,
		identity.WithRepository(repo),
		identity.WithIndex(index),
	)
	if err != nil {
		repo.Close()
		return nil, err
	}
	if err := store.Load(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("loading identities: %w", err)
	}

	return &openedStore{store: store, repo: repo, hnsw: h}, nil
}

// saveHNSWIndex persists the HNSW graph if one is configured.
func (o *openedStore) saveHNSWIndex(path string) error {
	if o.hnsw == nil || path == "" {
		return nil
	}
	return o.store.WithIndexLocked(func(identity.Index) error {
		return o.hnsw.Save(path)
	})
}
