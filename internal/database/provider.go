package database

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kozaktomas/face-id/internal/config"
)

// Opener opens a repository for a DATABASE_URL whose scheme it was registered under.
// dsn is the URL with the "scheme://" prefix removed.
type Opener func(ctx context.Context, dsn string, cfg *config.DatabaseConfig) (IdentityRepository, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Opener)
)

// RegisterBackend registers a repository constructor for a URL scheme.
// This is called from the backend packages' init to avoid import cycles.
func RegisterBackend(scheme string, open Opener) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[scheme] = open
}

// Backends returns the registered URL schemes in sorted order.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	schemes := make([]string, 0, len(backends))
	for s := range backends {
		schemes = append(schemes, s)
	}
	slices.Sort(schemes)
	return schemes
}

// SplitURL returns the scheme and the remainder of a DATABASE_URL.
func SplitURL(url string) (scheme, dsn string, err error) {
	scheme, dsn, ok := strings.Cut(url, "://")
	if !ok || scheme == "" {
		return "", "", fmt.Errorf("invalid DATABASE_URL %q: expected scheme://...", url)
	}
	return strings.ToLower(scheme), dsn, nil
}

// Open opens the repository selected by cfg.URL.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (IdentityRepository, error) {
	scheme, dsn, err := SplitURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	backendsMu.RLock()
	open, ok := backends[scheme]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no database backend registered for %q (available: %s)",
			scheme, strings.Join(Backends(), ", "))
	}

	repo, err := open(ctx, dsn, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s backend: %w", scheme, err)
	}
	return repo, nil
}
