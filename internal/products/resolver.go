// Package products resolves purchased product names to their configured
// command templates. The mapping lives in an external source (a JSON file in
// production) and is cached in memory: the cache is populated lazily on the
// first lookup and invalidated only by an explicit Reload, which the admin
// API exposes.
package products

import (
	"context"
	"log/slog"
	"sync"

	"shopbridge/internal/types"
)

// Source is the backing configuration for the product mapping.
type Source interface {
	// Load reads the full mapping from the backing configuration.
	Load(ctx context.Context) (types.ProductMapping, error)
}

// Resolver performs exact-match lookups against the cached product mapping.
// Lookups are case-sensitive; there is no fuzzy matching by design, because
// command execution on the wrong package is worse than a skipped item.
type Resolver struct {
	source Source
	logger *slog.Logger

	mu     sync.RWMutex
	cache  types.ProductMapping
	loaded bool
}

// NewResolver creates a Resolver over the given source. The cache starts
// empty and is filled on first use.
func NewResolver(source Source, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{source: source, logger: logger}
}

// Resolve returns the ordered command templates for the product, or
// found=false when the product has no mapping. An unmapped product is not an
// error: shops routinely sell items (merch, gift cards) that grant nothing
// in-game.
func (r *Resolver) Resolve(ctx context.Context, productName string) (commands []string, found bool, err error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	pkg, ok := r.cache[productName]
	if !ok {
		return nil, false, nil
	}
	return pkg.Commands, true, nil
}

// Mapping returns a copy of the full cached mapping, loading it first if
// needed. The admin API uses this for read-only listing.
func (r *Resolver) Mapping(ctx context.Context) (types.ProductMapping, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(types.ProductMapping, len(r.cache))
	for name, pkg := range r.cache {
		out[name] = pkg
	}
	return out, nil
}

// Reload discards the cache and re-reads the source. It is the only way the
// cache is invalidated; the ingest pass never triggers an implicit refresh.
func (r *Resolver) Reload(ctx context.Context) error {
	mapping, err := r.source.Load(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = mapping
	r.loaded = true
	r.logger.InfoContext(ctx, "product mapping reloaded",
		"products", len(mapping),
	)
	return nil
}

// ensureLoaded populates the cache on first use.
func (r *Resolver) ensureLoaded(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}
	return r.Reload(ctx)
}
