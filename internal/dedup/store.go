// Package dedup provides the durable deduplication store that records which
// storefront orders have already triggered command execution. Two backends
// are supported: a file-backed JSON store and a PostgreSQL store with a
// unique index on the external order id. Both implement insert-if-absent
// semantics so the ingestor's separate existence check remains a fast-path
// optimization rather than the correctness boundary.
package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"shopbridge/internal/config"
	"shopbridge/internal/types"
)

// Store is the contract the ingestion pipeline depends on.
type Store interface {
	// Exists reports whether an order with the given external id has already
	// been processed. A transient backend failure returns an error; callers
	// decide how to degrade.
	Exists(ctx context.Context, externalOrderID string) (bool, error)

	// Insert durably records a resolved order. It is atomic insert-if-absent
	// keyed on the external order id: the first insert for an order wins and
	// returns true, later inserts (further line items, or a racing ingest
	// pass) return false without error.
	Insert(ctx context.Context, order types.ResolvedOrder) (bool, error)

	// Close releases backend resources.
	Close()
}

// Open constructs the store selected by cfg.Driver. When the postgres driver
// fails to initialize (unreachable server, bad credentials, schema failure),
// Open falls back to the file-backed store and logs the downgrade, matching
// the operational expectation that a storefront bridge keeps running on a
// degraded store rather than dropping purchases.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	if cfg.Driver == "postgres" {
		store, err := openPostgres(ctx, cfg, logger)
		if err == nil {
			return store, nil
		}
		logger.WarnContext(ctx, "postgres dedup store unavailable, falling back to file store",
			"error", err,
			"orders_file", cfg.OrdersFile,
		)
	}
	return OpenFileStore(cfg.OrdersFile, logger)
}

// openPostgres builds the pgx pool, verifies connectivity, and ensures the
// schema before handing the pool to the store.
func openPostgres(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL.Unmask())
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "invalid database url", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create connection pool", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to ping database", err)
	}

	store := NewPostgresStore(pool, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}
