package dedup

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"shopbridge/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// The store accepts this so the same code works inside or outside a
// transaction, and so tests can substitute a mock.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the PostgreSQL-backed deduplication store. The
// processed_orders table carries a unique index on external_order_id, and
// Insert relies on ON CONFLICT DO NOTHING, so insert-if-absent is enforced
// by the database even when two ingest passes overlap.
type PostgresStore struct {
	db     DBTX
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: pool, pool: pool, logger: logger}
}

// NewPostgresStoreWithDB creates a store backed by an arbitrary DBTX.
// Used by tests and transactional callers; Close is a no-op in that case.
func NewPostgresStoreWithDB(db DBTX, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// EnsureSchema creates the processed_orders table and its unique index if
// they do not exist. Run once at startup before the store is used.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS processed_orders (
			id UUID PRIMARY KEY,
			external_order_id TEXT NOT NULL,
			account_identity TEXT NOT NULL,
			item_name TEXT NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_processed_orders_external
			ON processed_orders (external_order_id);`
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to ensure processed_orders schema", err)
	}
	return nil
}

// Exists reports whether the external order id has already been recorded.
func (s *PostgresStore) Exists(ctx context.Context, externalOrderID string) (bool, error) {
	var one int
	err := s.db.QueryRow(ctx,
		`SELECT 1 FROM processed_orders WHERE external_order_id = $1 LIMIT 1`,
		externalOrderID,
	).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check processed order", err)
	}
	return true, nil
}

// Insert records the resolved order unless its external order id is already
// present. The unique index makes the conditional insert atomic; the
// returned bool reports whether this call created the record.
func (s *PostgresStore) Insert(ctx context.Context, order types.ResolvedOrder) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO processed_orders (id, external_order_id, account_identity, item_name, processed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (external_order_id) DO NOTHING`,
		order.ID, order.ExternalOrderID, order.AccountIdentity, order.ItemName, order.ProcessedAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert processed order", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Close releases the underlying pool, if the store owns one.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
