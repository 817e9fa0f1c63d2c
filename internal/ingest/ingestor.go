// Package ingest implements the order-ingestion pipeline: identity
// extraction from heterogeneous payload shapes, product-to-command
// resolution, deduplication, and idempotent command execution.
//
// The Ingestor is designed for a single serialized ingest pass: the poller
// hands it one fetched batch at a time, and all mutable state it owns (the
// recency cache) is touched only from that pass. The deduplication store is
// the sole shared resource and provides its own atomicity.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shopbridge/internal/types"
)

// RecencyTTL is how long an order id is kept in the in-memory recency cache
// after processing. The cache only bounds memory; the durable store check is
// never time-limited.
const RecencyTTL = 30 * 24 * time.Hour

// DedupStore is the subset of the deduplication store the ingestor needs.
type DedupStore interface {
	Exists(ctx context.Context, externalOrderID string) (bool, error)
	Insert(ctx context.Context, order types.ResolvedOrder) (bool, error)
}

// ProductResolver maps a product display name to its ordered command
// templates. found=false means the product has no mapping, which is not an
// error.
type ProductResolver interface {
	Resolve(ctx context.Context, productName string) (commands []string, found bool, err error)
}

// ActionExecutor substitutes and dispatches command templates, returning the
// number of commands successfully dispatched.
type ActionExecutor interface {
	Execute(ctx context.Context, templates []string, identity string, quantity int) int
}

// BatchResult summarizes one ingest pass for logging and metrics.
type BatchResult struct {
	OrdersSeen        int
	OrdersProcessed   int
	OrdersDuplicate   int
	OrdersSkipped     int
	ItemsSkipped      int
	ActionsDispatched int
}

// Ingestor drives the per-order pipeline over fetched batches.
type Ingestor struct {
	store    DedupStore
	products ProductResolver
	executor ActionExecutor
	notifier types.NotificationSink
	metrics  Emitter
	clock    types.Clock
	logger   *slog.Logger

	// recency tracks when each order id was processed in this process's
	// lifetime, used only to bound its own size via evictStale.
	recency map[string]time.Time
}

// IngestorConfig holds the dependencies for constructing an Ingestor.
type IngestorConfig struct {
	Store    DedupStore
	Products ProductResolver
	Executor ActionExecutor
	Notifier types.NotificationSink
	Metrics  Emitter
	Clock    types.Clock
	Logger   *slog.Logger
}

// NewIngestor creates an Ingestor with the given dependencies. Notifier and
// Metrics may be nil and default to no-ops; Clock defaults to real time.
func NewIngestor(cfg IngestorConfig) *Ingestor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NopEmitter{}
	}
	return &Ingestor{
		store:    cfg.Store,
		products: cfg.Products,
		executor: cfg.Executor,
		notifier: cfg.Notifier,
		metrics:  metrics,
		clock:    clock,
		logger:   logger,
		recency:  make(map[string]time.Time),
	}
}

// IngestBatch parses and processes one raw fetch response. Batch-level
// payload problems (API-reported errors, missing orders array) abort the
// whole batch with no partial processing. Individual order failures are
// isolated: one malformed order never aborts the rest of the batch.
func (ing *Ingestor) IngestBatch(ctx context.Context, raw []byte) (BatchResult, error) {
	var result BatchResult

	batch, err := ParseBatch(raw)
	if err != nil {
		return result, err
	}

	result.OrdersSeen = len(batch.Orders)
	for i, order := range batch.Orders {
		ing.processOrderIsolated(ctx, i, order, &result)
	}

	ing.evictStale()
	ing.metrics.RecordBatch(ctx, result)

	ing.logger.InfoContext(ctx, "batch ingested",
		"orders_seen", result.OrdersSeen,
		"orders_processed", result.OrdersProcessed,
		"orders_duplicate", result.OrdersDuplicate,
		"orders_skipped", result.OrdersSkipped,
		"items_skipped", result.ItemsSkipped,
		"actions_dispatched", result.ActionsDispatched,
	)
	return result, nil
}

// processOrderIsolated wraps processOrder with panic recovery so a single
// pathological payload cannot take down the ingest pass.
func (ing *Ingestor) processOrderIsolated(ctx context.Context, index int, order map[string]any, result *BatchResult) {
	defer func() {
		if r := recover(); r != nil {
			result.OrdersSkipped++
			ing.logger.ErrorContext(ctx, "panic while processing order",
				"order_index", index,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	ing.processOrder(ctx, order, result)
}

// processOrder runs the full pipeline for one raw order:
//
//	order id -> dedup check -> identity -> variant prefix -> per-item
//	resolution/execution -> durable insert -> notification
func (ing *Ingestor) processOrder(ctx context.Context, order map[string]any, result *BatchResult) {
	orderID := resolveOrderID(order)
	if orderID == "" {
		result.OrdersSkipped++
		ing.logger.WarnContext(ctx, "order missing order id, skipping")
		return
	}

	exists, err := ing.store.Exists(ctx, orderID)
	if err != nil {
		// Degraded mode, documented and deliberate: a store-query failure is
		// treated as "not yet processed" so purchases are not silently
		// dropped. The atomic insert keeps the durable record consistent;
		// command re-execution is possible and accepted because operators
		// configure commands to be idempotent.
		ing.logger.ErrorContext(ctx, "dedup store query failed, assuming order unprocessed",
			"external_order_id", orderID,
			"error", err,
		)
	} else if exists {
		// Already processed; skip silently.
		result.OrdersDuplicate++
		return
	}

	identity, source, ok := ExtractIdentity(order)
	if !ok {
		result.OrdersSkipped++
		ing.logger.WarnContext(ctx, "order has no resolvable account identity, skipping",
			"external_order_id", orderID,
		)
		return
	}

	variant := ExtractAccountVariant(order)
	identity = ApplyVariantPrefix(identity, variant)

	lineItems := arrayField(order, "line_items")
	if len(lineItems) == 0 {
		result.OrdersSkipped++
		ing.logger.WarnContext(ctx, "order has no line items, skipping",
			"external_order_id", orderID,
		)
		return
	}

	ing.logger.InfoContext(ctx, "processing order",
		"external_order_id", orderID,
		"identity", identity,
		"identity_source", source,
		"account_variant", variant,
		"line_items", len(lineItems),
	)

	processedAny := false
	for _, raw := range lineItems {
		item, ok := raw.(map[string]any)
		if !ok {
			result.ItemsSkipped++
			continue
		}
		if ing.processLineItem(ctx, item, orderID, identity, result) {
			processedAny = true
		}
	}

	if processedAny {
		result.OrdersProcessed++
		ing.recency[orderID] = ing.clock.Now()
	}
}

// processLineItem resolves and executes one purchased item. It returns true
// when the item resulted in executed actions and a recorded ResolvedOrder.
func (ing *Ingestor) processLineItem(ctx context.Context, item map[string]any, orderID, identity string, result *BatchResult) bool {
	itemName := stringField(item, "name")
	if itemName == "" {
		result.ItemsSkipped++
		ing.logger.WarnContext(ctx, "line item has no name, skipping",
			"external_order_id", orderID,
		)
		return false
	}

	commands, found, err := ing.products.Resolve(ctx, itemName)
	if err != nil {
		result.ItemsSkipped++
		ing.logger.ErrorContext(ctx, "product resolution failed, skipping item",
			"external_order_id", orderID,
			"item", itemName,
			"error", err,
		)
		return false
	}
	if !found {
		// Unconfigured products are not errors; shops sell plenty of items
		// that grant nothing in-game.
		return false
	}
	if len(commands) == 0 {
		result.ItemsSkipped++
		ing.logger.WarnContext(ctx, "product mapping has no commands, skipping item",
			"external_order_id", orderID,
			"item", itemName,
		)
		return false
	}

	quantity := intField(item, "quantity", 1)
	result.ActionsDispatched += ing.executor.Execute(ctx, commands, identity, quantity)

	resolved := types.NewResolvedOrder(identity, itemName, orderID, ing.clock.Now())

	inserted, err := ing.store.Insert(ctx, resolved)
	if err != nil {
		ing.logger.ErrorContext(ctx, "failed to record processed order",
			"external_order_id", orderID,
			"item", itemName,
			"error", err,
		)
	} else if !inserted {
		// Another line item of this order (or a racing pass) won the insert.
		// The dedup record exists either way.
		ing.logger.DebugContext(ctx, "processed order already recorded",
			"external_order_id", orderID,
			"item", itemName,
		)
	}

	if ing.notifier != nil {
		if err := ing.notifier.Notify(ctx, resolved); err != nil {
			ing.logger.ErrorContext(ctx, "order notification failed",
				"external_order_id", orderID,
				"item", itemName,
				"error", err,
			)
		}
	}

	return true
}

// resolveOrderID tries the order identifier fields in priority order.
// Upstream delivers numbers for order_number and id, strings for name
// ("#1001") and order_id; all are normalized to strings.
func resolveOrderID(order map[string]any) string {
	for _, key := range []string{"order_number", "id", "name", "order_id"} {
		if v := scalarField(order, key); v != "" {
			return v
		}
	}
	return ""
}

// evictStale drops recency entries older than RecencyTTL. Called after each
// batch so the cache cannot grow without bound on a long-lived process.
func (ing *Ingestor) evictStale() {
	cutoff := ing.clock.Now().Add(-RecencyTTL)
	for id, at := range ing.recency {
		if at.Before(cutoff) {
			delete(ing.recency, id)
		}
	}
}
