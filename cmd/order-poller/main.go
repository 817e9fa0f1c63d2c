// Package main is the entrypoint for the order poller daemon.
//
// The poller fetches recent orders from the configured storefront on a fixed
// interval, runs each batch through the ingest pipeline, and serves the admin
// HTTP API for product mapping management. All dependency wiring happens
// here; business logic lives under internal/.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"golang.org/x/sync/errgroup"

	"shopbridge/internal/actions"
	"shopbridge/internal/api"
	"shopbridge/internal/config"
	"shopbridge/internal/dedup"
	"shopbridge/internal/ingest"
	"shopbridge/internal/notifications"
	"shopbridge/internal/products"
	"shopbridge/internal/shopify"
	"shopbridge/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("order poller starting",
		"environment", cfg.Environment,
		"shop_domain", cfg.Storefront.Domain,
		"poll_interval", cfg.Storefront.PollInterval,
		"storage_driver", cfg.Storage.Driver,
		"dispatcher", cfg.Actions.Dispatcher,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := dedup.Open(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to open dedup store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	productSource := products.NewFileSource(cfg.Products.File)
	resolver := products.NewResolver(productSource, logger)

	dispatcher, err := buildDispatcher(ctx, cfg.Actions, logger)
	if err != nil {
		logger.Error("failed to initialize command dispatcher", "error", err)
		os.Exit(1)
	}
	executor := actions.NewExecutor(dispatcher, logger)

	var notifier types.NotificationSink
	if sink := notifications.NewWebhookSink(cfg.Notifications, logger); sink != nil {
		notifier = sink
	}

	var emitter ingest.Emitter = ingest.NopEmitter{}
	if cfg.Metrics.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Metrics.Region))
		if err != nil {
			logger.Error("failed to load AWS SDK config for metrics", "error", err)
			os.Exit(1)
		}
		emitter = ingest.NewCloudWatchEmitter(cloudwatch.NewFromConfig(awsCfg), cfg.Metrics.Namespace, logger)
	}

	ingestor := ingest.NewIngestor(ingest.IngestorConfig{
		Store:    store,
		Products: resolver,
		Executor: executor,
		Notifier: notifier,
		Metrics:  emitter,
		Logger:   logger,
	})

	client := shopify.NewClient(cfg.Storefront, logger)

	adminSrv := &http.Server{
		Addr:              cfg.Admin.Addr,
		Handler:           api.NewServer(productSource, resolver, store, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runPollLoop(gctx, client, ingestor, cfg.Storefront.PollInterval, logger)
	})

	g.Go(func() error {
		logger.Info("admin API listening", "addr", cfg.Admin.Addr)
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return adminSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("order poller exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("order poller stopped")
}

// runPollLoop fetches and ingests one batch per tick. Fetch and ingest
// failures are logged and the loop continues; a broken storefront should
// never terminate the daemon.
func runPollLoop(ctx context.Context, client *shopify.Client, ingestor *ingest.Ingestor, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pollOnce(ctx, client, ingestor, logger)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pollOnce(ctx, client, ingestor, logger)
		}
	}
}

func pollOnce(ctx context.Context, client *shopify.Client, ingestor *ingest.Ingestor, logger *slog.Logger) {
	raw, err := client.FetchRecentOrders(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "order fetch failed", "error", err)
		return
	}
	if _, err := ingestor.IngestBatch(ctx, raw); err != nil {
		logger.ErrorContext(ctx, "batch ingest failed", "error", err)
	}
}

// buildDispatcher selects the command sink. The SQS dispatcher is used in
// deployed environments; the log dispatcher keeps local development free of
// AWS credentials.
func buildDispatcher(ctx context.Context, cfg config.ActionsConfig, logger *slog.Logger) (types.CommandDispatcher, error) {
	switch cfg.Dispatcher {
	case "sqs":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		return actions.NewSQSDispatcher(sqs.NewFromConfig(awsCfg), cfg.CommandQueueURL, logger), nil
	default:
		return actions.NewLogDispatcher(logger), nil
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
