// Package config defines the global configuration for the shopbridge service.
// Configuration is loaded once at process startup and is immutable thereafter.
// It follows 12-Factor principles: values come from the OS environment, with
// an optional .env file for local development. Any missing required value or
// invalid format fails the process immediately on startup.
package config

import (
	"time"

	"shopbridge/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for credentials so they never leak through logs or config dumps.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Components receive only the
// subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Storefront    StorefrontConfig
	Storage       StorageConfig
	Products      ProductsConfig
	Actions       ActionsConfig
	Notifications NotificationConfig
	Admin         AdminConfig
	Metrics       MetricsConfig
}

// StorefrontConfig holds the upstream storefront API connection settings.
type StorefrontConfig struct {
	// Domain is the shop's admin API host, e.g. "example.myshopify.com".
	Domain string `envconfig:"SHOP_DOMAIN" validate:"required,hostname"`
	// Token is the admin API access token sent as X-Shopify-Access-Token.
	Token SecretString `envconfig:"SHOP_TOKEN" validate:"required"`
	// APIVersion selects the admin API version path segment.
	APIVersion string `envconfig:"SHOP_API_VERSION" default:"2023-10"`
	// PollInterval is how often the poller fetches the order window.
	PollInterval time.Duration `envconfig:"SHOP_POLL_INTERVAL" default:"60s" validate:"min=5s"`
	// DaysToCheck controls the created_at_min lookback window. A value of 1
	// means "orders created today".
	DaysToCheck int `envconfig:"SHOP_DAYS_TO_CHECK" default:"1" validate:"min=1"`
	// MaxOrders caps the number of orders fetched per poll.
	MaxOrders int `envconfig:"SHOP_MAX_ORDERS" default:"50" validate:"min=1,max=250"`
	// RequestTimeout bounds a single fetch request.
	RequestTimeout time.Duration `envconfig:"SHOP_REQUEST_TIMEOUT" default:"30s"`
}

// StorageConfig selects and tunes the deduplication store backend.
type StorageConfig struct {
	// Driver selects the backend. The postgres driver falls back to the file
	// driver automatically when initialization fails.
	Driver string `envconfig:"STORAGE_DRIVER" default:"file" validate:"oneof=file postgres"`
	// DatabaseURL is required when Driver is "postgres".
	DatabaseURL SecretString `envconfig:"DATABASE_URL" validate:"required_if=Driver postgres"`
	// OrdersFile is the path of the file-backed store (also the fallback target).
	OrdersFile string `envconfig:"ORDERS_FILE" default:"data/orders.json"`

	// Pool tuning for the postgres driver.
	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// ProductsConfig locates the product-to-commands mapping.
type ProductsConfig struct {
	// File is the JSON file holding the product mapping:
	// {"VIP Rank": {"commands": ["lp user %player% parent set vip"]}}
	File string `envconfig:"PRODUCTS_FILE" default:"products.json" validate:"required"`
}

// ActionsConfig selects the command dispatch sink.
type ActionsConfig struct {
	// Dispatcher selects where substituted commands go: "log" writes them to
	// the structured log (local development), "sqs" enqueues them for the
	// game-server-side agent.
	Dispatcher string `envconfig:"ACTIONS_DISPATCHER" default:"log" validate:"oneof=log sqs"`
	// CommandQueueURL is required when Dispatcher is "sqs".
	CommandQueueURL string `envconfig:"SQS_COMMAND_QUEUE" validate:"required_if=Dispatcher sqs,omitempty,url"`
}

// NotificationConfig holds the outbound purchase-notification settings.
// An empty WebhookURL disables notifications.
type NotificationConfig struct {
	WebhookURL string        `envconfig:"NOTIFY_WEBHOOK_URL" validate:"omitempty,url"`
	Timeout    time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s"`
	// Template supports %player%, %package%, and %order_id% placeholders.
	Template string `envconfig:"NOTIFY_TEMPLATE" default:"%player% purchased %package% (order %order_id%)"`
}

// AdminConfig holds the admin HTTP API settings.
type AdminConfig struct {
	Addr string `envconfig:"ADMIN_ADDR" default:":8080"`
}

// MetricsConfig controls CloudWatch ingest metrics emission.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"false"`
	Namespace string `envconfig:"METRICS_NAMESPACE" default:"ShopBridge/Ingest"`
	Region    string `envconfig:"AWS_REGION" default:"us-east-1"`
}
