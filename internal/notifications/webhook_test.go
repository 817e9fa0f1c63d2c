package notifications

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbridge/internal/config"
	"shopbridge/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(url string) config.NotificationConfig {
	return config.NotificationConfig{
		WebhookURL: url,
		Timeout:    5 * time.Second,
		Template:   "%player% purchased %package% (order %order_id%)",
	}
}

func testOrder() types.ResolvedOrder {
	return types.NewResolvedOrder("Steve", "VIP Rank", "1001", time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
}

func TestWebhookSink_Notify(t *testing.T) {
	var gotBody map[string]string
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(testConfig(srv.URL), discardLogger())
	require.NotNil(t, sink)

	err := sink.Notify(context.Background(), testOrder())

	require.NoError(t, err)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "Steve purchased VIP Rank (order 1001)", gotBody["text"])
}

func TestWebhookSink_CustomTemplate(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Template = "New purchase: %package% for %player%"
	sink := NewWebhookSink(cfg, discardLogger())

	require.NoError(t, sink.Notify(context.Background(), testOrder()))
	assert.Equal(t, "New purchase: VIP Rank for Steve", gotBody["text"])
}

func TestWebhookSink_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "channel_not_found", http.StatusNotFound)
	}))
	defer srv.Close()

	sink := NewWebhookSink(testConfig(srv.URL), discardLogger())

	err := sink.Notify(context.Background(), testOrder())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "channel_not_found")
}

// No configured URL means no sink: the caller wires nothing.
func TestNewWebhookSink_DisabledWithoutURL(t *testing.T) {
	sink := NewWebhookSink(testConfig(""), discardLogger())
	assert.Nil(t, sink)
}

func TestWebhookSink_IdentityKeepsVariantPrefix(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	}))
	defer srv.Close()

	sink := NewWebhookSink(testConfig(srv.URL), discardLogger())
	order := types.NewResolvedOrder("!Steve", "VIP Rank", "1001", time.Now().UTC())

	require.NoError(t, sink.Notify(context.Background(), order))
	assert.Equal(t, "!Steve purchased VIP Rank (order 1001)", gotBody["text"])
}
