package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbridge/internal/types"
)

func TestParseBatch_Valid(t *testing.T) {
	raw := []byte(`{"orders": [{"id": 1001, "name": "#1001"}, {"id": 1002}]}`)

	batch, err := ParseBatch(raw)

	require.NoError(t, err)
	assert.Len(t, batch.Orders, 2)
}

func TestParseBatch_EmptyOrders(t *testing.T) {
	batch, err := ParseBatch([]byte(`{"orders": []}`))

	require.NoError(t, err)
	assert.Empty(t, batch.Orders)
}

func TestParseBatch_ErrorsFieldAbortsBatch(t *testing.T) {
	raw := []byte(`{"errors": "Invalid API key or access token"}`)

	_, err := ParseBatch(raw)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeIngestUpstreamErrors, appErr.Code)
	assert.Contains(t, appErr.Details["errors"], "Invalid API key")
}

// The errors field wins even when an orders array is also present: an
// API-reported failure means the payload as a whole cannot be trusted.
func TestParseBatch_ErrorsFieldWinsOverOrders(t *testing.T) {
	raw := []byte(`{"errors": {"shop": "locked"}, "orders": [{"id": 1}]}`)

	_, err := ParseBatch(raw)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeIngestUpstreamErrors, appErr.Code)
}

func TestParseBatch_MissingOrders(t *testing.T) {
	_, err := ParseBatch([]byte(`{"shop": "example"}`))

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeIngestMalformedBatch, appErr.Code)
}

func TestParseBatch_NotJSON(t *testing.T) {
	_, err := ParseBatch([]byte(`<html>502 Bad Gateway</html>`))

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeIngestMalformedBatch, appErr.Code)
	assert.True(t, errors.Unwrap(appErr) != nil)
}

func TestScalarField(t *testing.T) {
	m := map[string]any{
		"string_id": "#1001",
		"number_id": float64(450789469),
		"object":    map[string]any{},
	}

	assert.Equal(t, "#1001", scalarField(m, "string_id"))
	assert.Equal(t, "450789469", scalarField(m, "number_id"))
	assert.Equal(t, "", scalarField(m, "object"))
	assert.Equal(t, "", scalarField(m, "absent"))
	assert.Equal(t, "", scalarField(nil, "any"))
}

func TestIntField(t *testing.T) {
	m := map[string]any{
		"quantity": float64(3),
		"name":     "VIP Rank",
	}

	assert.Equal(t, 3, intField(m, "quantity", 1))
	assert.Equal(t, 1, intField(m, "name", 1))
	assert.Equal(t, 1, intField(m, "absent", 1))
}
