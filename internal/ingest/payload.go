// payload.go holds the tolerant accessors for the untyped order payload
// tree. The upstream API mixes types freely (numeric ids, string ids, null
// objects where arrays are expected), so every accessor degrades to a zero
// value instead of failing.
package ingest

import (
	"encoding/json"
	"strconv"

	"shopbridge/internal/types"
)

// Batch is one decoded fetch response from the storefront API.
type Batch struct {
	Orders []map[string]any
}

// ParseBatch decodes a raw fetch response. Per the upstream contract, a
// payload carrying an "errors" field signals an API-reported failure and
// aborts the batch; a payload without an "orders" array is malformed.
func ParseBatch(raw []byte) (*Batch, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, types.NewAppError(types.ErrCodeIngestMalformedBatch, "response is not a JSON object", err)
	}

	if errField, ok := envelope["errors"]; ok {
		return nil, types.NewAppError(types.ErrCodeIngestUpstreamErrors, "storefront API reported errors", nil).
			WithDetails(map[string]any{"errors": string(errField)})
	}

	ordersRaw, ok := envelope["orders"]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeIngestMalformedBatch, "response has no orders array", nil)
	}

	var orders []map[string]any
	if err := json.Unmarshal(ordersRaw, &orders); err != nil {
		return nil, types.NewAppError(types.ErrCodeIngestMalformedBatch, "orders field is not an array of objects", err)
	}

	return &Batch{Orders: orders}, nil
}

// stringField returns the string value at key, or "" when the key is absent
// or holds a non-string.
func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// scalarField returns the value at key rendered as a string: strings pass
// through, JSON numbers are formatted without a decimal point when integral.
// Used for order identifiers, which upstream delivers as either type.
func scalarField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

// arrayField returns the array value at key, or nil.
func arrayField(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	if v, ok := m[key].([]any); ok {
		return v
	}
	return nil
}

// objectField returns the object value at key, or nil.
func objectField(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

// intField returns the integer value at key, or def when the key is absent
// or not numeric.
func intField(m map[string]any, key string, def int) int {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}
