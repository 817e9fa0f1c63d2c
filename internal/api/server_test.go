package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbridge/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockProductStore is an in-memory ProductStore.
type mockProductStore struct {
	mapping types.ProductMapping
	loadErr error
}

func newMockProductStore() *mockProductStore {
	return &mockProductStore{mapping: types.ProductMapping{}}
}

func (s *mockProductStore) Load(_ context.Context) (types.ProductMapping, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.mapping, nil
}

func (s *mockProductStore) Put(_ context.Context, productName string, pkg types.Package) error {
	s.mapping[productName] = pkg
	return nil
}

func (s *mockProductStore) Delete(_ context.Context, productName string) error {
	if _, ok := s.mapping[productName]; !ok {
		return types.NewAppError(types.ErrCodeNotFoundProduct, "no mapping for product", nil)
	}
	delete(s.mapping, productName)
	return nil
}

// mockReloader counts reloads.
type mockReloader struct {
	reloads   int
	reloadErr error
}

func (r *mockReloader) Reload(_ context.Context) error {
	r.reloads++
	return r.reloadErr
}

// mockHealth simulates dedup store reachability.
type mockHealth struct {
	err error
}

func (h *mockHealth) Exists(_ context.Context, _ string) (bool, error) {
	return false, h.err
}

func newTestServer(store *mockProductStore, reloader *mockReloader, health HealthChecker) http.Handler {
	return NewServer(store, reloader, health, discardLogger()).Router()
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHealth_OK(t *testing.T) {
	handler := newTestServer(newMockProductStore(), &mockReloader{}, &mockHealth{})

	rr := doRequest(t, handler, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["store"])
}

// A degraded store still reports 200: the file-store fallback keeps the
// process deployable.
func TestHealth_DegradedStore(t *testing.T) {
	handler := newTestServer(newMockProductStore(), &mockReloader{}, &mockHealth{err: errors.New("connection refused")})

	rr := doRequest(t, handler, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["store"])
}

func TestListProducts(t *testing.T) {
	store := newMockProductStore()
	store.mapping["VIP Rank"] = types.Package{Commands: []string{"x"}}
	handler := newTestServer(store, &mockReloader{}, nil)

	rr := doRequest(t, handler, http.MethodGet, "/v1/products", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	var body types.ProductMapping
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body, "VIP Rank")
}

func TestGetProduct(t *testing.T) {
	store := newMockProductStore()
	store.mapping["VIP Rank"] = types.Package{Commands: []string{"lp user %player% parent set vip"}}
	handler := newTestServer(store, &mockReloader{}, nil)

	rr := doRequest(t, handler, http.MethodGet, "/v1/products/"+url.PathEscape("VIP Rank"), "")

	assert.Equal(t, http.StatusOK, rr.Code)
	var pkg types.Package
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pkg))
	assert.Equal(t, []string{"lp user %player% parent set vip"}, pkg.Commands)
}

func TestGetProduct_NotFound(t *testing.T) {
	handler := newTestServer(newMockProductStore(), &mockReloader{}, nil)

	rr := doRequest(t, handler, http.MethodGet, "/v1/products/Ghost", "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	var body APIErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, string(types.ErrCodeNotFoundProduct), body.Error.Code)
}

func TestPutProduct_CreatesAndReloads(t *testing.T) {
	store := newMockProductStore()
	reloader := &mockReloader{}
	handler := newTestServer(store, reloader, nil)

	rr := doRequest(t, handler, http.MethodPut, "/v1/products/"+url.PathEscape("Crate Keys"),
		`{"commands": ["crate give %player% vote 1"]}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, store.mapping, "Crate Keys")
	assert.Equal(t, []string{"crate give %player% vote 1"}, store.mapping["Crate Keys"].Commands)
	assert.Equal(t, 1, reloader.reloads)
}

func TestPutProduct_EmptyCommandsRejected(t *testing.T) {
	store := newMockProductStore()
	handler := newTestServer(store, &mockReloader{}, nil)

	rr := doRequest(t, handler, http.MethodPut, "/v1/products/Bad", `{"commands": []}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.NotContains(t, store.mapping, "Bad")
}

func TestPutProduct_BlankCommandRejected(t *testing.T) {
	handler := newTestServer(newMockProductStore(), &mockReloader{}, nil)

	rr := doRequest(t, handler, http.MethodPut, "/v1/products/Bad", `{"commands": [""]}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPutProduct_MalformedBodyRejected(t *testing.T) {
	handler := newTestServer(newMockProductStore(), &mockReloader{}, nil)

	rr := doRequest(t, handler, http.MethodPut, "/v1/products/Bad", `{not json`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPutProduct_UnknownFieldRejected(t *testing.T) {
	handler := newTestServer(newMockProductStore(), &mockReloader{}, nil)

	rr := doRequest(t, handler, http.MethodPut, "/v1/products/Bad",
		`{"commands": ["x"], "price": 10}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteProduct(t *testing.T) {
	store := newMockProductStore()
	store.mapping["VIP Rank"] = types.Package{Commands: []string{"x"}}
	reloader := &mockReloader{}
	handler := newTestServer(store, reloader, nil)

	rr := doRequest(t, handler, http.MethodDelete, "/v1/products/"+url.PathEscape("VIP Rank"), "")

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.NotContains(t, store.mapping, "VIP Rank")
	assert.Equal(t, 1, reloader.reloads)
}

func TestDeleteProduct_NotFound(t *testing.T) {
	handler := newTestServer(newMockProductStore(), &mockReloader{}, nil)

	rr := doRequest(t, handler, http.MethodDelete, "/v1/products/Ghost", "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReload(t *testing.T) {
	reloader := &mockReloader{}
	handler := newTestServer(newMockProductStore(), reloader, nil)

	rr := doRequest(t, handler, http.MethodPost, "/v1/reload", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, reloader.reloads)
}

func TestReload_FailurePropagates(t *testing.T) {
	reloader := &mockReloader{reloadErr: types.NewAppError(types.ErrCodeInternalStorage, "products file unreadable", nil)}
	handler := newTestServer(newMockProductStore(), reloader, nil)

	rr := doRequest(t, handler, http.MethodPost, "/v1/reload", "")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body APIErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, string(types.ErrCodeInternalStorage), body.Error.Code)
}

// Generic errors must not leak their message to clients.
func TestListProducts_GenericErrorIsOpaque(t *testing.T) {
	store := newMockProductStore()
	store.loadErr = errors.New("open /secret/path: permission denied")
	handler := newTestServer(store, &mockReloader{}, nil)

	rr := doRequest(t, handler, http.MethodGet, "/v1/products", "")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "/secret/path")
}
