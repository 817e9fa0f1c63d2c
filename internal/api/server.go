// Package api exposes the admin HTTP surface: product mapping CRUD, mapping
// reload, and a health endpoint. It is an operator-facing API, expected to
// sit behind network-level access control.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"shopbridge/internal/types"
)

// ProductStore is the persistence contract for product mapping CRUD.
type ProductStore interface {
	Load(ctx context.Context) (types.ProductMapping, error)
	Put(ctx context.Context, productName string, pkg types.Package) error
	Delete(ctx context.Context, productName string) error
}

// Reloader invalidates the in-memory product cache after mapping edits.
type Reloader interface {
	Reload(ctx context.Context) error
}

// HealthChecker reports whether a downstream dependency is reachable. The
// dedup store satisfies this; a nil checker is reported as healthy.
type HealthChecker interface {
	Exists(ctx context.Context, externalOrderID string) (bool, error)
}

// PutProductRequest is the request body for PUT /v1/products/{name}.
type PutProductRequest struct {
	Commands []string `json:"commands" validate:"required,min=1,dive,required"`
}

// Server is the admin HTTP API handler set.
type Server struct {
	store    ProductStore
	reloader Reloader
	health   HealthChecker
	validate *validator.Validate
	logger   *slog.Logger
}

// NewServer creates the admin API server.
func NewServer(store ProductStore, reloader Reloader, health HealthChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    store,
		reloader: reloader,
		health:   health,
		validate: validator.New(),
		logger:   logger,
	}
}

// Router builds the chi router with standard middleware.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", s.handleListProducts)
			r.Get("/{name}", s.handleGetProduct)
			r.Put("/{name}", s.handlePutProduct)
			r.Delete("/{name}", s.handleDeleteProduct)
		})
		r.Post("/reload", s.handleReload)
	})

	return r
}

// handleHealth reports process liveness and, when a checker is wired, dedup
// store reachability. A degraded store still returns 200 with its status
// noted so the file-store fallback keeps the poller deployable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeStatus := "ok"
	if s.health != nil {
		if _, err := s.health.Exists(r.Context(), "health-probe"); err != nil {
			storeStatus = "degraded"
			s.logger.WarnContext(r.Context(), "health probe found dedup store degraded", "error", err)
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"store":  storeStatus,
	})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	mapping, err := s.store.Load(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mapping)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	name := productName(r)
	if name == "" {
		respondError(w, r, types.NewAppError(types.ErrCodeValidationInvalidProduct, "product name must not be empty", nil))
		return
	}

	mapping, err := s.store.Load(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	pkg, ok := mapping[name]
	if !ok {
		respondError(w, r, types.NewAppError(types.ErrCodeNotFoundProduct, "product is not mapped", nil))
		return
	}
	respondJSON(w, http.StatusOK, pkg)
}

// handlePutProduct creates or replaces a product mapping and invalidates the
// resolver cache so the next ingest pass sees the change.
func (s *Server) handlePutProduct(w http.ResponseWriter, r *http.Request) {
	name := productName(r)
	if name == "" {
		respondError(w, r, types.NewAppError(types.ErrCodeValidationInvalidProduct, "product name must not be empty", nil))
		return
	}

	var req PutProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidCommands,
			"commands must be a non-empty list of non-empty strings",
			err,
		))
		return
	}

	if err := s.store.Put(r.Context(), name, types.Package{Commands: req.Commands}); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.reloader.Reload(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}

	s.logger.InfoContext(r.Context(), "product mapping updated",
		"product", name,
		"commands", len(req.Commands),
	)
	respondJSON(w, http.StatusOK, types.Package{Commands: req.Commands})
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	name := productName(r)
	if name == "" {
		respondError(w, r, types.NewAppError(types.ErrCodeValidationInvalidProduct, "product name must not be empty", nil))
		return
	}

	if err := s.store.Delete(r.Context(), name); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.reloader.Reload(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}

	s.logger.InfoContext(r.Context(), "product mapping deleted", "product", name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.reloader.Reload(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "product mapping reloaded")
	respondJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// productName extracts and trims the {name} URL parameter. Product names come
// from storefront listings and may contain spaces, so the segment is
// percent-decoded before use.
func productName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	return strings.TrimSpace(raw)
}
