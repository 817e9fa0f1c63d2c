package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"shopbridge/internal/types"
)

// fileRecord is the persisted shape of one processed order in the JSON file.
type fileRecord struct {
	ID              string    `json:"id"`
	AccountIdentity string    `json:"account_identity"`
	ItemName        string    `json:"item_name"`
	ProcessedAt     time.Time `json:"processed_at"`
}

// FileStore is the file-backed deduplication store. The whole record set is
// held in memory as a map keyed by external order id and rewritten on every
// insert. That is deliberate: purchase volume on a single shop is small, and
// the simple full-rewrite keeps the file human-inspectable and recoverable.
//
// All operations hold the store mutex, so the existence check inside Insert
// and the subsequent write are a single atomic step.
type FileStore struct {
	mu     sync.Mutex
	path   string
	orders map[string]fileRecord
	logger *slog.Logger
}

// OpenFileStore loads (or creates) the JSON store at path.
func OpenFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &FileStore{
		path:   path,
		orders: make(map[string]fileRecord),
		logger: logger,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalStorage, "failed to create orders file directory", err)
		}
		return s, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStorage, "failed to read orders file", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.orders); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalStorage, "failed to parse orders file", err)
		}
	}

	return s, nil
}

// Exists reports whether the external order id has already been recorded.
func (s *FileStore) Exists(_ context.Context, externalOrderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.orders[externalOrderID]
	return ok, nil
}

// Insert records the resolved order unless its external order id is already
// present. Check and write happen under the same lock, giving the file
// backend the same insert-if-absent guarantee as the database backend.
func (s *FileStore) Insert(_ context.Context, order types.ResolvedOrder) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.ExternalOrderID]; ok {
		return false, nil
	}

	s.orders[order.ExternalOrderID] = fileRecord{
		ID:              order.ID,
		AccountIdentity: order.AccountIdentity,
		ItemName:        order.ItemName,
		ProcessedAt:     order.ProcessedAt,
	}

	if err := s.save(); err != nil {
		// Roll the map back so a later retry can re-insert.
		delete(s.orders, order.ExternalOrderID)
		return false, err
	}
	return true, nil
}

// save writes the record set atomically: marshal to a temp file in the same
// directory, then rename over the target.
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.orders, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to marshal orders", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to write orders file", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to replace orders file", err)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() {}
