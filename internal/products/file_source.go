package products

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"shopbridge/internal/types"
)

// FileSource reads and writes the product mapping as a JSON file:
//
//	{
//	  "VIP Rank": {"commands": ["lp user %player% parent set vip"]},
//	  "100 Coins": {"commands": ["eco give %player% 100"]}
//	}
//
// Mutations (Put/Delete) rewrite the file atomically and are used by the
// admin API; the ingest pipeline itself only ever reads through the Resolver.
type FileSource struct {
	mu   sync.Mutex
	path string
}

// NewFileSource creates a FileSource for the given path. A missing file is
// treated as an empty mapping until the first Put creates it.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Load reads the full mapping from disk.
func (s *FileSource) Load(_ context.Context) (types.ProductMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Put creates or replaces the package for a product and persists the file.
func (s *FileSource) Put(_ context.Context, productName string, pkg types.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping, err := s.read()
	if err != nil {
		return err
	}
	mapping[productName] = pkg
	return s.write(mapping)
}

// Delete removes the package for a product and persists the file. Deleting
// an absent product returns a not-found error so the admin API can report it.
func (s *FileSource) Delete(_ context.Context, productName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := mapping[productName]; !ok {
		return types.NewAppError(types.ErrCodeNotFoundProduct, "no mapping for product", nil)
	}
	delete(mapping, productName)
	return s.write(mapping)
}

func (s *FileSource) read() (types.ProductMapping, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.ProductMapping{}, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStorage, "failed to read products file", err)
	}

	mapping := types.ProductMapping{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &mapping); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalStorage, "failed to parse products file", err)
		}
	}
	return mapping, nil
}

func (s *FileSource) write(mapping types.ProductMapping) error {
	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to marshal products", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to create products directory", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to write products file", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to replace products file", err)
	}
	return nil
}
