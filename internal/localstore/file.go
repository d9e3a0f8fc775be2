package localstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/jsa498/digitalmarketing/internal/model"
	"github.com/pkg/errors"
)

// FileStore keeps the snapshot in a JSON file. Writes go to a temp file
// in the same directory and are renamed into place.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates the parent directory of path if needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create local store directory")
	}
	return &FileStore{path: path}, nil
}

// Load reads the snapshot file.
func (s *FileStore) Load(ctx context.Context) ([]model.CartLineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read local cart")
	}
	return decode(data)
}

// Save writes the snapshot file atomically.
func (s *FileStore) Save(ctx context.Context, items []model.CartLineItem) error {
	data, err := encode(items)
	if err != nil {
		return errors.Wrap(err, "failed to encode local cart")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cart-*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write local cart")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to sync local cart")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, "failed to replace local cart")
	}
	return nil
}

// Close is a no-op for files.
func (s *FileStore) Close() error {
	return nil
}

var _ Store = (*FileStore)(nil)
