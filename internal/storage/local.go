package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalStore keeps images on the local filesystem.
type LocalStore struct {
	Dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create dir %s: %w", dir, err)
	}
	return &LocalStore{Dir: dir}, nil
}

func (s *LocalStore) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	name := uuid.New().String() + filepath.Ext(filename)
	path := filepath.Join(s.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("storage: create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("storage: write %s: %w", path, err)
	}
	return name, nil
}

func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	path := filepath.Join(s.Dir, filepath.Base(ref))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove %s: %w", path, err)
	}
	return nil
}
