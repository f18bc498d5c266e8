package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend stores each collection as <root>/<name>.json.
//
// Layout:
//
//	data/
//	  products.json
//	  orders.json
//	  ...
//
// Writes go to a temporary file in the same directory which is synced and
// renamed over the target, so a crash mid-write leaves the previous document
// intact.
type FileBackend struct {
	root string
}

// NewFileBackend returns a backend rooted at dir. The directory is created by
// Prepare.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{root: dir}
}

func (b *FileBackend) path(collection string) string {
	return filepath.Join(b.root, collection+".json")
}

func (b *FileBackend) Prepare(_ context.Context) error {
	if err := os.MkdirAll(b.root, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

func (b *FileBackend) Init(ctx context.Context, collection string) (bool, error) {
	_, err := os.Stat(b.path(collection))
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := b.Save(ctx, collection, []byte("[]\n")); err != nil {
		return false, err
	}
	return true, nil
}

func (b *FileBackend) Load(_ context.Context, collection string) ([]byte, error) {
	data, err := os.ReadFile(b.path(collection))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (b *FileBackend) Save(_ context.Context, collection string, data []byte) error {
	target := b.path(collection)
	tmp, err := os.CreateTemp(b.root, "."+collection+".json.tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }
