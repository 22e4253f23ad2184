package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/throw-if-null/yolo/internal/paths"
)

// FileStore keeps one marker file per key in dir, named ".<prefix>-<key>".
// An empty file reads as absent.
type FileStore struct {
	dir    string
	prefix string
}

func NewFileStore(dir, prefix string) *FileStore {
	return &FileStore{dir: dir, prefix: prefix}
}

// Path returns the marker file used for key.
func (f *FileStore) Path(key string) (string, error) {
	name := "." + f.prefix + "-" + key
	if err := paths.ValidateName(name); err != nil {
		return "", fmt.Errorf("key %q: %w", key, err)
	}
	return filepath.Join(f.dir, name), nil
}

func (f *FileStore) Get(_ context.Context, key string) (string, error) {
	p, err := f.Path(key)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	if len(b) == 0 {
		return "", ErrNotFound
	}
	return string(b), nil
}

// Set writes through a temp file and rename so readers never see a partial value.
func (f *FileStore) Set(_ context.Context, key, value string) error {
	p, err := f.Path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, ".yolo-kv-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	p, err := f.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
